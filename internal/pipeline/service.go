// Package pipeline sequences authentication, query rewriting, retrieval and
// synthesis into one question/answer cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/mailrag/internal/credential"
	"github.com/joshsymonds/mailrag/internal/extract"
	"github.com/joshsymonds/mailrag/internal/gmail"
	"github.com/joshsymonds/mailrag/internal/history"
	"github.com/joshsymonds/mailrag/internal/llm"
	"github.com/joshsymonds/mailrag/internal/query"
	"github.com/joshsymonds/mailrag/internal/retriever"
	"github.com/joshsymonds/mailrag/internal/synth"
)

var (
	// ErrCanceled is returned by Ask when the caller stopped waiting. The
	// cycle itself still runs to completion.
	ErrCanceled = errors.New("question canceled")
	// ErrEmptyQuestion rejects a blank question before any stage runs.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoAPIKey means neither the request nor the configuration carries a
	// model API key.
	ErrNoAPIKey = errors.New("model API key is required")
)

// Authenticator validates the stored mail credential.
type Authenticator interface {
	CheckValid(ctx context.Context) bool
}

// Retriever searches and fetches messages.
type Retriever interface {
	Search(ctx context.Context, q string) ([]gmail.MessageID, error)
	FetchAll(ctx context.Context, ids []gmail.MessageID) (retriever.FetchReport, error)
}

// HistoryStore keeps the last successful answer.
type HistoryStore interface {
	SaveLast(ctx context.Context, e history.Entry) error
}

// Recorder observes cycle outcomes.
type Recorder interface {
	RecordCycle(outcome string)
	RecordStage(stage string, d time.Duration)
	RecordSkipped(n int)
	RecordRepair(stage string)
}

// Request is one question.
type Request struct {
	Question string
	Scope    query.FolderScope
	Model    string
	APIKey   string
}

// Result describes a finished cycle.
type Result struct {
	CycleID   string                   `json:"cycleId"`
	Trace     []State                  `json:"trace"`
	Query     string                   `json:"query"`
	Folders   []string                 `json:"folders"`
	Answer    synth.Answer             `json:"answer"`
	Documents []extract.Document       `json:"-"`
	Skipped   []retriever.SkippedFetch `json:"-"`
	Repair    synth.Stage              `json:"repair,omitempty"`
}

// State returns the final state of the cycle.
func (r Result) State() State {
	if len(r.Trace) == 0 {
		return Idle
	}
	return r.Trace[len(r.Trace)-1]
}

// StageError reports the stage a cycle failed in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Service runs question cycles.
type Service struct {
	Auth      Authenticator
	Retriever Retriever
	Models    llm.Factory
	History   HistoryStore
	Metrics   Recorder
	Logger    *slog.Logger
	Clock     func() time.Time

	DefaultModel  string
	DefaultAPIKey string
	Language      string
	MaxSources    int
}

// NewService constructs a Service with sane defaults.
func NewService(auth Authenticator, r Retriever, models llm.Factory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Auth:         auth,
		Retriever:    r,
		Models:       models,
		Logger:       logger,
		Clock:        time.Now,
		DefaultModel: llm.DefaultModel,
		Language:     synth.DefaultLanguage,
		MaxSources:   synth.DefaultMaxSources,
	}
}

// cycle tracks the state of one Run.
type cycle struct {
	svc    *Service
	log    *slog.Logger
	res    Result
	state  State
	marked time.Time
}

func (c *cycle) enter(s State) {
	c.finishStage()
	c.state = s
	c.res.Trace = append(c.res.Trace, s)
	c.marked = c.svc.now()
	c.log.Debug("stage", slog.String("state", s.String()))
}

func (c *cycle) finishStage() {
	if c.state != Idle && !c.marked.IsZero() {
		c.svc.metrics().RecordStage(c.state.String(), c.svc.now().Sub(c.marked))
	}
}

func (c *cycle) fail(ctx context.Context, err error) (Result, error) {
	stage := c.state
	c.enter(Failed)
	c.svc.metrics().RecordCycle("failed")
	c.log.ErrorContext(ctx, "cycle failed", slog.String("stage", stage.String()), slog.Any("error", err))
	return c.res, &StageError{Stage: stage, Err: err}
}

func (c *cycle) done(ctx context.Context, outcome string) (Result, error) {
	c.enter(Done)
	c.svc.metrics().RecordCycle(outcome)
	c.log.InfoContext(ctx, "cycle done",
		slog.String("outcome", outcome),
		slog.Int("documents", len(c.res.Documents)),
		slog.Int("skipped", len(c.res.Skipped)),
	)
	return c.res, nil
}

// Run executes one cycle synchronously. On failure the returned Result holds
// the trace up to Failed and the error is a *StageError.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	id := uuid.NewString()
	c := &cycle{
		svc: s,
		log: s.logger().With(slog.String("cycle_id", id)),
		res: Result{CycleID: id, Trace: []State{Idle}},
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return c.fail(ctx, ErrEmptyQuestion)
	}
	model := req.Model
	if model == "" {
		model = s.DefaultModel
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = s.DefaultAPIKey
	}
	c.log.InfoContext(ctx, "cycle started", slog.String("model", model), slog.String("scope", req.Scope.Mode().String()))

	c.enter(CheckingAuth)
	if !s.Auth.CheckValid(ctx) {
		return c.fail(ctx, &credential.AuthError{Kind: credential.NotAuthenticated})
	}

	c.enter(Rewriting)
	if apiKey == "" {
		return c.fail(ctx, ErrNoAPIKey)
	}
	client, err := s.Models(ctx, apiKey)
	if err != nil {
		return c.fail(ctx, fmt.Errorf("model client: %w", err))
	}
	rw := query.NewRewriter(client, c.log)
	rw.Now = s.now
	rewritten, err := rw.Rewrite(ctx, query.Request{Question: question, Scope: req.Scope, Model: model})
	if err != nil {
		return c.fail(ctx, err)
	}
	c.res.Query = rewritten.Query
	c.res.Folders = rewritten.Folders

	c.enter(Searching)
	ids, err := s.Retriever.Search(ctx, rewritten.Query)
	if err != nil {
		return c.fail(ctx, err)
	}
	if len(ids) == 0 {
		c.res.Answer = synth.NoResults(rewritten.Folders)
		c.save(ctx, question)
		return c.done(ctx, "empty")
	}

	c.enter(Fetching)
	report, err := s.Retriever.FetchAll(ctx, ids)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.res.Skipped = report.Skipped
	if len(report.Skipped) > 0 {
		s.metrics().RecordSkipped(len(report.Skipped))
	}
	if len(report.Messages) == 0 {
		c.log.WarnContext(ctx, "no message could be fetched, answering without documents",
			slog.Int("hits", len(ids)), slog.Int("skipped", len(report.Skipped)))
	}
	for _, msg := range report.Messages {
		c.res.Documents = append(c.res.Documents, extract.FromMessage(msg))
	}

	c.enter(Synthesizing)
	sy := synth.NewSynthesizer(client, s.Language, c.log)
	sy.MaxSources = s.MaxSources
	answer, stage, err := sy.Synthesize(ctx, model, synth.Input{
		Question:  question,
		Folders:   rewritten.Folders,
		Documents: c.res.Documents,
	})
	if err != nil {
		return c.fail(ctx, err)
	}
	s.metrics().RecordRepair(string(stage))
	c.res.Repair = stage
	if req.Scope.Mode() == query.ModeAIAssisted || (stage != synth.StageFallback && len(answer.SourceFolders) == 0) {
		answer.SourceFolders = append([]string{}, rewritten.Folders...)
	}
	c.res.Answer = answer
	c.save(ctx, question)
	return c.done(ctx, "answered")
}

// save stores the answer; a failure is logged and never fails the cycle.
func (c *cycle) save(ctx context.Context, question string) {
	if c.svc.History == nil {
		return
	}
	result, err := c.res.Answer.JSON()
	if err != nil {
		c.log.WarnContext(ctx, "encode answer for history failed", slog.Any("error", err))
		return
	}
	err = c.svc.History.SaveLast(ctx, history.Entry{
		CycleID:   c.res.CycleID,
		Question:  question,
		Query:     c.res.Query,
		Result:    result,
		CreatedAt: c.svc.now(),
	})
	if err != nil {
		c.log.WarnContext(ctx, "save history failed", slog.Any("error", err))
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return s.Logger
}

func (s *Service) metrics() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(string)                {}
func (nopRecorder) RecordStage(string, time.Duration) {}
func (nopRecorder) RecordSkipped(int)                 {}
func (nopRecorder) RecordRepair(string)               {}
