package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joshsymonds/mailrag/internal/credential"
	"github.com/joshsymonds/mailrag/internal/gmail"
	"github.com/joshsymonds/mailrag/internal/history"
	"github.com/joshsymonds/mailrag/internal/llm"
	"github.com/joshsymonds/mailrag/internal/query"
	"github.com/joshsymonds/mailrag/internal/retriever"
	"github.com/joshsymonds/mailrag/internal/synth"
)

type fakeAuth struct{ valid bool }

func (f fakeAuth) CheckValid(ctx context.Context) bool {
	_ = ctx
	return f.valid
}

// scriptedLLM answers prompts with replies in order.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []llm.Prompt
	release chan struct{}
}

func (s *scriptedLLM) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	_ = ctx
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

type fakeRetriever struct {
	ids       []gmail.MessageID
	searchErr error
	report    retriever.FetchReport
	queries   []string
	fetched   [][]gmail.MessageID
}

func (f *fakeRetriever) Search(ctx context.Context, q string) ([]gmail.MessageID, error) {
	_ = ctx
	f.queries = append(f.queries, q)
	return f.ids, f.searchErr
}

func (f *fakeRetriever) FetchAll(ctx context.Context, ids []gmail.MessageID) (retriever.FetchReport, error) {
	_ = ctx
	f.fetched = append(f.fetched, ids)
	return f.report, nil
}

type memoryHistory struct {
	entries []history.Entry
	err     error
}

func (m *memoryHistory) SaveLast(ctx context.Context, e history.Entry) error {
	_ = ctx
	m.entries = append(m.entries, e)
	return m.err
}

type countingRecorder struct {
	cycles  []string
	skipped int
	repairs []string
}

func (c *countingRecorder) RecordCycle(outcome string)        { c.cycles = append(c.cycles, outcome) }
func (c *countingRecorder) RecordStage(string, time.Duration) {}
func (c *countingRecorder) RecordSkipped(n int)               { c.skipped += n }
func (c *countingRecorder) RecordRepair(stage string)         { c.repairs = append(c.repairs, stage) }

func message(id, subject, body string) gmail.Message {
	return gmail.Message{
		ID: gmail.MessageID(id),
		Payload: gmail.Part{
			MimeType: "text/plain",
			Headers: []gmail.Header{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: "billing@acme.example"},
				{Name: "Date", Value: "Mon, 2 Jun 2025 10:00:00 +0000"},
			},
			Data: base64.URLEncoding.EncodeToString([]byte(body)),
		},
	}
}

func newTestService(model *scriptedLLM, r Retriever, valid bool) (*Service, *memoryHistory, *countingRecorder) {
	svc := NewService(fakeAuth{valid: valid}, r, func(ctx context.Context, apiKey string) (llm.Client, error) {
		_ = ctx
		if apiKey != "test-key" {
			return nil, llm.ErrInvalidKey
		}
		return model, nil
	}, slogDiscard())
	hist := &memoryHistory{}
	rec := &countingRecorder{}
	svc.History = hist
	svc.Metrics = rec
	svc.DefaultAPIKey = "test-key"
	svc.Clock = func() time.Time { return time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC) }
	return svc, hist, rec
}

func manualScope(t *testing.T, folders ...string) query.FolderScope {
	t.Helper()
	scope, err := query.Manual(folders...)
	if err != nil {
		t.Fatalf("manual scope: %v", err)
	}
	return scope
}

func TestRunAnswersFromFetchedMessages(t *testing.T) {
	model := &scriptedLLM{replies: []string{
		"from:acme invoice",
		`{"answer":"You owe Acme 120 EUR across two invoices.","source_folders":["INBOX"],"source_emails":[` +
			`{"subject":"Invoice 12","link":"https://mail.google.com/mail/u/0/#all/m1"},` +
			`{"subject":"Invoice 13","link":"https://example.com/made-up"}]}`,
	}}
	r := &fakeRetriever{
		ids: []gmail.MessageID{"m1", "m2"},
		report: retriever.FetchReport{Messages: []gmail.Message{
			message("m1", "Invoice 12", "Total due: 60 EUR"),
			message("m2", "Invoice 13", "Total due: 60 EUR"),
		}},
	}
	svc, hist, rec := newTestService(model, r, true)

	res, err := svc.Run(context.Background(), Request{Question: "How much do I owe Acme?", Scope: manualScope(t, "INBOX")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []State{Idle, CheckingAuth, Rewriting, Searching, Fetching, Synthesizing, Done}
	if !reflect.DeepEqual(res.Trace, want) {
		t.Fatalf("trace = %v, want %v", res.Trace, want)
	}
	if res.Query != "(in:inbox) (from:acme invoice)" {
		t.Fatalf("query = %q", res.Query)
	}
	for _, op := range []string{"newer_than:", "older_than:", "after:", "before:"} {
		if strings.Contains(res.Query, op) {
			t.Fatalf("query %q carries date operator %s", res.Query, op)
		}
	}
	if len(res.Answer.SourceEmails) != 2 || len(res.Answer.SourceEmails) > synth.DefaultMaxSources {
		t.Fatalf("sources = %+v", res.Answer.SourceEmails)
	}
	links := map[string]bool{}
	for _, d := range res.Documents {
		links[d.Link] = true
	}
	for _, src := range res.Answer.SourceEmails {
		if !links[src.Link] {
			t.Fatalf("source %q is not a fetched message", src.Link)
		}
	}
	if !reflect.DeepEqual(res.Answer.SourceFolders, []string{"INBOX"}) {
		t.Fatalf("folders = %v", res.Answer.SourceFolders)
	}
	if !model.prompts[1].JSON {
		t.Fatalf("synthesis prompt must request JSON output")
	}
	if model.prompts[0].Model != llm.DefaultModel {
		t.Fatalf("model = %q", model.prompts[0].Model)
	}
	if len(hist.entries) != 1 || hist.entries[0].CycleID != res.CycleID || hist.entries[0].Query != res.Query {
		t.Fatalf("history = %+v", hist.entries)
	}
	if !reflect.DeepEqual(rec.cycles, []string{"answered"}) || !reflect.DeepEqual(rec.repairs, []string{"direct"}) {
		t.Fatalf("metrics cycles=%v repairs=%v", rec.cycles, rec.repairs)
	}
}

func TestRunWithoutHitsSkipsSynthesis(t *testing.T) {
	model := &scriptedLLM{replies: []string{"subject:nothing"}}
	r := &fakeRetriever{}
	svc, hist, rec := newTestService(model, r, true)

	res, err := svc.Run(context.Background(), Request{Question: "Anything from Zed?", Scope: manualScope(t, "SENT")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.State() != Done {
		t.Fatalf("state = %v", res.State())
	}
	if model.calls() != 1 {
		t.Fatalf("expected only the rewrite call, got %d", model.calls())
	}
	if len(r.fetched) != 0 {
		t.Fatalf("fetch must not run without hits")
	}
	encoded, err := res.Answer.JSON()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal([]byte(encoded), &wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if wire["answer"] != synth.NoResultsText {
		t.Fatalf("answer = %v", wire["answer"])
	}
	if emails, ok := wire["source_emails"].([]any); !ok || len(emails) != 0 {
		t.Fatalf("source_emails = %#v", wire["source_emails"])
	}
	if len(hist.entries) != 1 || !reflect.DeepEqual(rec.cycles, []string{"empty"}) {
		t.Fatalf("history=%d cycles=%v", len(hist.entries), rec.cycles)
	}
}

func TestRunFailsWhenNotAuthenticated(t *testing.T) {
	model := &scriptedLLM{}
	r := &fakeRetriever{}
	svc, _, rec := newTestService(model, r, false)

	res, err := svc.Run(context.Background(), Request{Question: "q", Scope: query.AIAssisted()})
	var authErr *credential.AuthError
	if !errors.As(err, &authErr) || authErr.Kind != credential.NotAuthenticated {
		t.Fatalf("expected not-authenticated error, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != CheckingAuth {
		t.Fatalf("expected failure in checking_auth, got %v", err)
	}
	if want := []State{Idle, CheckingAuth, Failed}; !reflect.DeepEqual(res.Trace, want) {
		t.Fatalf("trace = %v", res.Trace)
	}
	if model.calls() != 0 || len(r.queries) != 0 {
		t.Fatalf("no stage should run after auth failure")
	}
	if !reflect.DeepEqual(rec.cycles, []string{"failed"}) {
		t.Fatalf("cycles = %v", rec.cycles)
	}
}

func TestRunModelFailure(t *testing.T) {
	modelErr := &llm.ModelError{Model: llm.DefaultModel, Status: 503, Err: errors.New("overloaded")}
	model := &scriptedLLM{err: modelErr}
	r := &fakeRetriever{}
	svc, hist, _ := newTestService(model, r, true)

	res, err := svc.Run(context.Background(), Request{Question: "q", Scope: query.AIAssisted()})
	if !errors.Is(err, modelErr) {
		t.Fatalf("expected model error, got %v", err)
	}
	if res.State() != Failed || len(r.queries) != 0 || len(hist.entries) != 0 {
		t.Fatalf("unexpected result %+v queries=%v", res, r.queries)
	}
}

func TestRunRejectsInput(t *testing.T) {
	svc, _, _ := newTestService(&scriptedLLM{}, &fakeRetriever{}, true)
	if _, err := svc.Run(context.Background(), Request{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	svc.DefaultAPIKey = ""
	if _, err := svc.Run(context.Background(), Request{Question: "q", Scope: query.AIAssisted()}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := svc.Run(context.Background(), Request{Question: "q", Scope: query.AIAssisted(), APIKey: "other"}); !errors.Is(err, llm.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestRunCountsSkippedFetches(t *testing.T) {
	model := &scriptedLLM{replies: []string{
		"invoice",
		`{"answer":"One invoice.","source_folders":[],"source_emails":[]}`,
	}}
	r := &fakeRetriever{
		ids: []gmail.MessageID{"m1", "m2", "m3"},
		report: retriever.FetchReport{
			Messages: []gmail.Message{message("m1", "Invoice 12", "body")},
			Skipped: []retriever.SkippedFetch{
				{ID: "m2", Err: errors.New("boom")},
				{ID: "m3", Err: errors.New("boom")},
			},
		},
	}
	svc, _, rec := newTestService(model, r, true)

	res, err := svc.Run(context.Background(), Request{Question: "invoices", Scope: manualScope(t, "Work")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.skipped != 2 || len(res.Skipped) != 2 || len(res.Documents) != 1 {
		t.Fatalf("skipped=%d docs=%d", rec.skipped, len(res.Documents))
	}
	if !reflect.DeepEqual(res.Answer.SourceFolders, []string{"Work"}) {
		t.Fatalf("empty model folders should be filled from scope, got %v", res.Answer.SourceFolders)
	}
}

func TestRunAnswersWhenEveryFetchFails(t *testing.T) {
	tests := []struct {
		name   string
		report retriever.FetchReport
		skip   int
	}{
		{
			name:   "all skipped",
			report: retriever.FetchReport{Skipped: []retriever.SkippedFetch{{ID: "m1", Err: errors.New("gone")}}},
			skip:   1,
		},
		{name: "empty report", report: retriever.FetchReport{}},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			model := &scriptedLLM{replies: []string{
				"invoice",
				`{"answer":"The emails do not mention it.","source_folders":["INBOX"],"source_emails":[{"subject":"Invoice","link":"https://mail.google.com/mail/u/0/#all/m1"}]}`,
			}}
			r := &fakeRetriever{ids: []gmail.MessageID{"m1"}, report: tc.report}
			svc, _, rec := newTestService(model, r, true)

			resp, err := svc.Ask(context.Background(), Request{Question: "q", Scope: manualScope(t, "INBOX")})
			if err != nil {
				t.Fatalf("ask: %v", err)
			}
			if !resp.Success || resp.Error != "" {
				t.Fatalf("expected a successful answer, got %+v", resp)
			}
			var answer synth.Answer
			if err := json.Unmarshal([]byte(resp.Result), &answer); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if answer.SourceEmails == nil || len(answer.SourceEmails) != 0 {
				t.Fatalf("sources must be an empty list without documents, got %#v", answer.SourceEmails)
			}
			if model.calls() != 2 {
				t.Fatalf("synthesis should run, calls=%d", model.calls())
			}
			if rec.skipped != tc.skip {
				t.Fatalf("skipped = %d, want %d", rec.skipped, tc.skip)
			}
		})
	}
}

func TestRunAIModeReportsInferredFolders(t *testing.T) {
	model := &scriptedLLM{replies: []string{
		"label:Receipts from:acme",
		`{"answer":"Found it.","source_folders":["INBOX","Made Up"],"source_emails":[]}`,
	}}
	r := &fakeRetriever{
		ids:    []gmail.MessageID{"m1"},
		report: retriever.FetchReport{Messages: []gmail.Message{message("m1", "Receipt", "paid")}},
	}
	svc, _, _ := newTestService(model, r, true)

	res, err := svc.Run(context.Background(), Request{Question: "acme receipts", Scope: query.AIAssisted()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.queries[0] != "label:Receipts from:acme" {
		t.Fatalf("query = %q", r.queries[0])
	}
	if !reflect.DeepEqual(res.Answer.SourceFolders, []string{"Receipts"}) {
		t.Fatalf("folders = %v", res.Answer.SourceFolders)
	}
}

func TestRunRepairsMalformedOutput(t *testing.T) {
	model := &scriptedLLM{replies: []string{"invoice", "I cannot answer that in JSON."}}
	r := &fakeRetriever{
		ids:    []gmail.MessageID{"m1"},
		report: retriever.FetchReport{Messages: []gmail.Message{message("m1", "Invoice", "x")}},
	}
	svc, _, rec := newTestService(model, r, true)

	res, err := svc.Run(context.Background(), Request{Question: "q", Scope: manualScope(t, "INBOX")})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Answer.Answer != synth.FallbackText || res.Repair != synth.StageFallback {
		t.Fatalf("answer = %+v stage %q", res.Answer, res.Repair)
	}
	if len(res.Answer.SourceFolders) != 0 {
		t.Fatalf("fallback answer keeps empty folders, got %v", res.Answer.SourceFolders)
	}
	if !reflect.DeepEqual(rec.repairs, []string{"fallback"}) {
		t.Fatalf("repairs = %v", rec.repairs)
	}
}

func TestRunIgnoresHistoryFailure(t *testing.T) {
	model := &scriptedLLM{replies: []string{"x"}}
	svc, hist, _ := newTestService(model, &fakeRetriever{}, true)
	hist.err = errors.New("disk full")

	res, err := svc.Run(context.Background(), Request{Question: "q", Scope: manualScope(t, "INBOX")})
	if err != nil || res.State() != Done {
		t.Fatalf("history failure must not fail the cycle: %v", err)
	}
}

func TestAskResponse(t *testing.T) {
	model := &scriptedLLM{replies: []string{"x"}}
	svc, _, _ := newTestService(model, &fakeRetriever{}, true)

	resp, err := svc.Ask(context.Background(), Request{Question: "q", Scope: manualScope(t, "INBOX")})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !resp.Success || !strings.Contains(resp.Result, synth.NoResultsText) || resp.Error != "" {
		t.Fatalf("response = %+v", resp)
	}

	svc.Auth = fakeAuth{valid: false}
	resp, err = svc.Ask(context.Background(), Request{Question: "q", Scope: manualScope(t, "INBOX")})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Success || resp.Error == "" || resp.Result != "" {
		t.Fatalf("expected failure response, got %+v", resp)
	}
}

func TestAskCancellationIsAdvisory(t *testing.T) {
	model := &scriptedLLM{replies: []string{"x"}, release: make(chan struct{})}
	r := &fakeRetriever{}
	svc, hist, _ := newTestService(model, r, true)
	saved := make(chan struct{})
	svc.History = historyFunc(func(e history.Entry) {
		hist.entries = append(hist.entries, e)
		close(saved)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Ask(ctx, Request{Question: "q", Scope: manualScope(t, "INBOX")}); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}

	close(model.release)
	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatalf("canceled cycle did not run to completion")
	}
}

type historyFunc func(history.Entry)

func (f historyFunc) SaveLast(ctx context.Context, e history.Entry) error {
	_ = ctx
	f(e)
	return nil
}

func TestStateString(t *testing.T) {
	if Synthesizing.String() != "synthesizing" || State(99).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
	b, err := json.Marshal([]State{Idle, Done})
	if err != nil || string(b) != `["idle","done"]` {
		t.Fatalf("trace json = %s, %v", b, err)
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
