package synth

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshsymonds/mailrag/internal/extract"
	"github.com/joshsymonds/mailrag/internal/llm"
)

// DefaultMaxSources caps the citations of one answer.
const DefaultMaxSources = 10

// Synthesizer produces grounded answers from retrieved documents.
type Synthesizer struct {
	LLM        llm.Client
	Language   string
	MaxSources int
	Logger     *slog.Logger
}

func NewSynthesizer(client llm.Client, language string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Synthesizer{LLM: client, Language: language, MaxSources: DefaultMaxSources, Logger: logger}
}

// Synthesize asks the model for a structured answer. Only a failed model call
// is returned as an error; malformed output is repaired locally and the stage
// that produced the answer is reported.
func (s *Synthesizer) Synthesize(ctx context.Context, model string, in Input) (Answer, Stage, error) {
	prompt := llm.NewPrompt(model, BuildPrompt(in, s.Language))
	prompt.JSON = true
	raw, err := s.LLM.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, "", fmt.Errorf("synthesize answer: %w", err)
	}

	answer, stage, failures := Repair(raw)
	for _, f := range failures {
		s.logger().DebugContext(ctx, "repair step rejected output", slog.Any("error", f))
	}
	if stage != StageDirect {
		s.logger().WarnContext(ctx, "model output repaired", slog.String("stage", string(stage)))
	}
	if stage == StageFallback {
		return answer, stage, nil
	}
	return Ground(answer, in.Documents, s.maxSources()), stage, nil
}

// Ground keeps only citations of documents from this cycle. A citation with
// an unknown link is re-linked by exact subject match or dropped; duplicates
// are removed and the list is capped at limit.
func Ground(a Answer, docs []extract.Document, limit int) Answer {
	byLink := make(map[string]extract.Document, len(docs))
	bySubject := make(map[string]extract.Document, len(docs))
	for _, d := range docs {
		byLink[d.Link] = d
		if _, ok := bySubject[d.Subject]; !ok {
			bySubject[d.Subject] = d
		}
	}

	kept := make([]SourceEmail, 0, len(a.SourceEmails))
	seen := map[string]bool{}
	for _, src := range a.SourceEmails {
		d, ok := byLink[src.Link]
		if !ok {
			d, ok = bySubject[src.Subject]
		}
		if !ok || seen[d.Link] {
			continue
		}
		seen[d.Link] = true
		subject := src.Subject
		if subject == "" {
			subject = d.Subject
		}
		kept = append(kept, SourceEmail{Subject: subject, Link: d.Link})
		if limit > 0 && len(kept) == limit {
			break
		}
	}
	a.SourceEmails = kept
	return a.normalized()
}

func (s *Synthesizer) maxSources() int {
	if s.MaxSources <= 0 {
		return DefaultMaxSources
	}
	return s.MaxSources
}

func (s *Synthesizer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return s.Logger
}
