package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joshsymonds/mailrag/internal/llm"
)

// Request is one rewrite input.
type Request struct {
	Question string
	Scope    FolderScope
	Model    string
}

// Rewritten is the search expression plus the folders it covers.
type Rewritten struct {
	Query   string
	Folders []string
}

// Rewriter converts questions into Gmail queries through a model call.
type Rewriter struct {
	LLM    llm.Client
	Now    func() time.Time
	Logger *slog.Logger
}

func NewRewriter(client llm.Client, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Rewriter{LLM: client, Now: time.Now, Logger: logger}
}

// Rewrite produces the search expression for req. A failing model call is
// returned as is; no local fallback query is built.
func (r *Rewriter) Rewrite(ctx context.Context, req Request) (Rewritten, error) {
	today := r.now().Format(time.DateOnly)

	if req.Scope.Mode() == ModeAIAssisted {
		raw, err := r.LLM.Generate(ctx, llm.NewPrompt(req.Model, renderPrompt(fullQueryPrompt, today, req.Question)))
		if err != nil {
			return Rewritten{}, fmt.Errorf("rewrite query: %w", err)
		}
		q := Clean(raw)
		folders := InferFolders(q)
		r.logger().DebugContext(ctx, "query rewritten", slog.String("mode", "ai"), slog.String("query", q), slog.Any("folders", folders))
		return Rewritten{Query: q, Folders: folders}, nil
	}

	folders := req.Scope.Folders()
	if len(folders) == 0 {
		return Rewritten{}, ErrEmptyScope
	}
	raw, err := r.LLM.Generate(ctx, llm.NewPrompt(req.Model, renderPrompt(fragmentPrompt, today, req.Question)))
	if err != nil {
		return Rewritten{}, fmt.Errorf("rewrite query: %w", err)
	}
	q := Assemble(ScopeExpression(folders), Clean(raw))
	r.logger().DebugContext(ctx, "query rewritten", slog.String("mode", "manual"), slog.String("query", q))
	return Rewritten{Query: q, Folders: folders}, nil
}

func (r *Rewriter) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Rewriter) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return r.Logger
}
