// Package server exposes the question pipeline and account operations over
// HTTP for a browser front end.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/joshsymonds/mailrag/internal/gmail"
	"github.com/joshsymonds/mailrag/internal/history"
	"github.com/joshsymonds/mailrag/internal/pipeline"
	"github.com/joshsymonds/mailrag/internal/retriever"
)

// Asker runs one question cycle.
type Asker interface {
	Ask(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Credentials manages the mail account session.
type Credentials interface {
	CheckValid(ctx context.Context) bool
	Authenticate(ctx context.Context, interactive bool) (*oauth2.Token, error)
	Revoke(ctx context.Context)
}

// Mailbox lists account metadata.
type Mailbox interface {
	Labels(ctx context.Context) ([]gmail.Label, error)
	UserInfo(ctx context.Context) (retriever.UserInfo, error)
}

// History reads and clears the last answer.
type History interface {
	Last(ctx context.Context) (history.Entry, bool, error)
	Clear(ctx context.Context) error
}

// Deps collects the router dependencies.
type Deps struct {
	Asker       Asker
	Credentials Credentials
	Mailbox     Mailbox
	History     History
	Metrics     http.Handler
	CORSOrigin  string
	Logger      *slog.Logger
}

// NewRouter returns the HTTP handler for every endpoint.
//
// Middleware order: Recoverer -> CORS -> request logging.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	h := &handlers{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if deps.CORSOrigin != "" {
		r.Use(NewCORSMiddleware(deps.CORSOrigin))
	}
	r.Use(NewLoggingMiddleware(logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", h.ask)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", h.authStatus)
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
		})

		r.Get("/labels", h.labels)
		r.Get("/profile", h.profile)

		r.Get("/last", h.last)
		r.Delete("/last", h.clearLast)
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	return r
}
