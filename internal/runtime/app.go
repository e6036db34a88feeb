package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joshsymonds/mailrag/internal/config"
	"github.com/joshsymonds/mailrag/internal/credential"
	gc "github.com/joshsymonds/mailrag/internal/gmail"
	"github.com/joshsymonds/mailrag/internal/history"
	"github.com/joshsymonds/mailrag/internal/llm"
	"github.com/joshsymonds/mailrag/internal/metrics"
	"github.com/joshsymonds/mailrag/internal/pipeline"
	"github.com/joshsymonds/mailrag/internal/rate"
	"github.com/joshsymonds/mailrag/internal/retriever"
)

// App holds every long-lived component of a mailrag process.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Registry    *prometheus.Registry
	Metrics     *metrics.Collector
	Credentials *credential.Store
	Gmail       gc.Client
	Retriever   *retriever.Service
	History     *history.Store
	Pipeline    *pipeline.Service
}

// NewApp wires the components described by cfg. Prompt is shown the consent
// URL during interactive login; nil prints it to stderr.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, prompt func(string)) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	store, err := NewCredentialStore(CredentialOptions{
		SecretFile: cfg.CredentialsFile(),
		KeyringDir: cfg.KeyringDir,
		Listen:     cfg.OAuthListen,
		Prompt:     prompt,
		Metrics:    collector,
	}, logger)
	if err != nil {
		return nil, err
	}

	client, err := NewGmailClient(ctx, store, FetchFormat(cfg.FetchFormat))
	if err != nil {
		return nil, err
	}
	ret := retriever.NewService(client, rate.NewTokenBucket(cfg.RPS), logger, retriever.Options{
		SearchLimit: cfg.SearchLimit,
		FetchLimit:  cfg.FetchLimit,
	})

	hist, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	pipe := pipeline.NewService(store, ret, llm.GeminiFactory(nil), logger)
	pipe.History = hist
	pipe.Metrics = collector
	pipe.DefaultModel = cfg.GeminiModel
	pipe.DefaultAPIKey = cfg.GeminiAPIKey
	pipe.Language = cfg.Language
	pipe.MaxSources = cfg.FetchLimit

	return &App{
		Config:      cfg,
		Logger:      logger,
		Registry:    reg,
		Metrics:     collector,
		Credentials: store,
		Gmail:       client,
		Retriever:   ret,
		History:     hist,
		Pipeline:    pipe,
	}, nil
}

// Close releases the history database.
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	return errors.Join(errs...)
}
