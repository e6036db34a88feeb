package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshsymonds/mailrag/internal/config"
	"github.com/joshsymonds/mailrag/internal/metrics"
	"github.com/joshsymonds/mailrag/internal/runtime"
	"github.com/joshsymonds/mailrag/internal/server"
)

type serveConfig struct {
	addr       string
	corsOrigin string
	shutdown   time.Duration
}

func main() {
	cfg := parseServeFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailrag-serve failed", "error", err)
		os.Exit(1)
	}
}

func parseServeFlags() serveConfig {
	addr := flag.String("addr", "", "listen address (defaults to MAILRAG_HTTP_ADDR)")
	corsOrigin := flag.String("cors-origin", "", "allowed browser origin (defaults to MAILRAG_CORS_ORIGIN)")
	shutdown := flag.Duration("shutdown-timeout", 30*time.Second, "grace period for in-flight requests")
	flag.Parse()

	return serveConfig{addr: *addr, corsOrigin: *corsOrigin, shutdown: *shutdown}
}

func run(cfg serveConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.addr != "" {
		appCfg.HTTPAddr = cfg.addr
	}
	if cfg.corsOrigin != "" {
		appCfg.CORSOrigin = cfg.corsOrigin
	}
	logger := runtime.NewLogger(os.Stderr, appCfg.LogLevel, appCfg.LogFormat)

	prompt := func(authURL string) {
		logger.Info("open this URL to authorize mailrag", "url", authURL)
	}
	app, err := runtime.NewApp(ctx, appCfg, logger, prompt)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() { _ = app.Close() }()

	srv := &http.Server{
		Addr: appCfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Asker:       app.Pipeline,
			Credentials: app.Credentials,
			Mailbox:     app.Retriever,
			History:     app.History,
			Metrics:     metrics.Handler(app.Registry),
			CORSOrigin:  appCfg.CORSOrigin,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", appCfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), cfg.shutdown)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
