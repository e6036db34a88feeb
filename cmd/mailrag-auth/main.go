package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/mailrag/internal/config"
	"github.com/joshsymonds/mailrag/internal/runtime"
)

type authConfig struct {
	command string
	listen  string
}

func main() {
	cfg := parseAuthFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailrag-auth failed", "error", err)
		os.Exit(1)
	}
}

func parseAuthFlags() authConfig {
	listen := flag.String("listen", "", "loopback address for the OAuth redirect (defaults to MAILRAG_OAUTH_LISTEN)")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: mailrag-auth [flags] login|logout|status|labels|profile")
		flag.PrintDefaults()
	}
	flag.Parse()

	return authConfig{command: flag.Arg(0), listen: *listen}
}

func run(cfg authConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.listen != "" {
		appCfg.OAuthListen = cfg.listen
	}
	logger := runtime.NewLogger(os.Stderr, appCfg.LogLevel, appCfg.LogFormat)

	app, err := runtime.NewApp(ctx, appCfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() { _ = app.Close() }()

	switch cfg.command {
	case "login":
		if _, err := app.Credentials.Authenticate(ctx, true); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Println("Signed in.")
	case "logout":
		app.Credentials.Revoke(ctx)
		fmt.Println("Signed out.")
	case "status":
		if app.Credentials.CheckValid(ctx) {
			fmt.Println("authenticated")
		} else {
			fmt.Println("not authenticated")
		}
	case "labels":
		labels, err := app.Retriever.Labels(ctx)
		if err != nil {
			return err
		}
		for _, l := range labels {
			fmt.Printf("%-40s %s\n", l.Name, l.Type)
		}
	case "profile":
		info, err := app.Retriever.UserInfo(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cfg.command)
	}
	return nil
}
