package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joshsymonds/mailrag/internal/config"
	"github.com/joshsymonds/mailrag/internal/pipeline"
	"github.com/joshsymonds/mailrag/internal/query"
	"github.com/joshsymonds/mailrag/internal/render"
	"github.com/joshsymonds/mailrag/internal/runtime"
)

type askConfig struct {
	question string
	mode     string
	folders  string
	model    string
	apiKey   string
	width    int
	jsonOut  bool
}

func main() {
	cfg := parseAskFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailrag-ask failed", "error", err)
		os.Exit(1)
	}
}

func parseAskFlags() askConfig {
	mode := flag.String("mode", "manual", "folder scope: manual or ai")
	folders := flag.String("folders", "INBOX", "comma separated folders for manual scope")
	model := flag.String("model", "", "model id (defaults to GEMINI_MODEL)")
	apiKey := flag.String("key", "", "model API key (defaults to GEMINI_API_KEY)")
	width := flag.Int("width", 80, "wrap width for the answer")
	jsonOut := flag.Bool("json", false, "print the structured answer as JSON")
	flag.Parse()

	return askConfig{
		question: strings.Join(flag.Args(), " "),
		mode:     *mode,
		folders:  *folders,
		model:    *model,
		apiKey:   *apiKey,
		width:    *width,
		jsonOut:  *jsonOut,
	}
}

func run(cfg askConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if strings.TrimSpace(cfg.question) == "" {
		return fmt.Errorf("usage: mailrag-ask [flags] <question>")
	}
	scope, err := query.ParseScope(cfg.mode, splitList(cfg.folders))
	if err != nil {
		return fmt.Errorf("parse folder scope: %w", err)
	}

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := runtime.NewLogger(os.Stderr, appCfg.LogLevel, appCfg.LogFormat)

	app, err := runtime.NewApp(ctx, appCfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() { _ = app.Close() }()

	res, err := app.Pipeline.Run(ctx, pipeline.Request{
		Question: cfg.question,
		Scope:    scope,
		Model:    cfg.model,
		APIKey:   cfg.apiKey,
	})
	return writeResult(os.Stdout, os.Stderr, cfg, res, err)
}

// writeResult prints the answer or the failure. A failed cycle is always
// returned as an error so the process exits non-zero, also with -json.
func writeResult(stdout, stderr io.Writer, cfg askConfig, res pipeline.Result, runErr error) error {
	if runErr != nil {
		if cfg.jsonOut {
			if err := printJSON(stdout, pipeline.Response{Error: runErr.Error()}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(stderr, render.Error(runErr.Error()))
		}
		return fmt.Errorf("answer question: %w", runErr)
	}

	if cfg.jsonOut {
		result, err := res.Answer.JSON()
		if err != nil {
			return err
		}
		return printJSON(stdout, pipeline.Response{Success: true, Result: result})
	}
	fmt.Fprintln(stdout, render.Answer(res.Answer, render.Options{Width: cfg.width, Query: res.Query}))
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func splitList(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
