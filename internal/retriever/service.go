// Package retriever runs Gmail searches and fetches the messages that ground
// an answer.
package retriever

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/joshsymonds/mailrag/internal/gmail"
	"github.com/joshsymonds/mailrag/internal/rate"
)

const (
	DefaultSearchLimit = 10
	DefaultFetchLimit  = 10

	maxSearchLimit = 500
)

// Options bounds one retrieval.
type Options struct {
	SearchLimit int
	FetchLimit  int
}

// SkippedFetch records a message whose fetch failed and was left out.
type SkippedFetch struct {
	ID  gmail.MessageID
	Err error
}

// FetchReport is the outcome of fetching a batch: the messages that arrived,
// in search order, and the ones that were skipped.
type FetchReport struct {
	Messages []gmail.Message
	Skipped  []SkippedFetch
}

// UserInfo describes the connected account.
type UserInfo struct {
	gmail.Profile
	ProfilePicture string `json:"profilePicture"`
}

// Service executes searches and fetches against Gmail.
type Service struct {
	Client  gmail.Client
	Limiter rate.Limiter
	Logger  *slog.Logger
	Options Options
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.SearchLimit > maxSearchLimit {
		opts.SearchLimit = maxSearchLimit
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultFetchLimit
	}
	return &Service{Client: client, Limiter: limiter, Logger: logger, Options: opts}
}

// Search runs one single-page search and returns hits in relevance order.
func (s *Service) Search(ctx context.Context, q string) ([]gmail.MessageID, error) {
	if err := s.wait(ctx, "search"); err != nil {
		return nil, err
	}
	page, err := s.Client.Search(ctx, gmail.Query{Raw: q}, s.Options.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	s.Logger.DebugContext(ctx, "search finished",
		slog.String("query", q),
		slog.Int("hits", len(page.IDs)),
		slog.Int64("estimate", page.ResultSizeEstimate),
	)
	return page.IDs, nil
}

// FetchAll fetches the first FetchLimit ids one at a time, in order. A failed
// fetch is logged and recorded as skipped; it never aborts the batch. The
// returned error is non-nil only when ctx ends while waiting for the limiter.
func (s *Service) FetchAll(ctx context.Context, ids []gmail.MessageID) (FetchReport, error) {
	limit := s.Options.FetchLimit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	report := FetchReport{Messages: make([]gmail.Message, 0, len(ids))}
	for _, id := range ids {
		if err := s.wait(ctx, "get message"); err != nil {
			return report, err
		}
		msg, err := s.Client.GetMessage(ctx, id)
		if err != nil {
			s.Logger.WarnContext(ctx, "skipping message", slog.String("id", string(id)), slog.Any("error", err))
			report.Skipped = append(report.Skipped, SkippedFetch{ID: id, Err: err})
			continue
		}
		report.Messages = append(report.Messages, msg)
	}
	return report, nil
}

// Labels returns every label sorted by name.
func (s *Service) Labels(ctx context.Context) ([]gmail.Label, error) {
	if err := s.wait(ctx, "list labels"); err != nil {
		return nil, err
	}
	labels, err := s.Client.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		a, b := strings.ToLower(labels[i].Name), strings.ToLower(labels[j].Name)
		if a != b {
			return a < b
		}
		return labels[i].Name < labels[j].Name
	})
	return labels, nil
}

// UserInfo returns the account profile with a Gravatar picture URL.
func (s *Service) UserInfo(ctx context.Context) (UserInfo, error) {
	if err := s.wait(ctx, "get profile"); err != nil {
		return UserInfo{}, err
	}
	p, err := s.Client.Profile(ctx)
	if err != nil {
		return UserInfo{}, fmt.Errorf("get profile: %w", err)
	}
	return UserInfo{Profile: p, ProfilePicture: GravatarURL(p.EmailAddress)}, nil
}

// GravatarURL returns the identicon-backed avatar URL for an address.
func GravatarURL(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := md5.Sum([]byte(email))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?s=80&d=identicon"
}

func (s *Service) wait(ctx context.Context, operation string) error {
	if s.Limiter == nil {
		return nil
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
