package credential

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultProbeURL  = "https://gmail.googleapis.com/gmail/v1/users/me/profile"
	DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	defaultHTTPTimeout = 15 * time.Second
)

// Identity acquires tokens from the platform identity service.
type Identity interface {
	// Token returns a fresh token. With interactive=false it must fail fast
	// instead of prompting the user.
	Token(ctx context.Context, interactive bool) (*oauth2.Token, error)
	// ClearCache drops any platform-level cached grant.
	ClearCache(ctx context.Context) error
}

// RefreshRecorder observes silent refresh attempts.
type RefreshRecorder interface {
	RecordRefresh(ok bool)
}

// Store owns the single mail-provider credential shared by every stage.
type Store struct {
	Identity  Identity
	Vault     Vault
	HTTP      *http.Client
	ProbeURL  string
	RevokeURL string
	Logger    *slog.Logger
	Metrics   RefreshRecorder

	mu     sync.RWMutex
	token   *oauth2.Token
	loaded  bool
	revoked bool
	flight singleflight.Group
}

// NewStore constructs a Store with sane defaults.
func NewStore(identity Identity, vault Vault, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if vault == nil {
		vault = &MemoryVault{}
	}
	return &Store{
		Identity:  identity,
		Vault:     vault,
		HTTP:      &http.Client{Timeout: defaultHTTPTimeout},
		ProbeURL:  DefaultProbeURL,
		RevokeURL: DefaultRevokeURL,
		Logger:    logger,
	}
}

// AccessToken returns the stored bearer token.
func (s *Store) AccessToken() (string, error) {
	tok, err := s.current()
	if err != nil {
		return "", &AuthError{Kind: NotAuthenticated, Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		s.mu.RLock()
		revoked := s.revoked
		s.mu.RUnlock()
		if revoked {
			return "", &AuthError{Kind: Revoked}
		}
		return "", &AuthError{Kind: NotAuthenticated}
	}
	return tok.AccessToken, nil
}

// CheckValid probes the provider with the stored token. Unauthorized evicts the
// credential; any other failure reports false without surfacing an error.
func (s *Store) CheckValid(ctx context.Context) bool {
	token, err := s.AccessToken()
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ProbeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.HTTP.Do(req)
	if err != nil {
		s.Logger.DebugContext(ctx, "credential probe failed", slog.Any("error", err))
		return false
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == http.StatusUnauthorized:
		s.Logger.InfoContext(ctx, "stored credential rejected, evicting")
		s.evict(ctx)
		return false
	default:
		s.Logger.WarnContext(ctx, "credential probe returned unexpected status", slog.Int("status", resp.StatusCode))
		return false
	}
}

// Authenticate acquires and persists a new credential.
func (s *Store) Authenticate(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	if s.Identity == nil {
		return nil, &AuthError{Kind: NotAuthenticated, Err: fmt.Errorf("no identity flow configured")}
	}
	tok, err := s.Identity.Token(ctx, interactive)
	if err != nil {
		kind := NotAuthenticated
		if !interactive {
			kind = SilentRefreshFailed
		}
		return nil, &AuthError{Kind: kind, Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, &AuthError{Kind: NotAuthenticated, Err: fmt.Errorf("identity returned empty token")}
	}
	if err := s.Vault.Save(tok); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	s.mu.Lock()
	s.token = tok
	s.loaded = true
	s.revoked = false
	s.mu.Unlock()
	return tok, nil
}

// Refresh silently renews the credential after stale was rejected. Concurrent
// callers share one identity round-trip, and a caller whose stale token was
// already replaced gets the replacement without a new round-trip.
func (s *Store) Refresh(ctx context.Context, stale string) (*oauth2.Token, error) {
	if tok := s.replacedSince(stale); tok != nil {
		return tok, nil
	}
	v, err, _ := s.flight.Do("refresh", func() (any, error) {
		if tok := s.replacedSince(stale); tok != nil {
			return tok, nil
		}
		tok, err := s.Authenticate(context.WithoutCancel(ctx), false)
		if s.Metrics != nil {
			s.Metrics.RecordRefresh(err == nil)
		}
		return tok, err
	})
	if err != nil {
		s.Logger.WarnContext(ctx, "silent refresh failed", slog.Any("error", err))
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// Revoke revokes the credential remotely on a best-effort basis and always
// leaves the store unauthenticated.
func (s *Store) Revoke(ctx context.Context) {
	if token, err := s.AccessToken(); err == nil {
		if rerr := s.revokeRemote(ctx, token); rerr != nil {
			s.Logger.WarnContext(ctx, "remote revocation failed", slog.Any("error", rerr))
		}
	}
	s.evict(ctx)
	s.mu.Lock()
	s.revoked = true
	s.mu.Unlock()
	if s.Identity != nil {
		if err := s.Identity.ClearCache(ctx); err != nil {
			s.Logger.WarnContext(ctx, "clear identity cache failed", slog.Any("error", err))
		}
	}
}

func (s *Store) revokeRemote(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Store) current() (*oauth2.Token, error) {
	s.mu.RLock()
	if s.loaded {
		tok := s.token
		s.mu.RUnlock()
		return tok, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.token, nil
	}
	tok, err := s.Vault.Load()
	if err != nil {
		return nil, err
	}
	s.token = tok
	s.loaded = true
	return tok, nil
}

func (s *Store) replacedSince(stale string) *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != nil && s.token.AccessToken != "" && s.token.AccessToken != stale {
		return s.token
	}
	return nil
}

func (s *Store) evict(ctx context.Context) {
	s.mu.Lock()
	s.token = nil
	s.loaded = true
	s.mu.Unlock()
	if err := s.Vault.Delete(); err != nil {
		s.Logger.WarnContext(ctx, "delete stored credential failed", slog.Any("error", err))
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
