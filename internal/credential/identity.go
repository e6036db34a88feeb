package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const callbackPath = "/callback"

// OAuthIdentity implements Identity with an installed-app OAuth flow: a
// loopback redirect for interactive consent and the refresh-token grant for
// silent renewal. Cache holds the refresh-capable grant.
type OAuthIdentity struct {
	Config *oauth2.Config
	Cache  Vault
	Listen string
	Prompt func(authURL string)
	Logger *slog.Logger
}

// Token implements Identity.
func (o *OAuthIdentity) Token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	cached, err := o.Cache.Load()
	if err != nil {
		o.logger().WarnContext(ctx, "load cached grant failed", slog.Any("error", err))
	}
	if cached != nil && cached.RefreshToken != "" {
		src := o.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cached.RefreshToken})
		tok, rerr := src.Token()
		if rerr == nil {
			return o.remember(tok, cached.RefreshToken)
		}
		if !interactive {
			return nil, fmt.Errorf("refresh grant: %w", rerr)
		}
		o.logger().WarnContext(ctx, "refresh grant rejected, falling back to consent", slog.Any("error", rerr))
	}
	if !interactive {
		return nil, ErrNoGrant
	}
	return o.consent(ctx)
}

// ClearCache implements Identity.
func (o *OAuthIdentity) ClearCache(_ context.Context) error {
	return o.Cache.Delete()
}

func (o *OAuthIdentity) consent(ctx context.Context) (*oauth2.Token, error) {
	listen := o.Listen
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}

	cfg := *o.Config
	cfg.RedirectURL = "http://" + ln.Addr().String() + callbackPath
	state := uuid.NewString()

	codes := make(chan string, 1)
	failures := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != callbackPath {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			switch {
			case q.Get("state") != state:
				http.Error(w, "state mismatch", http.StatusBadRequest)
				offer(failures, errors.New("oauth state mismatch"))
			case q.Get("error") != "":
				http.Error(w, "authorization denied", http.StatusForbidden)
				offer(failures, fmt.Errorf("authorization denied: %s", q.Get("error")))
			default:
				_, _ = w.Write([]byte("mailrag is connected. You can close this window.\n"))
				offer(codes, q.Get("code"))
			}
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.WithoutCancel(ctx)) }()

	prompt := o.Prompt
	if prompt == nil {
		prompt = func(u string) { fmt.Fprintf(os.Stderr, "Open this URL to authorize mailrag:\n\n  %s\n\n", u) }
	}
	prompt(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for consent: %w", ctx.Err())
	case err := <-failures:
		return nil, err
	case code = <-codes:
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return o.remember(tok, "")
}

func (o *OAuthIdentity) remember(tok *oauth2.Token, refresh string) (*oauth2.Token, error) {
	if tok.RefreshToken == "" {
		tok.RefreshToken = refresh
	}
	if tok.RefreshToken != "" {
		if err := o.Cache.Save(tok); err != nil {
			return nil, fmt.Errorf("cache grant: %w", err)
		}
	}
	return tok, nil
}

func (o *OAuthIdentity) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return o.Logger
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

var _ Identity = (*OAuthIdentity)(nil)
