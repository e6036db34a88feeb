// internal/runtime/auth.go wires the OAuth client, credential store and
// Gmail service together.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joshsymonds/mailrag/internal/credential"
	gc "github.com/joshsymonds/mailrag/internal/gmail"
)

const (
	accessTokenKey  = "access-token"
	refreshGrantKey = "refresh-grant"
)

// OAuthConfig reads the installed-app client secret at path and requests
// read-only mail access.
func OAuthConfig(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client secret: %w", err)
	}
	return cfg, nil
}

// CredentialOptions configures NewCredentialStore.
type CredentialOptions struct {
	SecretFile string
	KeyringDir string
	Listen     string
	Prompt     func(authURL string)
	Metrics    credential.RefreshRecorder
}

// NewCredentialStore opens the keyring and returns a Store whose identity
// runs the loopback consent flow.
func NewCredentialStore(opts CredentialOptions, logger *slog.Logger) (*credential.Store, error) {
	oauthCfg, err := OAuthConfig(opts.SecretFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.KeyringDir, 0o700); err != nil {
		return nil, fmt.Errorf("create keyring dir: %w", err)
	}
	ring, err := credential.OpenKeyring(opts.KeyringDir)
	if err != nil {
		return nil, err
	}
	identity := &credential.OAuthIdentity{
		Config: oauthCfg,
		Cache:  credential.KeyringVault{Ring: ring, Key: refreshGrantKey},
		Listen: opts.Listen,
		Prompt: opts.Prompt,
		Logger: logger,
	}
	store := credential.NewStore(identity, credential.KeyringVault{Ring: ring, Key: accessTokenKey}, logger)
	store.Metrics = opts.Metrics
	return store, nil
}

// NewGmailService builds a Gmail service whose requests carry the stored
// credential and retry once after a silent refresh.
func NewGmailService(ctx context.Context, store *credential.Store, opts ...option.ClientOption) (*gmail.Service, error) {
	httpClient := &http.Client{Transport: store.Transport(nil)}
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// NewGmailClient returns the provider client on top of NewGmailService.
func NewGmailClient(ctx context.Context, store *credential.Store, format FetchFormat, opts ...option.ClientOption) (gc.Client, error) {
	svc, err := NewGmailService(ctx, store, opts...)
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(svc, format), nil
}
