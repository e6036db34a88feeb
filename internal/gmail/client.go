package gmail

import (
	"context"
	"fmt"
	"net/http"
)

// Client is the narrow Gmail surface required by mailrag.
type Client interface {
	Profile(ctx context.Context) (Profile, error)
	ListLabels(ctx context.Context) ([]Label, error)
	Search(ctx context.Context, q Query, limit int) (ListPage, error)
	GetMessage(ctx context.Context, id MessageID) (Message, error)
}

// ProviderError reports a non-2xx response from the mail API.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	text := http.StatusText(e.Status)
	if text == "" {
		text = "unexpected status"
	}
	if e.Err != nil {
		return fmt.Sprintf("gmail %s: %d %s: %v", e.Op, e.Status, text, e.Err)
	}
	return fmt.Sprintf("gmail %s: %d %s", e.Op, e.Status, text)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Unauthorized reports whether the provider rejected the bearer token.
func (e *ProviderError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }
