package credential

import (
	"errors"
	"fmt"
)

// AuthKind classifies authentication failures.
type AuthKind int

const (
	NotAuthenticated AuthKind = iota
	SilentRefreshFailed
	Revoked
)

func (k AuthKind) String() string {
	switch k {
	case NotAuthenticated:
		return "not authenticated"
	case SilentRefreshFailed:
		return "silent refresh failed"
	case Revoked:
		return "credential revoked"
	default:
		return "auth error"
	}
}

// AuthError is returned whenever a usable credential cannot be produced.
type AuthError struct {
	Kind AuthKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrNoGrant means no cached grant exists and the flow may not prompt.
var ErrNoGrant = errors.New("no cached grant, interactive consent required")

// IsAuthError reports whether err carries an AuthError of any kind.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
