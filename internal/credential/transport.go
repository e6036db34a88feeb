package credential

import (
	"net/http"
)

// Transport returns a RoundTripper that authenticates requests with the stored
// credential. An unauthorized response is retried exactly once after a silent
// refresh; a second unauthorized response is handed back to the caller.
func (s *Store) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{store: s, base: base}
}

type transport struct {
	store *Store
	base  http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.store.AccessToken()
	if err != nil {
		return nil, err
	}
	resp, err := t.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !replayable(req) {
		return resp, nil
	}
	drain(resp.Body)

	fresh, err := t.store.Refresh(req.Context(), token)
	if err != nil {
		return nil, err
	}
	retry := req
	if req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}
	return t.send(retry, fresh.AccessToken)
}

func (t *transport) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(out)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
