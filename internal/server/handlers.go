package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/joshsymonds/mailrag/internal/credential"
	"github.com/joshsymonds/mailrag/internal/gmail"
	"github.com/joshsymonds/mailrag/internal/pipeline"
	"github.com/joshsymonds/mailrag/internal/query"
)

const maxAskBody = 64 << 10

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

type folderScopeBody struct {
	Mode    string   `json:"mode"`
	Folders []string `json:"folders"`
}

type askBody struct {
	Question    string          `json:"question"`
	FolderScope folderScopeBody `json:"folderScope"`
	ModelID     string          `json:"modelId"`
	ModelKey    string          `json:"modelKey"`
}

type errorBody struct {
	Error string `json:"error"`
}

type lastBody struct {
	CycleID   string          `json:"cycleId"`
	Question  string          `json:"question"`
	Query     string          `json:"query"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	var body askBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAskBody))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, pipeline.Response{Error: "invalid request body: " + err.Error()})
		return
	}
	scope, err := query.ParseScope(body.FolderScope.Mode, body.FolderScope.Folders)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, pipeline.Response{Error: err.Error()})
		return
	}

	resp, err := h.deps.Asker.Ask(r.Context(), pipeline.Request{
		Question: body.Question,
		Scope:    scope,
		Model:    body.ModelID,
		APIKey:   body.ModelKey,
	})
	if errors.Is(err, pipeline.ErrCanceled) {
		h.logger.InfoContext(r.Context(), "client went away before the answer was ready")
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, pipeline.Response{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) authStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": h.deps.Credentials.CheckValid(r.Context())})
}

// login runs the interactive consent flow; the response is written once the
// user finished it in the browser.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	if _, err := h.deps.Credentials.Authenticate(r.Context(), true); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline.Response{Success: true})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.deps.Credentials.Revoke(r.Context())
	writeJSON(w, http.StatusOK, pipeline.Response{Success: true})
}

func (h *handlers) labels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.deps.Mailbox.Labels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.Mailbox.UserInfo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) last(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := h.deps.History.Last(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no answer yet"})
		return
	}
	writeJSON(w, http.StatusOK, lastBody{
		CycleID:   entry.CycleID,
		Question:  entry.Question,
		Query:     entry.Query,
		Result:    json.RawMessage(entry.Result),
		CreatedAt: entry.CreatedAt,
	})
}

func (h *handlers) clearLast(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.History.Clear(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps auth failures to 401 and provider failures to 502.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var perr *gmail.ProviderError
	switch {
	case credential.IsAuthError(err):
		status = http.StatusUnauthorized
	case errors.As(err, &perr) && perr.Unauthorized():
		status = http.StatusUnauthorized
	case errors.As(err, &perr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
