// internal/runtime/googleapi.go adapts *gmail.Service to our small interface
package runtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/mailrag/internal/extract"
	gc "github.com/joshsymonds/mailrag/internal/gmail"
)

// FetchFormat selects how message bodies are requested.
type FetchFormat string

const (
	FormatFull FetchFormat = "full"
	FormatRaw  FetchFormat = "raw"
)

type googleClient struct {
	svc    *gmail.Service
	format FetchFormat
}

func NewGoogleAPIClient(svc *gmail.Service, format FetchFormat) *googleClient {
	if format != FormatRaw {
		format = FormatFull
	}
	return &googleClient{svc: svc, format: format}
}

func (g *googleClient) Profile(ctx context.Context) (gc.Profile, error) {
	p, err := g.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return gc.Profile{}, providerError("get profile", err)
	}
	return gc.Profile{EmailAddress: p.EmailAddress, MessagesTotal: p.MessagesTotal, ThreadsTotal: p.ThreadsTotal}, nil
}

func (g *googleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	lr, err := g.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, providerError("list labels", err)
	}
	labels := make([]gc.Label, 0, len(lr.Labels))
	for _, l := range lr.Labels {
		labels = append(labels, gc.Label{ID: gc.LabelID(l.Id), Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

func (g *googleClient) Search(ctx context.Context, q gc.Query, limit int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List("me").Q(q.Raw).MaxResults(int64(limit))
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, providerError("list messages", err)
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken, ResultSizeEstimate: res.ResultSizeEstimate}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) GetMessage(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.svc.Users.Messages.Get("me", string(id)).Format(string(g.format)).Context(ctx).Do()
	if err != nil {
		return gc.Message{}, providerError("get message", err)
	}
	out := gc.Message{
		ID:       gc.MessageID(msg.Id),
		ThreadID: msg.ThreadId,
		LabelIDs: toLabelIDs(msg.LabelIds),
		Snippet:  msg.Snippet,
	}
	if g.format == FormatRaw {
		raw, err := decodeRaw(msg.Raw)
		if err != nil {
			return gc.Message{}, fmt.Errorf("decode raw message %s: %w", id, err)
		}
		payload, err := extract.ParseRFC822(bytes.NewReader(raw))
		if err != nil {
			return gc.Message{}, fmt.Errorf("parse raw message %s: %w", id, err)
		}
		out.Payload = payload
		return out, nil
	}
	if msg.Payload != nil {
		out.Payload = toPart(msg.Payload)
	}
	return out, nil
}

func toPart(p *gmail.MessagePart) gc.Part {
	part := gc.Part{MimeType: p.MimeType, Filename: p.Filename}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, gc.Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, child := range p.Parts {
		if child != nil {
			part.Parts = append(part.Parts, toPart(child))
		}
	}
	return part
}

func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// providerError keeps the HTTP status of API failures; transport failures,
// including credential errors, are wrapped unchanged.
func providerError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &gc.ProviderError{Op: op, Status: gerr.Code, Err: err}
	}
	return fmt.Errorf("gmail %s: %w", op, err)
}

func toLabelIDs(ids []string) []gc.LabelID {
	out := make([]gc.LabelID, 0, len(ids))
	for _, id := range ids {
		out = append(out, gc.LabelID(id))
	}
	return out
}

var _ gc.Client = (*googleClient)(nil)
