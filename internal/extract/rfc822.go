package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/joshsymonds/mailrag/internal/gmail"
)

// ParseRFC822 reads a raw message into the same payload tree the Gmail "full"
// format returns. Leaf bodies are stored transfer-decoded and converted to
// UTF-8, so their Content-Type is rewritten to declare utf-8.
func ParseRFC822(r io.Reader) (gmail.Part, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return gmail.Part{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	root := gmail.Part{MimeType: "multipart/mixed"}
	fields := mr.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		root.Headers = append(root.Headers, gmail.Header{Name: fields.Key(), Value: value})
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return root, fmt.Errorf("next part: %w", err)
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			mt, _, _ := h.ContentType()
			if mt == "" {
				mt = "text/plain"
			}
			body, err := io.ReadAll(p.Body)
			if err != nil {
				// keep the part so structure survives; it decodes to nothing
				root.Parts = append(root.Parts, gmail.Part{MimeType: mt})
				continue
			}
			root.Parts = append(root.Parts, gmail.Part{
				MimeType: mt,
				Headers:  []gmail.Header{{Name: "Content-Type", Value: mt + "; charset=utf-8"}},
				Data:     base64.URLEncoding.EncodeToString(body),
			})
		case *mail.AttachmentHeader:
			mt, _, _ := h.ContentType()
			name, _ := h.Filename()
			root.Parts = append(root.Parts, gmail.Part{MimeType: mt, Filename: name})
		}
	}
	return root, nil
}
