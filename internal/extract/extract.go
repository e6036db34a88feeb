// Package extract turns Gmail payload trees into grounding documents.
package extract

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"

	"github.com/joshsymonds/mailrag/internal/gmail"
)

// MaxBodyChars bounds a document body, counted in characters of decoded text.
const MaxBodyChars = 40000

const linkPrefix = "https://mail.google.com/mail/u/0/#all/"

// Document is the normalized form of one message handed to synthesis.
type Document struct {
	ID      gmail.MessageID `json:"id"`
	Subject string          `json:"subject"`
	From    string          `json:"from"`
	Date    string          `json:"date"`
	Body    string          `json:"body"`
	Link    string          `json:"link"`
}

// Link returns the web client URL for a message.
func Link(id gmail.MessageID) string {
	return linkPrefix + string(id)
}

// FromMessage builds the Document for msg.
func FromMessage(msg gmail.Message) Document {
	return Document{
		ID:      msg.ID,
		Subject: headerOr(msg.Payload, "Subject", "No Subject"),
		From:    headerOr(msg.Payload, "From", "Unknown Sender"),
		Date:    headerOr(msg.Payload, "Date", "Unknown Date"),
		Body:    Body(msg.Payload),
		Link:    Link(msg.ID),
	}
}

// Body returns the readable text of a payload tree. Plain text wins over HTML
// whenever both are present; a part that fails to decode contributes nothing.
func Body(payload gmail.Part) string {
	var body string
	switch {
	case payload.Data != "":
		text := decodePart(payload)
		if mediaType(payload) == "text/html" {
			text = HTMLToText(text)
		}
		body = text
	case len(payload.Parts) > 0:
		var b buffers
		b.walk(payload.Parts)
		body = b.pick()
	}
	return Truncate(body, MaxBodyChars)
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

type buffers struct {
	plain strings.Builder
	html  strings.Builder
}

// walk accumulates plain and html bodies separately at every depth so that
// siblings at different nesting levels keep their own buffer.
func (b *buffers) walk(parts []gmail.Part) {
	for _, p := range parts {
		switch mt := mediaType(p); {
		case mt == "text/plain" && p.Data != "":
			b.plain.WriteString(decodePart(p))
		case mt == "text/html" && p.Data != "":
			b.html.WriteString(decodePart(p))
		case len(p.Parts) > 0:
			b.walk(p.Parts)
		}
	}
}

func (b *buffers) pick() string {
	if plain := b.plain.String(); strings.TrimSpace(plain) != "" {
		return plain
	}
	if html := b.html.String(); strings.TrimSpace(html) != "" {
		return HTMLToText(html)
	}
	return ""
}

func decodePart(p gmail.Part) string {
	raw, ok := decodeData(p.Data)
	if !ok {
		return ""
	}
	if label := partCharset(p); label != "" && !isUTF8(label) {
		r, err := charset.Reader(label, bytes.NewReader(raw))
		if err == nil {
			if converted, err := io.ReadAll(r); err == nil {
				raw = converted
			}
		}
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

// decodeData reverses Gmail's base64 transport encoding. The URL-safe
// alphabet is mapped onto the standard one, so bodies carrying either
// alphabet, padded or not, decode.
func decodeData(data string) ([]byte, bool) {
	data = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', ' ':
			return -1
		case '-':
			return '+'
		case '_':
			return '/'
		}
		return r
	}, data)
	if raw, err := base64.StdEncoding.DecodeString(data); err == nil {
		return raw, true
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return nil, false
	}
	return raw, true
}

func mediaType(p gmail.Part) string {
	mt := p.MimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func partCharset(p gmail.Part) string {
	ct := p.Header("Content-Type")
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func isUTF8(label string) bool {
	switch strings.ToLower(label) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

func headerOr(p gmail.Part, name, fallback string) string {
	if v := p.Header(name); v != "" {
		return v
	}
	return fallback
}
