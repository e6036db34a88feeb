package gmail

import "strings"

type MessageID string
type LabelID string

// Label is a Gmail system folder or user label.
type Label struct {
	ID   LabelID `json:"id"`
	Name string  `json:"name"`
	Type string  `json:"type"`
}

// Profile is the cheap authenticated read used for token probes and user info.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
}

type Header struct {
	Name  string
	Value string
}

// Part is one node of a MIME payload tree. Data holds the body exactly as the
// provider transports it (URL-safe base64); a node has either Data or Parts.
type Part struct {
	MimeType string
	Filename string
	Headers  []Header
	Data     string
	Parts    []Part
}

// Header returns the first header value matching name, case-insensitively.
func (p Part) Header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

type Message struct {
	ID       MessageID
	ThreadID string
	LabelIDs []LabelID
	Snippet  string
	Payload  Part
}

type Query struct {
	Raw string // Gmail query string, already formed (e.g., `(in:inbox) (from:acme OR Acme*)`)
}

type ListPage struct {
	IDs                []MessageID
	NextPageToken      string
	ResultSizeEstimate int64
}
