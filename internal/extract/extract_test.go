package extract

import (
	"encoding/base64"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/joshsymonds/mailrag/internal/gmail"
)

func enc(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func leaf(mimeType, body string) gmail.Part {
	return gmail.Part{MimeType: mimeType, Data: enc(body)}
}

func TestBody(t *testing.T) {
	tests := []struct {
		name    string
		payload gmail.Part
		want    string
	}{
		{
			name:    "inline plain",
			payload: leaf("text/plain", "hello there"),
			want:    "hello there",
		},
		{
			name:    "inline html",
			payload: leaf("text/html", "<p>Invoice <b>42</b></p>"),
			want:    "Invoice 42",
		},
		{
			name: "plain wins over html sibling",
			payload: gmail.Part{MimeType: "multipart/alternative", Parts: []gmail.Part{
				leaf("text/plain", "plain body"),
				leaf("text/html", "<p>html body</p>"),
			}},
			want: "plain body",
		},
		{
			name: "nested plain wins over shallow html",
			payload: gmail.Part{MimeType: "multipart/mixed", Parts: []gmail.Part{
				leaf("text/html", "<p>outer html</p>"),
				{MimeType: "multipart/alternative", Parts: []gmail.Part{
					leaf("text/plain", "deep plain"),
				}},
			}},
			want: "deep plain",
		},
		{
			name: "html used when plain is blank",
			payload: gmail.Part{MimeType: "multipart/alternative", Parts: []gmail.Part{
				leaf("text/plain", "  \n "),
				leaf("text/html", "<div>only html</div>"),
			}},
			want: "only html",
		},
		{
			name: "corrupt part skipped",
			payload: gmail.Part{MimeType: "multipart/mixed", Parts: []gmail.Part{
				{MimeType: "text/plain", Data: "!!!not base64!!!"},
				leaf("text/plain", "survivor"),
			}},
			want: "survivor",
		},
		{
			name: "attachments ignored",
			payload: gmail.Part{MimeType: "multipart/mixed", Parts: []gmail.Part{
				{MimeType: "application/pdf", Filename: "invoice.pdf"},
			}},
			want: "",
		},
		{
			name:    "empty tree",
			payload: gmail.Part{MimeType: "multipart/mixed"},
			want:    "",
		},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := Body(tc.payload); got != tc.want {
				t.Fatalf("Body() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBodyConcatenatesPerBuffer(t *testing.T) {
	payload := gmail.Part{MimeType: "multipart/mixed", Parts: []gmail.Part{
		leaf("text/plain", "first "),
		{MimeType: "multipart/alternative", Parts: []gmail.Part{
			leaf("text/plain", "second "),
			leaf("text/html", "<p>ignored</p>"),
		}},
		leaf("text/plain", "third"),
	}}
	if got := Body(payload); got != "first second third" {
		t.Fatalf("Body() = %q", got)
	}
}

func TestBodyUnpaddedBase64(t *testing.T) {
	p := gmail.Part{MimeType: "text/plain", Data: base64.RawURLEncoding.EncodeToString([]byte("no padding?"))}
	if got := Body(p); got != "no padding?" {
		t.Fatalf("Body() = %q", got)
	}
}

func TestBodyCharsetConversion(t *testing.T) {
	p := gmail.Part{
		MimeType: "text/plain",
		Headers:  []gmail.Header{{Name: "Content-Type", Value: `text/plain; charset="iso-8859-1"`}},
		Data:     enc("caf\xe9"),
	}
	if got := Body(p); got != "café" {
		t.Fatalf("Body() = %q", got)
	}
}

func TestBodyTruncatesOnCharacters(t *testing.T) {
	long := strings.Repeat("é", MaxBodyChars+500)
	got := Body(leaf("text/plain", long))
	if n := utf8.RuneCountInString(got); n != MaxBodyChars {
		t.Fatalf("body has %d characters, want %d", n, MaxBodyChars)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated body is not valid UTF-8")
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "paragraphs", in: "<p>Hello</p><p>World</p>", want: "Hello\n\nWorld"},
		{name: "line break", in: "Line1<br>Line2", want: "Line1\nLine2"},
		{name: "entities", in: "<div>5 &amp; 6 &lt;ok&gt;</div>", want: "5 & 6 <ok>"},
		{name: "quotes", in: "&quot;q&quot; &#39;s&#39;", want: `"q" 's'`},
		{name: "nbsp", in: "a&nbsp;b", want: "a b"},
		{name: "anchor", in: `Pay <a href="https://pay.test/i/1">here</a> now`, want: "Pay here (https://pay.test/i/1) now"},
		{name: "anchor without href", in: "<a name=\"top\">Top</a>", want: "Top"},
		{name: "script and style", in: "<style>p{color:red}</style><script>alert('x')</script>Hi", want: "Hi"},
		{name: "blank runs collapse", in: "<p>a</p>\n\n\n<p>b</p>", want: "a\n\nb"},
		{name: "headings and rows", in: "<h1>Title</h1><table><tr><td>x</td></tr></table>", want: "Title\n\nx"},
		{name: "unknown tags stripped", in: "<span class=\"x\">in</span><custom>line</custom>", want: "inline"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := HTMLToText(tc.in); got != tc.want {
				t.Fatalf("HTMLToText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFromMessage(t *testing.T) {
	msg := gmail.Message{
		ID: "18c2f",
		Payload: gmail.Part{
			MimeType: "text/plain",
			Headers: []gmail.Header{
				{Name: "subject", Value: "Invoice #7"},
				{Name: "From", Value: "Acme Billing <billing@acme.test>"},
			},
			Data: enc("Amount due: 100"),
		},
	}
	doc := FromMessage(msg)
	if doc.Subject != "Invoice #7" || doc.From != "Acme Billing <billing@acme.test>" {
		t.Fatalf("unexpected headers: %+v", doc)
	}
	if doc.Date != "Unknown Date" {
		t.Fatalf("missing date should default, got %q", doc.Date)
	}
	if doc.Link != "https://mail.google.com/mail/u/0/#all/18c2f" {
		t.Fatalf("link = %q", doc.Link)
	}
	if doc.Body != "Amount due: 100" {
		t.Fatalf("body = %q", doc.Body)
	}
}

func TestBodyDecodesStandardAlphabet(t *testing.T) {
	text := "??>>? padded with ~~~ symbols"
	std := base64.StdEncoding.EncodeToString([]byte(text))
	if !strings.ContainsAny(std, "+/") {
		t.Fatalf("fixture must exercise + or /, got %q", std)
	}
	tests := []struct {
		name string
		data string
	}{
		{name: "standard", data: std},
		{name: "standard unpadded", data: base64.RawStdEncoding.EncodeToString([]byte(text))},
		{name: "url safe", data: base64.URLEncoding.EncodeToString([]byte(text))},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := Body(gmail.Part{MimeType: "text/plain", Data: tc.data}); got != text {
				t.Fatalf("Body = %q, want %q", got, text)
			}
		})
	}
}
