package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blockTags = map[string]bool{
	"div": true, "p": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var blankRuns = regexp.MustCompile(`\n\s*\n`)

// HTMLToText renders an HTML body as plain text. Script and style content is
// dropped, block tags become line breaks and anchors render as "text (href)".
func HTMLToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var (
		out     strings.Builder
		hidden  int
		anchors []string
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was read.
			return tidy(out.String())
		case html.TextToken:
			if hidden > 0 {
				continue
			}
			out.WriteString(strings.ReplaceAll(string(z.Text()), "\u00a0", " "))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					hidden++
				}
			case blockTags[tag]:
				out.WriteByte('\n')
			case tag == "a" && tt == html.StartTagToken:
				anchors = append(anchors, hrefOf(z, hasAttr))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case tag == "script" || tag == "style":
				if hidden > 0 {
					hidden--
				}
			case blockTags[tag]:
				out.WriteByte('\n')
			case tag == "a" && len(anchors) > 0:
				href := anchors[len(anchors)-1]
				anchors = anchors[:len(anchors)-1]
				if href != "" && hidden == 0 {
					out.WriteString(" (" + href + ")")
				}
			}
		}
	}
}

func hrefOf(z *html.Tokenizer, hasAttr bool) string {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) == "href" {
			return string(val)
		}
	}
	return ""
}

func tidy(s string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
