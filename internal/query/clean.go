package query

import (
	"regexp"
	"strings"
)

var (
	scaffoldTag = regexp.MustCompile(`(?i)</?(?:prompt|role|instructions|rule|output_format|examples|example|context|current_date|user_request|user_query|correct_query|output|task)\b[^>]*>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
	outputLabel = regexp.MustCompile(`(?i)^(?:output|query)\s*:\s*`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// Clean removes echoed prompt scaffolding and any remaining angle-bracket
// markup from a model response, leaving only the search expression.
func Clean(s string) string {
	s = scaffoldTag.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, "")
	s = strings.Trim(strings.TrimSpace(s), "`")
	s = outputLabel.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
}
