package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Stage names the step of the repair chain that produced an Answer.
type Stage string

const (
	StageDirect    Stage = "direct"
	StageExtracted Stage = "extracted"
	StageFallback  Stage = "fallback"
)

// MalformedOutputError describes why one repair step rejected the output.
// It never leaves this package: the chain always ends in a valid Answer.
type MalformedOutputError struct {
	Stage Stage
	Err   error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output (%s): %v", e.Stage, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

var errMissingAnswer = errors.New(`missing "answer" field`)

type repairStep struct {
	stage Stage
	parse func(string) (Answer, error)
}

// chain is tried in order; the terminal fallback cannot fail.
var chain = []repairStep{
	{stage: StageDirect, parse: parseDirect},
	{stage: StageExtracted, parse: parseExtracted},
}

// Repair turns raw model output into an Answer, reporting which stage
// succeeded and the errors of the stages that did not.
func Repair(raw string) (Answer, Stage, []error) {
	var failures []error
	for _, step := range chain {
		a, err := step.parse(raw)
		if err == nil {
			return a.normalized(), step.stage, failures
		}
		failures = append(failures, &MalformedOutputError{Stage: step.stage, Err: err})
	}
	return Fallback(), StageFallback, failures
}

func parseDirect(raw string) (Answer, error) {
	return decode(stripFences(raw))
}

func parseExtracted(raw string) (Answer, error) {
	text := stripFences(raw)
	objects := topLevelObjects(text)
	if len(objects) == 0 {
		return Answer{}, errors.New("no JSON object found")
	}
	var last error
	for _, obj := range objects {
		a, err := decode(obj)
		if err == nil {
			return a, nil
		}
		last = err
	}
	return Answer{}, last
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

type wireAnswer struct {
	Answer        *string       `json:"answer"`
	SourceFolders []string      `json:"source_folders"`
	SourceEmails  []SourceEmail `json:"source_emails"`
}

func decode(s string) (Answer, error) {
	var w wireAnswer
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Answer{}, err
	}
	if w.Answer == nil {
		return Answer{}, errMissingAnswer
	}
	return Answer{Answer: *w.Answer, SourceFolders: w.SourceFolders, SourceEmails: w.SourceEmails}, nil
}

// topLevelObjects returns every balanced {...} span that is not nested in
// another, honoring JSON string literals and escapes.
func topLevelObjects(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}
