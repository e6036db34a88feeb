// Package query turns a natural-language question into a Gmail search
// expression and reports which folders that expression covers.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how the folder scope of a search is decided.
type Mode int

const (
	// ModeManual restricts the search to folders the user picked.
	ModeManual Mode = iota
	// ModeAIAssisted lets the model choose folder operators; the scope is
	// inferred from the generated query afterwards.
	ModeAIAssisted
)

func (m Mode) String() string {
	if m == ModeAIAssisted {
		return "ai"
	}
	return "manual"
}

// Standard folder identifiers. Everything else is treated as a user label.
const (
	FolderInbox = "INBOX"
	FolderSent  = "SENT"
	FolderDraft = "DRAFT"
	FolderAll   = "ALL"
)

// AllMail names a provider-wide search scope.
const AllMail = "All Mail"

var standardOperators = map[string]string{
	FolderInbox: "in:inbox",
	FolderSent:  "in:sent",
	FolderDraft: "in:draft",
	FolderAll:   "",
}

// ErrEmptyScope is returned when a manual scope names no folders.
var ErrEmptyScope = errors.New("manual folder scope needs at least one folder")

// FolderScope is either a non-empty manual folder set or AI-assisted.
type FolderScope struct {
	mode    Mode
	folders []string
}

// Manual returns a manual scope over folders. Blank and repeated entries are
// dropped; standard folder identifiers are matched case-insensitively.
func Manual(folders ...string) (FolderScope, error) {
	seen := make(map[string]bool, len(folders))
	var out []string
	for _, f := range folders {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := standardOperators[strings.ToUpper(f)]; ok {
			f = strings.ToUpper(f)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return FolderScope{}, ErrEmptyScope
	}
	return FolderScope{mode: ModeManual, folders: out}, nil
}

// AIAssisted returns the scope that defers folder choice to the model.
func AIAssisted() FolderScope {
	return FolderScope{mode: ModeAIAssisted}
}

func (s FolderScope) Mode() Mode { return s.mode }

// Folders returns a copy of the manual folder set; nil in AI-assisted mode.
func (s FolderScope) Folders() []string {
	if len(s.folders) == 0 {
		return nil
	}
	return append([]string(nil), s.folders...)
}

// ScopeExpression builds the local folder disjunction for a manual scope. Any
// custom label wins exclusively over the standard folders; otherwise the
// standard folders are OR-ed, with ALL contributing no operator.
func ScopeExpression(folders []string) string {
	var custom, standard []string
	for _, f := range folders {
		if op, ok := standardOperators[strings.ToUpper(f)]; ok {
			if op != "" {
				standard = append(standard, op)
			}
			continue
		}
		custom = append(custom, "label:"+labelToken(f))
	}
	if len(custom) > 0 {
		return strings.Join(custom, " OR ")
	}
	return strings.Join(standard, " OR ")
}

// Assemble joins the folder disjunction and the model fragment with Gmail's
// implicit AND.
func Assemble(scope, fragment string) string {
	switch {
	case scope == "" && fragment == "":
		return ""
	case scope == "":
		return fragment
	case fragment == "":
		return "(" + scope + ")"
	default:
		return "(" + scope + ") (" + fragment + ")"
	}
}

// labelToken renders a label name the way Gmail's label: operator expects it.
func labelToken(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
}

// ParseScope builds a FolderScope from its wire form: mode "ai" selects
// AI-assisted scoping and "manual" (or empty) a selection of folders.
func ParseScope(mode string, folders []string) (FolderScope, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "ai", "ai-assisted", "auto":
		return AIAssisted(), nil
	case "", "manual":
		return Manual(folders...)
	default:
		return FolderScope{}, fmt.Errorf("unknown folder scope mode %q", mode)
	}
}
