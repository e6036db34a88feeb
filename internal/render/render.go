// Package render formats answers for the terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joshsymonds/mailrag/internal/synth"
)

var (
	colorWhite  = lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#f5f5f5"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#6b6b6b", Dark: "#9a9a9a"}
	colorBlue   = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	colorSubtle = lipgloss.AdaptiveColor{Light: "#d4d4d4", Dark: "#3f3f46"}
)

// Options controls Answer rendering.
type Options struct {
	// Width wraps the answer text; zero leaves it unwrapped.
	Width int
	Query string
}

// Answer renders a structured answer with its folders and citations.
func Answer(a synth.Answer, opts Options) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	metaStyle := lipgloss.NewStyle().Foreground(colorGray)
	bodyStyle := lipgloss.NewStyle().Foreground(colorWhite)
	if opts.Width > 0 {
		bodyStyle = bodyStyle.Width(opts.Width)
	}
	if a.Answer == synth.FallbackText {
		bodyStyle = bodyStyle.Foreground(colorRed)
	}
	sepWidth := opts.Width
	if sepWidth <= 0 {
		sepWidth = 40
	}
	sep := lipgloss.NewStyle().Foreground(colorSubtle).Render(strings.Repeat("─", sepWidth))

	var sections []string
	if opts.Query != "" {
		sections = append(sections, fmt.Sprintf("%s %s", metaStyle.Render("Query:"), opts.Query))
	}
	sections = append(sections, headerStyle.Render("Answer"), bodyStyle.Render(a.Answer))

	if len(a.SourceFolders) > 0 {
		sections = append(sections, "", fmt.Sprintf("%s %s", metaStyle.Render("Folders:"), strings.Join(a.SourceFolders, ", ")))
	}
	if len(a.SourceEmails) > 0 {
		sections = append(sections, sep, headerStyle.Render("Sources"))
		linkStyle := lipgloss.NewStyle().Foreground(colorGray).Underline(true)
		for i, src := range a.SourceEmails {
			sections = append(sections,
				fmt.Sprintf("%d. %s", i+1, bodyStyle.UnsetWidth().Render(src.Subject)),
				"   "+linkStyle.Render(src.Link),
			)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Error renders a failure message.
func Error(msg string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(colorRed).Render("Error: ") + msg
}
