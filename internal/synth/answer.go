// Package synth builds the grounding prompt, calls the model for a structured
// answer and repairs whatever comes back into a valid Answer.
package synth

import (
	"encoding/json"
	"fmt"
)

const (
	// FallbackText is the answer used when model output cannot be repaired.
	FallbackText = "Error: The AI returned an invalid response. Please try again."
	// NoResultsText is the answer for a search without hits.
	NoResultsText = "I couldn't find any relevant emails in the selected folders to answer your question."
)

// SourceEmail cites one grounding document.
type SourceEmail struct {
	Subject string `json:"subject"`
	Link    string `json:"link"`
}

// Answer is the structured result handed to callers.
type Answer struct {
	Answer        string        `json:"answer"`
	SourceFolders []string      `json:"source_folders"`
	SourceEmails  []SourceEmail `json:"source_emails"`
}

// Fallback returns the error-shaped answer with empty arrays.
func Fallback() Answer {
	return Answer{Answer: FallbackText, SourceFolders: []string{}, SourceEmails: []SourceEmail{}}
}

// NoResults returns the canned answer for an empty search over folders.
func NoResults(folders []string) Answer {
	a := Answer{Answer: NoResultsText, SourceFolders: folders, SourceEmails: []SourceEmail{}}
	return a.normalized()
}

// JSON encodes the answer in its wire form.
func (a Answer) JSON() (string, error) {
	b, err := json.Marshal(a.normalized())
	if err != nil {
		return "", fmt.Errorf("encode answer: %w", err)
	}
	return string(b), nil
}

func (a Answer) normalized() Answer {
	if a.SourceFolders == nil {
		a.SourceFolders = []string{}
	}
	if a.SourceEmails == nil {
		a.SourceEmails = []SourceEmail{}
	}
	return a
}
