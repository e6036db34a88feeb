package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestThinkingBudget(t *testing.T) {
	tests := map[string]int32{
		"gemini-2.5-pro":        -1,
		"gemini-2.5-flash":      0,
		"gemini-2.5-flash-lite": 0,
		"":                      0,
	}
	for model, want := range tests {
		if got := ThinkingBudget(model); got != want {
			t.Fatalf("ThinkingBudget(%q) = %d, want %d", model, got, want)
		}
	}
}

func TestNewPromptDefaultsModel(t *testing.T) {
	p := NewPrompt("", "hi")
	if p.Model != DefaultModel || p.Thinking != 0 || p.Text != "hi" {
		t.Fatalf("unexpected prompt: %+v", p)
	}
	if p := NewPrompt("gemini-2.5-pro", "x"); p.Thinking != -1 {
		t.Fatalf("pro model should use dynamic thinking, got %d", p.Thinking)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{name: "typical", key: "AIzaSyA-1234567890_abcdefghijklmnop", ok: true},
		{name: "surrounding space", key: "  AIzaSyA-1234567890_abcdefghijklmnop\n", ok: true},
		{name: "too short", key: "AIza123", ok: false},
		{name: "exactly 21", key: strings.Repeat("a", 21), ok: true},
		{name: "exactly 20", key: strings.Repeat("a", 20), ok: false},
		{name: "too long", key: strings.Repeat("a", 200), ok: false},
		{name: "bad characters", key: "AIzaSyA 1234567890.abcdefghijk", ok: false},
		{name: "empty", key: "", ok: false},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKey(tc.key)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestModelErrorUnwrap(t *testing.T) {
	base := errors.New("quota exceeded")
	err := error(&ModelError{Model: "m", Status: 429, Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("status missing from %q", err.Error())
	}
}
