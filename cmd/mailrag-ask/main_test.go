package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/joshsymonds/mailrag/internal/pipeline"
	"github.com/joshsymonds/mailrag/internal/synth"
)

func TestWriteResultJSONFailureReturnsError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	runErr := errors.New("not authenticated")

	err := writeResult(&stdout, &stderr, askConfig{jsonOut: true}, pipeline.Result{}, runErr)
	if !errors.Is(err, runErr) {
		t.Fatalf("expected the cycle error, got %v", err)
	}
	var resp pipeline.Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, stdout.String())
	}
	if resp.Success || resp.Error != "not authenticated" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWriteResultTextFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := writeResult(&stdout, &stderr, askConfig{}, pipeline.Result{}, errors.New("quota exceeded"))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(stderr.String(), "quota exceeded") || stdout.Len() != 0 {
		t.Fatalf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestWriteResultJSONSuccess(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res := pipeline.Result{Answer: synth.NoResults([]string{"INBOX"})}
	if err := writeResult(&stdout, &stderr, askConfig{jsonOut: true}, res, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp pipeline.Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || !strings.Contains(resp.Result, synth.NoResultsText) {
		t.Fatalf("response = %+v", resp)
	}
}
