package panel

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle position of a panel.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// State is what a session remembers about one panel. Result is kept across
// failures so the last successful response stays visible.
type State struct {
	Status       Status          `json:"status"`
	Values       Values          `json:"values,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ResultAt     time.Time       `json:"result_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	SubmissionID string          `json:"submission_id,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasResult reports whether at least one submission succeeded.
func (s State) HasResult() bool {
	return len(s.Result) > 0
}

func (s State) begin(values Values, submissionID string, now time.Time) State {
	s.Status = StatusSubmitting
	s.Values = values.Clone()
	s.SubmissionID = submissionID
	s.LastError = ""
	s.UpdatedAt = now
	return s
}

func (s State) succeed(result json.RawMessage, now time.Time) State {
	s.Status = StatusSucceeded
	s.Result = result
	s.ResultAt = now
	s.LastError = ""
	s.UpdatedAt = now
	return s
}

func (s State) fail(reason string, now time.Time) State {
	s.Status = StatusFailed
	s.LastError = reason
	s.UpdatedAt = now
	return s
}
