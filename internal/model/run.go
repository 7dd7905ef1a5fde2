package model

import "time"

// StageStatus is the outcome of one stage for one document.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusSkipped  StageStatus = "skipped"
	StageStatusFailed   StageStatus = "failed"
)

// StageResult holds the outcome of a stage for one document.
type StageResult struct {
	Stage    Stage       `json:"stage"`
	Status   StageStatus `json:"status"`
	Reason   string      `json:"reason,omitempty"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// DocumentResult collects the stage results for one document in a run.
type DocumentResult struct {
	Document string        `json:"document"`
	Stages   []StageResult `json:"stages"`
	Error    string        `json:"error,omitempty"`
}

// Failed reports whether any stage of the document failed.
func (r DocumentResult) Failed() bool {
	if r.Error != "" {
		return true
	}
	for _, s := range r.Stages {
		if s.Status == StageStatusFailed {
			return true
		}
	}
	return false
}

// RunReport summarizes one pipeline run over a session.
type RunReport struct {
	ID         string           `json:"id"`
	Session    string           `json:"session"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Documents  int              `json:"documents"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Results    []DocumentResult `json:"results"`
	TokenUsage TokenUsage       `json:"token_usage"`
}

// Tally recomputes Documents, Succeeded and Failed from Results.
func (r *RunReport) Tally() {
	r.Documents = len(r.Results)
	r.Succeeded, r.Failed = 0, 0
	for _, res := range r.Results {
		if res.Failed() {
			r.Failed++
		} else {
			r.Succeeded++
		}
	}
}
