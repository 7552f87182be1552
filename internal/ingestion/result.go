package ingestion

import "time"

// RunResult summarizes one phase of a run: one per source, plus one for the
// enrichment pass. A result is produced even when the phase fails outright,
// with counts at their defaults and the failure recorded in Errors.
type RunResult struct {
	Source    string        `json:"source"`
	Total     int           `json:"total"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}
