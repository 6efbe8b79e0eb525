package db

import (
	"encoding/json"
	"time"
)

// Journal states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Registration represents a row in the registrations table.
type Registration struct {
	ID              string          `json:"id"`
	NPJ             string          `json:"npj"`
	Request         json.RawMessage `json:"request"`
	State           string          `json:"state"`
	LastPhase       string          `json:"last_phase"`
	ProcessNumber   *int64          `json:"process_number,omitempty"`
	PartiesVerified *bool           `json:"parties_verified,omitempty"`
	Parties         json.RawMessage `json:"parties,omitempty"`
	FailedPhase     *string         `json:"failed_phase,omitempty"`
	Error           *string         `json:"error,omitempty"`
	Started         time.Time       `json:"started"`
	Modified        time.Time       `json:"modified"`
	Finished        *time.Time      `json:"finished,omitempty"`
}

// Duration is how long the registration ran, or has been running.
func (r Registration) Duration(now time.Time) time.Duration {
	if r.Finished != nil {
		return r.Finished.Sub(r.Started)
	}
	return now.Sub(r.Started)
}
