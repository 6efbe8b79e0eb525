// Package events defines registration events and the publishers that emit them.
package events

// Registration event statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RegistrationEvent is emitted when a registration run finishes, successfully or not.
type RegistrationEvent struct {
	ID              string `json:"id"`
	NPJ             string `json:"npj"`
	Status          string `json:"status"`
	ProcessNumber   int64  `json:"processNumber,omitempty"`
	PartiesVerified bool   `json:"partiesVerified"`
	// FailedPhase names the phase a failed run stopped at.
	FailedPhase string `json:"failedPhase,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"`
}
