package models

import (
	"time"
)

// JobState classifies the remote generation service's free-form state string.
// Internal logic switches on this variant; the raw string is persisted as-is.
type JobState int

const (
	StateUnknown JobState = iota
	StatePending
	StateStarted
	StateRunning
	StateSucceeded
	StateFailed
)

// Raw state strings used by the remote service.
const (
	RawStatePending = "PENDING"
	RawStateStarted = "STARTED"
	RawStateRunning = "RUNNING"
	RawStateSuccess = "SUCCESS"
	RawStateFailure = "FAILURE"
)

// ParseJobState maps a raw remote state string to its variant.
// Unrecognized strings map to StateUnknown rather than failing.
func ParseJobState(raw string) JobState {
	switch raw {
	case RawStatePending:
		return StatePending
	case RawStateStarted:
		return StateStarted
	case RawStateRunning:
		return StateRunning
	case RawStateSuccess:
		return StateSucceeded
	case RawStateFailure:
		return StateFailed
	default:
		return StateUnknown
	}
}

// NonTerminalStates are the raw states a job may still transition out of.
// Pending-job queries filter on this set.
var NonTerminalStates = []string{RawStatePending, RawStateStarted, RawStateRunning}

// Terminal reports whether no further transitions are expected.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is one remote generation request tracked in the ledger.
type Job struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	KickoffID string    `json:"kickoff_id"`
	State     string    `json:"state"`
	Result    *string   `json:"result,omitempty"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateVariant returns the parsed variant of the persisted raw state.
func (j Job) StateVariant() JobState {
	return ParseJobState(j.State)
}
