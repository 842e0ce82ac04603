// Package session holds the persistent troubleshooting session model and
// its storage backends.
package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionExists indicates a session ID is already in use.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound indicates no session with the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStepNotFound indicates no step with the given ID in the session.
	ErrStepNotFound = errors.New("step not found")
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive means the session is accepting feedback.
	StatusActive Status = "active"

	// StatusCompleted means a step resolved the problem. Terminal.
	StatusCompleted Status = "completed"

	// StatusEscalated means the session was handed to a human expert. Terminal.
	StatusEscalated Status = "escalated"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusEscalated
}

// Session is one troubleshooting conversation for one machine problem.
type Session struct {
	SessionID string
	UserID    string
	MachineID string
	Problem   string
	Language  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// Step is one remediation instruction issued to the user. At most one step
// per session is pending at a time, and step numbers strictly increase.
type Step struct {
	StepID           string
	SessionID        string
	StepNumber       int
	Instruction      string
	ExpectedOutcomes []string
	Status           StepStatus
	UserFeedback     string
	Outcome          string
	Success          bool
	CreatedAt        time.Time
	CompletedAt      time.Time
}
