package session

import (
	"context"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
)

// Store persists sessions, their current assessment, and their steps.
//
// Implementations serialize writes internally; callers additionally hold a
// per-session lock so the step-ordering invariant survives concurrent
// feedback for the same session.
type Store interface {
	// CreateSession stores a new session together with its initial
	// assessment. Returns ErrSessionExists if the ID is taken.
	CreateSession(ctx context.Context, sess *Session, assessment *analysis.Assessment) error

	// GetSession returns the session, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// UpdateSessionStatus moves the session to the given status and bumps
	// its updated_at.
	UpdateSessionStatus(ctx context.Context, sessionID string, status Status) error

	// DeleteSession removes the session, its assessment, and its steps.
	// Used to roll back a partially created session.
	DeleteSession(ctx context.Context, sessionID string) error

	// SaveAssessment replaces the session's current assessment, used after
	// a corrective re-analysis.
	SaveAssessment(ctx context.Context, sessionID string, assessment *analysis.Assessment) error

	// Assessment returns the session's current assessment, or
	// ErrSessionNotFound.
	Assessment(ctx context.Context, sessionID string) (*analysis.Assessment, error)

	// CreateStep stores a new step.
	CreateStep(ctx context.Context, step *Step) error

	// Step returns one step of a session, or ErrStepNotFound.
	Step(ctx context.Context, sessionID, stepID string) (*Step, error)

	// CompleteStep records feedback on a pending step and marks it
	// completed. Returns ErrStepNotFound if the step does not exist.
	CompleteStep(ctx context.Context, sessionID, stepID, feedback, outcome string, success bool) error

	// Steps returns all steps of a session ordered by step number.
	Steps(ctx context.Context, sessionID string) ([]*Step, error)

	// Close releases the backing resources.
	Close() error
}
