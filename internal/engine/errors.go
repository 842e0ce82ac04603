package engine

import (
	"errors"

	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

var (
	// ErrInvalidInput indicates a request rejected before any external
	// call was made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAssessmentGeneration indicates the provider failed to produce a
	// usable assessment, including timeouts. The session is unchanged and
	// the caller may retry.
	ErrAssessmentGeneration = errors.New("assessment generation failed")

	// ErrStepAlreadyProcessed indicates feedback was re-submitted for a
	// completed step. Session state is unchanged.
	ErrStepAlreadyProcessed = errors.New("step already processed")

	// ErrSessionNotActive indicates feedback arrived for a completed or
	// escalated session.
	ErrSessionNotActive = errors.New("session is not active")

	// Storage sentinels surface unchanged at the engine boundary.
	ErrSessionExists   = session.ErrSessionExists
	ErrSessionNotFound = session.ErrSessionNotFound
	ErrStepNotFound    = session.ErrStepNotFound
)
