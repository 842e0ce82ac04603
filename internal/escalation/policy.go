// Package escalation decides when a troubleshooting session is handed to a
// human expert, and notifies the ticketing side when it happens.
package escalation

import (
	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/feedback"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

// Reason explains why a session escalated.
type Reason string

const (
	ReasonUserRequest   Reason = "user_request"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonSafetyConcern Reason = "safety_concern"
	ReasonStepsExceeded Reason = "steps_exceeded"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Escalate bool
	Reason   Reason
}

// Input is everything the policy looks at. Steps is the session's full
// history ordered by step number, including the step whose feedback is
// being processed.
type Input struct {
	Assessment *analysis.Assessment
	Steps      []*session.Step

	// HumanRequested is set when the current feedback asked for a human.
	HumanRequested bool
}

// DefaultMaxSteps is the step ceiling when none is configured.
const DefaultMaxSteps = 7

// Policy is a pure decision function over session state. It holds no
// mutable state and is safe for concurrent use.
type Policy struct {
	maxSteps int
}

// NewPolicy creates a policy with the given step ceiling. Non-positive
// ceilings fall back to DefaultMaxSteps.
func NewPolicy(maxSteps int) *Policy {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Policy{maxSteps: maxSteps}
}

// Decide evaluates the escalation rules in priority order. The first
// matching rule wins; a user's explicit request outranks everything,
// including high confidence.
func (p *Policy) Decide(in Input) Decision {
	if in.HumanRequested {
		return Decision{Escalate: true, Reason: ReasonUserRequest}
	}

	if in.Assessment != nil && in.Assessment.ConfidenceLevel == analysis.ConfidenceVeryLow {
		return Decision{Escalate: true, Reason: ReasonLowConfidence}
	}

	if in.Assessment != nil && len(in.Assessment.SafetyWarnings) > 0 && consecutiveFailures(in.Steps) >= 2 {
		return Decision{Escalate: true, Reason: ReasonSafetyConcern}
	}

	if completedWithoutSuccess(in.Steps) >= p.maxSteps {
		return Decision{Escalate: true, Reason: ReasonStepsExceeded}
	}

	return Decision{}
}

// consecutiveFailures counts failure outcomes at the tail of the completed
// history. A success, partial, or ambiguous outcome breaks the streak.
func consecutiveFailures(steps []*session.Step) int {
	count := 0
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Status != session.StepCompleted {
			continue
		}
		if steps[i].Outcome != string(feedback.CategoryFailure) {
			break
		}
		count++
	}
	return count
}

// completedWithoutSuccess returns the number of completed steps, or zero
// when any of them succeeded. The ceiling only applies to sessions that
// keep burning steps with nothing to show for it.
func completedWithoutSuccess(steps []*session.Step) int {
	completed := 0
	for _, step := range steps {
		if step.Status != session.StepCompleted {
			continue
		}
		if step.Success {
			return 0
		}
		completed++
	}
	return completed
}
