package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/diagnosd/internal/enrichment"
)

var (
	// ErrEmptyProblem indicates the problem description was blank.
	ErrEmptyProblem = errors.New("problem description cannot be empty")
)

// GenerationError indicates the provider failed to produce a usable
// assessment after the stricter re-prompt. The session it belongs to is
// untouched; callers may retry safely.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("assessment generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ConfidenceLevel is the analyzer's self-reported certainty in a diagnosis.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceVeryLow ConfidenceLevel = "very_low"
)

// ParseConfidenceLevel maps a provider-supplied string to the enum.
// Unrecognized values default to low, never to high.
func ParseConfidenceLevel(s string) ConfidenceLevel {
	switch ConfidenceLevel(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceVeryLow:
		return ConfidenceLevel(s)
	default:
		return ConfidenceLow
	}
}

// Score maps a confidence level to a numeric score in [0,1].
func (c ConfidenceLevel) Score() float64 {
	switch c {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.65
	case ConfidenceLow:
		return 0.4
	case ConfidenceVeryLow:
		return 0.15
	default:
		return 0.4
	}
}

// PlanStep is one entry of the recommended remediation plan: the
// instruction relayed to the user and the observable outcomes that would
// confirm it worked.
type PlanStep struct {
	Instruction      string   `json:"instruction"`
	ExpectedOutcomes []string `json:"expected_outcomes,omitempty"`
}

// UnmarshalJSON also accepts a bare instruction string, which models
// still return despite the prompted object shape.
func (s *PlanStep) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var instruction string
		if err := json.Unmarshal(data, &instruction); err != nil {
			return err
		}
		*s = PlanStep{Instruction: instruction}
		return nil
	}

	type planStep PlanStep
	var obj planStep
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = PlanStep(obj)
	return nil
}

// Assessment is the structured diagnosis produced for a troubleshooting
// session. Fields are validated at the provider boundary; consumers can
// rely on non-empty causes and steps and a positive duration.
type Assessment struct {
	ProblemCategory   string          `json:"problem_category"`
	LikelyCauses      []string        `json:"likely_causes"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
	RecommendedSteps  []PlanStep      `json:"recommended_steps"`
	SafetyWarnings    []string        `json:"safety_warnings"`
	EstimatedDuration int             `json:"estimated_duration"` // minutes
	RequiresExpert    bool            `json:"requires_expert"`
}

// Validate checks the invariants every stored assessment satisfies.
func (a *Assessment) Validate() error {
	if len(a.LikelyCauses) == 0 {
		return errors.New("assessment must have at least one likely cause")
	}
	if len(a.RecommendedSteps) == 0 {
		return errors.New("assessment must have at least one recommended step")
	}
	for _, s := range a.RecommendedSteps {
		if strings.TrimSpace(s.Instruction) == "" {
			return errors.New("recommended step has an empty instruction")
		}
	}
	if a.EstimatedDuration <= 0 {
		return errors.New("estimated duration must be positive")
	}
	switch a.ConfidenceLevel {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceVeryLow:
	default:
		return fmt.Errorf("invalid confidence level: %q", a.ConfidenceLevel)
	}
	return nil
}

// PriorStep records an already-attempted step and its outcome, fed back
// into corrective re-analysis.
type PriorStep struct {
	Instruction string
	Feedback    string
	Outcome     string
}

// Request carries the inputs for one analysis call.
type Request struct {
	// Problem is the user's free-text problem description. Required.
	Problem string

	// Language is a resolved language code; responses are requested in
	// this language.
	Language string

	// Machine is optional advisory context; nil is fine.
	Machine *enrichment.MachineContext

	// PriorSteps holds attempted steps with their feedback, present only
	// on corrective re-analysis.
	PriorSteps []PriorStep
}
