package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

func completedStep(number int, outcome string, success bool) *session.Step {
	return &session.Step{
		StepID:     "step",
		StepNumber: number,
		Status:     session.StepCompleted,
		Outcome:    outcome,
		Success:    success,
	}
}

func failures(n int) []*session.Step {
	steps := make([]*session.Step, 0, n)
	for i := 1; i <= n; i++ {
		steps = append(steps, completedStep(i, "failure", false))
	}
	return steps
}

func TestPolicy_Decide(t *testing.T) {
	baseAssessment := &analysis.Assessment{
		LikelyCauses:     []string{"x"},
		ConfidenceLevel:  analysis.ConfidenceHigh,
		RecommendedSteps: []analysis.PlanStep{{Instruction: "y"}},
	}
	hazardAssessment := &analysis.Assessment{
		LikelyCauses:     []string{"x"},
		ConfidenceLevel:  analysis.ConfidenceMedium,
		RecommendedSteps: []analysis.PlanStep{{Instruction: "y"}},
		SafetyWarnings:   []string{"Isolate energy sources first."},
	}
	veryLow := &analysis.Assessment{
		LikelyCauses:     []string{"x"},
		ConfidenceLevel:  analysis.ConfidenceVeryLow,
		RecommendedSteps: []analysis.PlanStep{{Instruction: "y"}},
	}

	tests := []struct {
		name       string
		maxSteps   int
		in         Input
		wantReason Reason
		wantNone   bool
	}{
		{
			name:       "human request wins even at high confidence",
			in:         Input{Assessment: baseAssessment, HumanRequested: true},
			wantReason: ReasonUserRequest,
		},
		{
			name: "human request outranks very low confidence",
			in: Input{
				Assessment:     veryLow,
				HumanRequested: true,
				Steps:          failures(2),
			},
			wantReason: ReasonUserRequest,
		},
		{
			name:       "very low confidence",
			in:         Input{Assessment: veryLow},
			wantReason: ReasonLowConfidence,
		},
		{
			name:       "safety warnings with two consecutive failures",
			in:         Input{Assessment: hazardAssessment, Steps: failures(2)},
			wantReason: ReasonSafetyConcern,
		},
		{
			name:     "safety warnings with one failure is fine",
			in:       Input{Assessment: hazardAssessment, Steps: failures(1)},
			wantNone: true,
		},
		{
			name: "safety warnings with broken failure streak",
			in: Input{
				Assessment: hazardAssessment,
				Steps: []*session.Step{
					completedStep(1, "failure", false),
					completedStep(2, "partial", false),
					completedStep(3, "failure", false),
				},
			},
			wantNone: true,
		},
		{
			name:     "two failures without safety warnings is fine",
			in:       Input{Assessment: baseAssessment, Steps: failures(2)},
			wantNone: true,
		},
		{
			name:       "failures reach the ceiling",
			maxSteps:   7,
			in:         Input{Assessment: baseAssessment, Steps: failures(7)},
			wantReason: ReasonStepsExceeded,
		},
		{
			name:     "failures below the ceiling",
			maxSteps: 7,
			in:       Input{Assessment: baseAssessment, Steps: failures(6)},
			wantNone: true,
		},
		{
			name:     "a success resets the ceiling count",
			maxSteps: 3,
			in: Input{
				Assessment: baseAssessment,
				Steps: []*session.Step{
					completedStep(1, "failure", false),
					completedStep(2, "success", true),
					completedStep(3, "failure", false),
				},
			},
			wantNone: true,
		},
		{
			name:     "pending steps do not count toward the ceiling",
			maxSteps: 2,
			in: Input{
				Assessment: baseAssessment,
				Steps: []*session.Step{
					completedStep(1, "failure", false),
					{StepID: "p", StepNumber: 2, Status: session.StepPending},
				},
			},
			wantNone: true,
		},
		{
			name:     "no escalation by default",
			in:       Input{Assessment: baseAssessment},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(tt.maxSteps)
			got := policy.Decide(tt.in)
			if tt.wantNone {
				assert.False(t, got.Escalate, "Decide() = %+v, want no escalation", got)
				return
			}
			require.True(t, got.Escalate, "Decide() did not escalate, want reason %q", tt.wantReason)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestNewPolicy_DefaultCeiling(t *testing.T) {
	policy := NewPolicy(0)

	assert.True(t, policy.Decide(Input{Steps: failures(DefaultMaxSteps)}).Escalate)
	assert.False(t, policy.Decide(Input{Steps: failures(DefaultMaxSteps - 1)}).Escalate)
}
