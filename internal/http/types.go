package http

import (
	"time"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/engine"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

// StartRequest is the request body for POST /api/v1/troubleshoot.
type StartRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Problem   string `json:"problem"`
	Language  string `json:"language,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// FeedbackRequest is the request body for
// POST /api/v1/troubleshoot/:session_id/feedback.
type FeedbackRequest struct {
	StepID   string `json:"step_id"`
	Feedback string `json:"feedback"`
}

// AssessmentData is the wire form of a diagnostic assessment.
type AssessmentData struct {
	ProblemCategory   string   `json:"problem_category"`
	LikelyCauses      []string `json:"likely_causes"`
	ConfidenceLevel   string   `json:"confidence_level"`
	RecommendedSteps  []string `json:"recommended_steps"`
	SafetyWarnings    []string `json:"safety_warnings"`
	EstimatedDuration int      `json:"estimated_duration"`
	RequiresExpert    bool     `json:"requires_expert"`
}

// StepData is the wire form of a troubleshooting step.
type StepData struct {
	StepID           string     `json:"step_id"`
	SessionID        string     `json:"session_id"`
	StepNumber       int        `json:"step_number"`
	Instruction      string     `json:"instruction"`
	ExpectedOutcomes []string   `json:"expected_outcomes"`
	Status           string     `json:"status"`
	RequiresFeedback bool       `json:"requires_feedback"`
	UserFeedback     string     `json:"user_feedback,omitempty"`
	Success          *bool      `json:"success,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// StartResponse is the response body for POST /api/v1/troubleshoot.
type StartResponse struct {
	SessionID  string         `json:"session_id"`
	Status     string         `json:"status"`
	Language   string         `json:"language"`
	Assessment AssessmentData `json:"assessment"`
	Confidence float64        `json:"confidence_score"`
	Step       *StepData      `json:"step"`
}

// FeedbackResponse is the response body for the feedback endpoint.
// NextStep is null when the session reached a terminal state.
type FeedbackResponse struct {
	Outcome          string    `json:"outcome"`
	SessionStatus    string    `json:"session_status"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	NextStep         *StepData `json:"next_step"`
}

// SessionResponse is the response body for GET /api/v1/troubleshoot/:session_id.
type SessionResponse struct {
	SessionID  string         `json:"session_id"`
	UserID     string         `json:"user_id,omitempty"`
	MachineID  string         `json:"machine_id,omitempty"`
	Problem    string         `json:"problem"`
	Language   string         `json:"language"`
	Status     string         `json:"status"`
	Assessment AssessmentData `json:"assessment"`
	Steps      []*StepData    `json:"steps"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// LanguagesResponse is the response body for GET /api/v1/languages.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
}

func newAssessmentData(a *analysis.Assessment) AssessmentData {
	steps := make([]string, 0, len(a.RecommendedSteps))
	for _, s := range a.RecommendedSteps {
		steps = append(steps, s.Instruction)
	}
	return AssessmentData{
		ProblemCategory:   a.ProblemCategory,
		LikelyCauses:      a.LikelyCauses,
		ConfidenceLevel:   string(a.ConfidenceLevel),
		RecommendedSteps:  steps,
		SafetyWarnings:    a.SafetyWarnings,
		EstimatedDuration: a.EstimatedDuration,
		RequiresExpert:    a.RequiresExpert,
	}
}

func newStepData(step *session.Step) *StepData {
	if step == nil {
		return nil
	}
	data := &StepData{
		StepID:           step.StepID,
		SessionID:        step.SessionID,
		StepNumber:       step.StepNumber,
		Instruction:      step.Instruction,
		ExpectedOutcomes: step.ExpectedOutcomes,
		Status:           string(step.Status),
		RequiresFeedback: step.Status == session.StepPending,
		UserFeedback:     step.UserFeedback,
		CreatedAt:        step.CreatedAt,
	}
	if step.Status == session.StepCompleted {
		success := step.Success
		data.Success = &success
		if !step.CompletedAt.IsZero() {
			completed := step.CompletedAt
			data.CompletedAt = &completed
		}
	}
	return data
}

func newStartResponse(res *engine.StartResult) StartResponse {
	return StartResponse{
		SessionID:  res.Session.SessionID,
		Status:     string(res.Session.Status),
		Language:   res.Session.Language,
		Assessment: newAssessmentData(res.Assessment),
		Confidence: res.Confidence,
		Step:       newStepData(res.Step),
	}
}

func newFeedbackResponse(res *engine.FeedbackResult) FeedbackResponse {
	out := FeedbackResponse{
		Outcome:       string(res.Outcome.Category),
		SessionStatus: string(res.SessionStatus),
		NextStep:      newStepData(res.NextStep),
	}
	if res.Decision.Escalate {
		out.EscalationReason = string(res.Decision.Reason)
	}
	return out
}

func newSessionResponse(sess *session.Session, assessment *analysis.Assessment, steps []*session.Step) SessionResponse {
	data := make([]*StepData, 0, len(steps))
	for _, step := range steps {
		data = append(data, newStepData(step))
	}
	return SessionResponse{
		SessionID:  sess.SessionID,
		UserID:     sess.UserID,
		MachineID:  sess.MachineID,
		Problem:    sess.Problem,
		Language:   sess.Language,
		Status:     string(sess.Status),
		Assessment: newAssessmentData(assessment),
		Steps:      data,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}
}
