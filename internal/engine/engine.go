// Package engine owns the troubleshooting session lifecycle: it starts a
// session by turning a problem description into an assessment and a first
// step, and processes step feedback into the next step, completion, or an
// escalation to a human expert.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/config"
	"github.com/fyrsmithlabs/diagnosd/internal/enrichment"
	"github.com/fyrsmithlabs/diagnosd/internal/escalation"
	"github.com/fyrsmithlabs/diagnosd/internal/feedback"
	"github.com/fyrsmithlabs/diagnosd/internal/langpack"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

var tracer = otel.Tracer("diagnosd/engine")

// StartRequest carries the inputs to start a session.
type StartRequest struct {
	// SessionID is caller supplied; a fresh one is generated when empty.
	SessionID string

	// Problem is the free-text problem description. Required.
	Problem string

	// Language is an untrusted language code; unsupported codes fall back
	// to the default.
	Language string

	// MachineID and UserID are optional enrichment keys.
	MachineID string
	UserID    string
}

// StartResult is what a successful start produces: the persisted session,
// its assessment with confidence score, and the first pending step.
type StartResult struct {
	Session    *session.Session
	Assessment *analysis.Assessment
	Confidence float64
	Step       *session.Step
}

// FeedbackResult describes one processed feedback submission. NextStep is
// nil when the session reached a terminal state.
type FeedbackResult struct {
	Outcome       feedback.Outcome
	Decision      escalation.Decision
	SessionStatus session.Status
	NextStep      *session.Step
}

// Engine is the troubleshooting state machine. Sessions are independent
// and may be processed concurrently; mutations within one session are
// serialized by a per-session lock.
type Engine struct {
	analyzer   *analysis.Analyzer
	classifier *feedback.Classifier
	policy     *escalation.Policy
	notifier   escalation.Notifier
	enricher   enrichment.Enricher
	store      session.Store
	pack       *langpack.Pack
	logger     *zap.Logger
	cfg        config.EngineConfig
	tracer     trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a troubleshooting engine. The enricher may be nil; every
// other dependency is required.
func New(
	analyzer *analysis.Analyzer,
	classifier *feedback.Classifier,
	policy *escalation.Policy,
	notifier escalation.Notifier,
	enricher enrichment.Enricher,
	store session.Store,
	pack *langpack.Pack,
	logger *zap.Logger,
	cfg config.EngineConfig,
) (*Engine, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required for engine")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required for engine")
	}
	if policy == nil {
		return nil, errors.New("escalation policy is required for engine")
	}
	if notifier == nil {
		return nil, errors.New("escalation notifier is required for engine")
	}
	if store == nil {
		return nil, errors.New("session store is required for engine")
	}
	if pack == nil {
		return nil, errors.New("language pack is required for engine")
	}
	if logger == nil {
		return nil, errors.New("logger is required for engine")
	}

	return &Engine{
		analyzer:   analyzer,
		classifier: classifier,
		policy:     policy,
		notifier:   notifier,
		enricher:   enricher,
		store:      store,
		pack:       pack,
		logger:     logger,
		cfg:        cfg,
		tracer:     tracer,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Start begins a troubleshooting session: gathers machine context, runs
// the analyzer, persists the session with its assessment, and emits step 1.
//
// A failed start leaves no visible session behind.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Start")
	defer span.End()

	if strings.TrimSpace(req.Problem) == "" {
		return nil, fmt.Errorf("%w: empty problem description", ErrInvalidInput)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("session_id", req.SessionID))
	language := e.pack.Resolve(req.Language)

	lock := e.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	machine := enrichment.Gather(ctx, e.enricher, req.MachineID, req.UserID, e.cfg.MaintenanceHistoryLimit)
	if machine != nil && machine.Preferences != nil && req.Language == "" {
		language = e.pack.Resolve(machine.Preferences.Language)
	}

	assessment, score, err := e.analyzer.Analyze(ctx, analysis.Request{
		Problem:  req.Problem,
		Language: language,
		Machine:  machine,
	})
	if err != nil {
		span.RecordError(err)
		return nil, mapAnalysisError(err)
	}

	now := time.Now()
	sess := &session.Session{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		MachineID: req.MachineID,
		Problem:   req.Problem,
		Language:  language,
		Status:    session.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateSession(ctx, sess, assessment); err != nil {
		span.RecordError(err)
		return nil, err
	}

	step, err := e.emitStep(ctx, sess.SessionID, 1, assessment.RecommendedSteps[0])
	if err != nil {
		// A session without a pending step must not become visible.
		if delErr := e.store.DeleteSession(ctx, sess.SessionID); delErr != nil {
			e.logger.Error("failed to roll back session after step insert failure",
				zap.String("session_id", sess.SessionID),
				zap.Error(delErr),
			)
		}
		span.RecordError(err)
		return nil, err
	}

	e.logger.Info("troubleshooting session started",
		zap.String("session_id", sess.SessionID),
		zap.String("language", language),
		zap.String("category", assessment.ProblemCategory),
		zap.String("confidence", string(assessment.ConfidenceLevel)),
	)

	return &StartResult{
		Session:    sess,
		Assessment: assessment,
		Confidence: score,
		Step:       step,
	}, nil
}

// ProcessUserFeedback records feedback for a pending step and drives the
// session to its next state: another step, completion, or escalation.
//
// Provider failures during corrective re-analysis leave the step pending
// so the same feedback can be re-submitted.
func (e *Engine) ProcessUserFeedback(ctx context.Context, sessionID, stepID, userFeedback string) (*FeedbackResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ProcessUserFeedback",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("step_id", stepID),
		))
	defer span.End()

	if sessionID == "" || stepID == "" {
		return nil, fmt.Errorf("%w: session and step ids are required", ErrInvalidInput)
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, fmt.Errorf("%w: status is %s", ErrSessionNotActive, sess.Status)
	}

	step, err := e.store.Step(ctx, sessionID, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status == session.StepCompleted {
		return nil, fmt.Errorf("%w: step %s", ErrStepAlreadyProcessed, stepID)
	}

	outcome := e.classifier.Classify(userFeedback, sess.Language)
	success := outcome.Category.Success()

	assessment, err := e.store.Assessment(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := e.store.Steps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Evaluate policy as if the current step were already completed; the
	// store is only touched once the transition is known to go through.
	for _, h := range history {
		if h.StepID == stepID {
			h.Status = session.StepCompleted
			h.UserFeedback = userFeedback
			h.Outcome = string(outcome.Category)
			h.Success = success
		}
	}

	decision := e.policy.Decide(escalation.Input{
		Assessment:     assessment,
		Steps:          history,
		HumanRequested: outcome.HumanRequest,
	})

	result := &FeedbackResult{Outcome: outcome, Decision: decision}

	switch {
	case decision.Escalate:
		if err := e.completeStep(ctx, sess, stepID, userFeedback, outcome, success); err != nil {
			return nil, err
		}
		if err := e.escalate(ctx, sess, assessment, decision.Reason); err != nil {
			return nil, err
		}
		result.SessionStatus = session.StatusEscalated
		return result, nil

	case success && !remainingSteps(assessment, step.Instruction):
		if err := e.completeStep(ctx, sess, stepID, userFeedback, outcome, success); err != nil {
			return nil, err
		}
		if err := e.store.UpdateSessionStatus(ctx, sessionID, session.StatusCompleted); err != nil {
			return nil, err
		}
		e.dropSessionLock(sessionID)
		e.logger.Info("troubleshooting session completed",
			zap.String("session_id", sessionID),
			zap.Int("steps", step.StepNumber),
		)
		result.SessionStatus = session.StatusCompleted
		return result, nil

	default:
		planStep, revised, err := e.nextPlanStep(ctx, sess, assessment, history, step, success)
		if err != nil {
			// Step stays pending; the user can retry the feedback.
			span.RecordError(err)
			return nil, err
		}
		if err := e.completeStep(ctx, sess, stepID, userFeedback, outcome, success); err != nil {
			return nil, err
		}
		if revised != nil {
			if err := e.store.SaveAssessment(ctx, sessionID, revised); err != nil {
				return nil, err
			}
		}
		next, err := e.emitStep(ctx, sessionID, step.StepNumber+1, planStep)
		if err != nil {
			return nil, err
		}
		result.SessionStatus = session.StatusActive
		result.NextStep = next
		return result, nil
	}
}

// GetSession returns a session with its assessment and full step history.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.Session, *analysis.Assessment, []*session.Step, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	assessment, err := e.store.Assessment(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	steps, err := e.store.Steps(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	return sess, assessment, steps, nil
}

// nextPlanStep picks the plan entry for the upcoming step. Success
// advances within the current plan; failure, partial, and ambiguous
// feedback re-derive a corrective plan from the analyzer.
func (e *Engine) nextPlanStep(
	ctx context.Context,
	sess *session.Session,
	assessment *analysis.Assessment,
	history []*session.Step,
	current *session.Step,
	success bool,
) (analysis.PlanStep, *analysis.Assessment, error) {
	if success {
		idx := planIndex(assessment, current.Instruction)
		if idx >= 0 && idx+1 < len(assessment.RecommendedSteps) {
			return assessment.RecommendedSteps[idx+1], nil, nil
		}
		// The instruction fell out of the plan, which should not happen;
		// fall through to a corrective re-analysis.
	}

	prior := make([]analysis.PriorStep, 0, len(history))
	for _, h := range history {
		if h.Status != session.StepCompleted {
			continue
		}
		prior = append(prior, analysis.PriorStep{
			Instruction: h.Instruction,
			Feedback:    h.UserFeedback,
			Outcome:     h.Outcome,
		})
	}

	machine := enrichment.Gather(ctx, e.enricher, sess.MachineID, sess.UserID, e.cfg.MaintenanceHistoryLimit)

	revised, _, err := e.analyzer.Analyze(ctx, analysis.Request{
		Problem:    sess.Problem,
		Language:   sess.Language,
		Machine:    machine,
		PriorSteps: prior,
	})
	if err != nil {
		return analysis.PlanStep{}, nil, mapAnalysisError(err)
	}

	e.logger.Info("corrective re-analysis",
		zap.String("session_id", sess.SessionID),
		zap.String("confidence", string(revised.ConfidenceLevel)),
		zap.Int("prior_steps", len(prior)),
	)
	return revised.RecommendedSteps[0], revised, nil
}

// escalate marks the session escalated and hands it to the notifier. The
// notification is best effort and never reverts the escalated state.
func (e *Engine) escalate(ctx context.Context, sess *session.Session, assessment *analysis.Assessment, reason escalation.Reason) error {
	if err := e.store.UpdateSessionStatus(ctx, sess.SessionID, session.StatusEscalated); err != nil {
		return err
	}
	sess.Status = session.StatusEscalated
	e.dropSessionLock(sess.SessionID)

	var contact string
	if e.enricher != nil && sess.UserID != "" {
		if prefs := e.enricher.UserPreferences(ctx, sess.UserID); prefs != nil {
			contact = prefs.ContactEmail
		}
	}

	ev := escalation.Event{
		Session:      sess,
		Assessment:   assessment,
		Reason:       reason,
		ContactEmail: contact,
		EscalatedAt:  time.Now(),
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Error("escalation notification failed",
			zap.String("session_id", sess.SessionID),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
	}

	e.logger.Warn("troubleshooting session escalated",
		zap.String("session_id", sess.SessionID),
		zap.String("reason", string(reason)),
	)
	return nil
}

func (e *Engine) completeStep(ctx context.Context, sess *session.Session, stepID, userFeedback string, outcome feedback.Outcome, success bool) error {
	return e.store.CompleteStep(ctx, sess.SessionID, stepID, userFeedback, string(outcome.Category), success)
}

func (e *Engine) emitStep(ctx context.Context, sessionID string, number int, plan analysis.PlanStep) (*session.Step, error) {
	step := &session.Step{
		StepID:           uuid.NewString(),
		SessionID:        sessionID,
		StepNumber:       number,
		Instruction:      plan.Instruction,
		ExpectedOutcomes: plan.ExpectedOutcomes,
		Status:           session.StepPending,
		CreatedAt:        time.Now(),
	}
	if err := e.store.CreateStep(ctx, step); err != nil {
		return nil, err
	}
	return step, nil
}

// sessionLock returns the mutex serializing mutations for one session.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}

// dropSessionLock forgets the lock of a terminal session so the map does
// not grow unbounded. Late callers get a fresh lock and then fail on the
// terminal status check.
func (e *Engine) dropSessionLock(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, sessionID)
}

// planIndex locates an instruction within the current recommended steps.
func planIndex(assessment *analysis.Assessment, instruction string) int {
	for i, s := range assessment.RecommendedSteps {
		if s.Instruction == instruction {
			return i
		}
	}
	return -1
}

// remainingSteps reports whether the plan has steps after the given one.
func remainingSteps(assessment *analysis.Assessment, instruction string) bool {
	idx := planIndex(assessment, instruction)
	return idx >= 0 && idx+1 < len(assessment.RecommendedSteps)
}

// mapAnalysisError folds analyzer failures into the engine taxonomy.
func mapAnalysisError(err error) error {
	if errors.Is(err, analysis.ErrEmptyProblem) {
		return fmt.Errorf("%w: %s", ErrInvalidInput, analysis.ErrEmptyProblem)
	}
	var genErr *analysis.GenerationError
	if errors.As(err, &genErr) {
		return fmt.Errorf("%w: %s", ErrAssessmentGeneration, genErr)
	}
	return fmt.Errorf("%w: %s", ErrAssessmentGeneration, err)
}
