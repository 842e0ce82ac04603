package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/config"
	"github.com/fyrsmithlabs/diagnosd/internal/enrichment"
	"github.com/fyrsmithlabs/diagnosd/internal/escalation"
	"github.com/fyrsmithlabs/diagnosd/internal/feedback"
	"github.com/fyrsmithlabs/diagnosd/internal/langpack"
	"github.com/fyrsmithlabs/diagnosd/internal/provider"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

// mockCompleter is a mock completion client for testing.
type mockCompleter struct {
	mu           sync.Mutex
	calls        int
	generateFunc func(call int, prompt string) (*provider.Response, error)
}

func (m *mockCompleter) Generate(ctx context.Context, prompt string) (*provider.Response, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.generateFunc(call, prompt)
}

// mockNotifier records escalation events.
type mockNotifier struct {
	mu     sync.Mutex
	events []escalation.Event
	err    error
}

func (m *mockNotifier) Notify(ctx context.Context, ev escalation.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func assessmentJSON(confidence string, steps ...string) string {
	quoted := make([]string, len(steps))
	for i, s := range steps {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf(`{
		"problem_category": "mechanical",
		"likely_causes": ["worn drive belt"],
		"confidence_level": %q,
		"recommended_steps": [%s],
		"safety_warnings": [],
		"estimated_duration": 20,
		"requires_expert": false
	}`, confidence, strings.Join(quoted, ", "))
}

type testHarness struct {
	engine    *Engine
	completer *mockCompleter
	notifier  *mockNotifier
	store     session.Store
}

func newTestEngine(t *testing.T, completer *mockCompleter, cfg config.EngineConfig) *testHarness {
	t.Helper()
	return newTestEngineWithStore(t, completer, cfg, session.NewMemory())
}

func newTestEngineWithStore(t *testing.T, completer *mockCompleter, cfg config.EngineConfig, store session.Store) *testHarness {
	t.Helper()

	pack, err := langpack.Load("")
	if err != nil {
		t.Fatalf("loading language pack: %v", err)
	}
	if cfg.DefaultLanguage != "" {
		if err := pack.SetFallback(cfg.DefaultLanguage); err != nil {
			t.Fatalf("SetFallback() error = %v", err)
		}
	}
	logger := zap.NewNop()

	analyzer, err := analysis.NewAnalyzer(completer, pack, logger)
	if err != nil {
		t.Fatalf("NewAnalyzer() error = %v", err)
	}
	classifier, err := feedback.NewClassifier(pack, logger)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}

	notifier := &mockNotifier{}
	enricher := &enrichment.Static{
		Preferences: map[string]*enrichment.UserPreferences{
			"user-1": {Language: "en", ContactEmail: "ops@example.com"},
		},
	}

	eng, err := New(analyzer, classifier, escalation.NewPolicy(cfg.MaxSteps), notifier, enricher, store, pack, logger, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testHarness{engine: eng, completer: completer, notifier: notifier, store: store}
}

func defaultEngineConfig() config.EngineConfig {
	return config.EngineConfig{MaxSteps: 7, DefaultLanguage: "en", MaintenanceHistoryLimit: 5}
}

func staticCompleter(content string) *mockCompleter {
	return &mockCompleter{
		generateFunc: func(call int, prompt string) (*provider.Response, error) {
			return &provider.Response{Content: content}, nil
		},
	}
}

func TestStart(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Check the belt tension", "Replace the belt")), defaultEngineConfig())

	res, err := h.engine.Start(context.Background(), StartRequest{
		SessionID: "sess-1",
		Problem:   "machine won't start",
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if res.Assessment.ProblemCategory == "" {
		t.Error("empty problem category")
	}
	if len(res.Assessment.LikelyCauses) == 0 || len(res.Assessment.RecommendedSteps) == 0 {
		t.Error("assessment missing causes or steps")
	}
	if res.Step.StepNumber != 1 {
		t.Errorf("first step number = %d, want 1", res.Step.StepNumber)
	}
	if res.Step.Status != session.StepPending {
		t.Errorf("first step status = %q, want pending", res.Step.Status)
	}
	if res.Step.Instruction != "Check the belt tension" {
		t.Errorf("first step instruction = %q", res.Step.Instruction)
	}
	if res.Session.Status != session.StatusActive {
		t.Errorf("session status = %q, want active", res.Session.Status)
	}
}

func TestStart_ConfiguredDefaultLanguage(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.DefaultLanguage = "es"
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Revise la correa")), cfg)

	res, err := h.engine.Start(context.Background(), StartRequest{
		SessionID: "sess-es",
		Problem:   "la prensa no arranca",
		Language:  "zz",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Session.Language != "es" {
		t.Errorf("session language = %q, want configured default %q", res.Session.Language, "es")
	}
}

func TestStart_StepCarriesExpectedOutcomes(t *testing.T) {
	content := `{
		"problem_category": "mechanical",
		"likely_causes": ["blown fuse"],
		"confidence_level": "high",
		"recommended_steps": [
			{"instruction": "Check the main fuse", "expected_outcomes": ["fuse filament intact", "continuity across terminals"]}
		],
		"safety_warnings": [],
		"estimated_duration": 15,
		"requires_expert": false
	}`
	h := newTestEngine(t, staticCompleter(content), defaultEngineConfig())

	res, err := h.engine.Start(context.Background(), StartRequest{
		SessionID: "sess-out",
		Problem:   "conveyor stops intermittently",
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	want := []string{"fuse filament intact", "continuity across terminals"}
	if len(res.Step.ExpectedOutcomes) != 2 ||
		res.Step.ExpectedOutcomes[0] != want[0] || res.Step.ExpectedOutcomes[1] != want[1] {
		t.Errorf("ExpectedOutcomes = %v, want %v", res.Step.ExpectedOutcomes, want)
	}

	stored, err := h.store.Step(context.Background(), "sess-out", res.Step.StepID)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(stored.ExpectedOutcomes) != 2 {
		t.Errorf("stored ExpectedOutcomes = %v", stored.ExpectedOutcomes)
	}
}

func TestStart_EmptyProblem(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "x")), defaultEngineConfig())

	_, err := h.engine.Start(context.Background(), StartRequest{SessionID: "s", Problem: "  "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Start() error = %v, want ErrInvalidInput", err)
	}
}

func TestStart_DuplicateSession(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "x")), defaultEngineConfig())
	ctx := context.Background()

	if _, err := h.engine.Start(ctx, StartRequest{SessionID: "dup", Problem: "won't start"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := h.engine.Start(ctx, StartRequest{SessionID: "dup", Problem: "won't start"}); !errors.Is(err, ErrSessionExists) {
		t.Errorf("second Start() error = %v, want ErrSessionExists", err)
	}
}

func TestStart_ProviderFailureLeavesNoSession(t *testing.T) {
	completer := &mockCompleter{
		generateFunc: func(call int, prompt string) (*provider.Response, error) {
			return nil, errors.New("provider down")
		},
	}
	h := newTestEngine(t, completer, defaultEngineConfig())
	ctx := context.Background()

	_, err := h.engine.Start(ctx, StartRequest{SessionID: "ghost", Problem: "won't start"})
	if !errors.Is(err, ErrAssessmentGeneration) {
		t.Fatalf("Start() error = %v, want ErrAssessmentGeneration", err)
	}

	if _, err := h.store.GetSession(ctx, "ghost"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("failed start left a visible session: %v", err)
	}

	// The same session id is reusable after the failure.
	h.completer.generateFunc = func(call int, prompt string) (*provider.Response, error) {
		return &provider.Response{Content: assessmentJSON("high", "x")}, nil
	}
	if _, err := h.engine.Start(ctx, StartRequest{SessionID: "ghost", Problem: "won't start"}); err != nil {
		t.Errorf("retry Start() error = %v", err)
	}
}

// stepFailStore fails CreateStep a fixed number of times before delegating.
type stepFailStore struct {
	session.Store
	failures int
}

func (s *stepFailStore) CreateStep(ctx context.Context, step *session.Step) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	return s.Store.CreateStep(ctx, step)
}

func TestStart_StepInsertFailureLeavesNoSession(t *testing.T) {
	store := &stepFailStore{Store: session.NewMemory(), failures: 1}
	h := newTestEngineWithStore(t, staticCompleter(assessmentJSON("high", "Check the fuse")), defaultEngineConfig(), store)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, StartRequest{SessionID: "ghost", Problem: "won't start"})
	if err == nil {
		t.Fatal("Start() error = nil, want step insert failure")
	}

	if _, err := h.store.GetSession(ctx, "ghost"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("failed start left a visible session: %v", err)
	}

	// The same session id is reusable once the store recovers.
	res, err := h.engine.Start(ctx, StartRequest{SessionID: "ghost", Problem: "won't start"})
	if err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if res.Step.StepNumber != 1 {
		t.Errorf("retry step number = %d, want 1", res.Step.StepNumber)
	}
}

func TestProcessUserFeedback_SuccessAdvancesPlan(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Check the fuse", "Replace the fuse")), defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "that worked, but I want to continue checking")
	if err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}
	if res.Outcome.Category != feedback.CategorySuccess {
		t.Errorf("outcome = %q, want success", res.Outcome.Category)
	}
	if res.NextStep == nil {
		t.Fatal("NextStep = nil, want the second plan step")
	}
	if res.NextStep.Instruction != "Replace the fuse" {
		t.Errorf("next instruction = %q", res.NextStep.Instruction)
	}
	if res.NextStep.StepNumber != 2 {
		t.Errorf("next step number = %d, want 2", res.NextStep.StepNumber)
	}
	if h.completer.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no re-analysis on success)", h.completer.calls)
	}
}

func TestProcessUserFeedback_FinalStepSuccessCompletes(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Tighten the belt")), defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "belt squeals"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "problem fixed")
	if err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}
	if res.NextStep != nil {
		t.Errorf("NextStep = %+v, want nil", res.NextStep)
	}
	if res.SessionStatus != session.StatusCompleted {
		t.Errorf("session status = %q, want completed", res.SessionStatus)
	}

	sess, err := h.store.GetSession(ctx, "s")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Status != session.StatusCompleted {
		t.Errorf("stored status = %q, want completed", sess.Status)
	}
}

func TestProcessUserFeedback_FailureTriggersReanalysis(t *testing.T) {
	completer := &mockCompleter{
		generateFunc: func(call int, prompt string) (*provider.Response, error) {
			if call == 1 {
				return &provider.Response{Content: assessmentJSON("high", "Check the fuse")}, nil
			}
			return &provider.Response{Content: assessmentJSON("medium", "Inspect the wiring harness")}, nil
		},
	}
	h := newTestEngine(t, completer, defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "still not working")
	if err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}
	if res.Outcome.Category != feedback.CategoryFailure {
		t.Errorf("outcome = %q, want failure", res.Outcome.Category)
	}
	if res.NextStep == nil {
		t.Fatal("NextStep = nil, want corrective step")
	}
	if res.NextStep.Instruction != "Inspect the wiring harness" {
		t.Errorf("corrective instruction = %q", res.NextStep.Instruction)
	}
	if res.NextStep.StepNumber != 2 {
		t.Errorf("corrective step number = %d, want 2", res.NextStep.StepNumber)
	}
	if h.completer.calls != 2 {
		t.Errorf("provider calls = %d, want 2", h.completer.calls)
	}

	// The revised assessment replaced the stored one.
	assessment, err := h.store.Assessment(ctx, "s")
	if err != nil {
		t.Fatalf("Assessment() error = %v", err)
	}
	if assessment.RecommendedSteps[0].Instruction != "Inspect the wiring harness" {
		t.Errorf("stored plan = %v", assessment.RecommendedSteps)
	}
}

func TestProcessUserFeedback_ReanalysisFailureLeavesStepPending(t *testing.T) {
	completer := &mockCompleter{
		generateFunc: func(call int, prompt string) (*provider.Response, error) {
			if call == 1 {
				return &provider.Response{Content: assessmentJSON("high", "Check the fuse")}, nil
			}
			return nil, errors.New("provider down")
		},
	}
	h := newTestEngine(t, completer, defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "still not working")
	if !errors.Is(err, ErrAssessmentGeneration) {
		t.Fatalf("ProcessUserFeedback() error = %v, want ErrAssessmentGeneration", err)
	}

	step, err := h.store.Step(ctx, "s", start.Step.StepID)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if step.Status != session.StepPending {
		t.Errorf("step status = %q, want pending for retry", step.Status)
	}

	// Retrying the same feedback now succeeds.
	h.completer.generateFunc = func(call int, prompt string) (*provider.Response, error) {
		return &provider.Response{Content: assessmentJSON("medium", "Inspect the wiring harness")}, nil
	}
	res, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "still not working")
	if err != nil {
		t.Fatalf("retry ProcessUserFeedback() error = %v", err)
	}
	if res.NextStep == nil || res.NextStep.StepNumber != 2 {
		t.Errorf("retry result = %+v", res)
	}
}

func TestProcessUserFeedback_Idempotence(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Check the fuse", "Replace the fuse")), defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "that worked, continuing"); err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}

	_, err = h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "that worked, continuing")
	if !errors.Is(err, ErrStepAlreadyProcessed) {
		t.Errorf("second submission error = %v, want ErrStepAlreadyProcessed", err)
	}

	sess, err := h.store.GetSession(ctx, "s")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Status != session.StatusActive {
		t.Errorf("session status changed by duplicate feedback: %q", sess.Status)
	}
}

func TestProcessUserFeedback_UnknownStep(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "x")), defaultEngineConfig())
	ctx := context.Background()

	if _, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "won't start"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := h.engine.ProcessUserFeedback(ctx, "s", "no-such-step", "ok"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("error = %v, want ErrStepNotFound", err)
	}
	if _, err := h.engine.ProcessUserFeedback(ctx, "missing", "step", "ok"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestProcessUserFeedback_HumanRequestEscalates(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Check the fuse", "Replace the fuse")), defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", UserID: "user-1", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "I want to talk to a human")
	if err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}
	if res.NextStep != nil {
		t.Errorf("NextStep = %+v, want nil", res.NextStep)
	}
	if res.SessionStatus != session.StatusEscalated {
		t.Errorf("session status = %q, want escalated", res.SessionStatus)
	}
	if res.Decision.Reason != escalation.ReasonUserRequest {
		t.Errorf("reason = %q, want user_request", res.Decision.Reason)
	}

	if len(h.notifier.events) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.notifier.events))
	}
	ev := h.notifier.events[0]
	if ev.Reason != escalation.ReasonUserRequest {
		t.Errorf("event reason = %q", ev.Reason)
	}
	if ev.ContactEmail != "ops@example.com" {
		t.Errorf("event contact = %q", ev.ContactEmail)
	}
}

func TestProcessUserFeedback_StepsExceededEscalates(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.MaxSteps = 3
	completer := &mockCompleter{
		generateFunc: func(call int, prompt string) (*provider.Response, error) {
			return &provider.Response{Content: assessmentJSON("high", fmt.Sprintf("Attempt %d", call))}, nil
		},
	}
	h := newTestEngine(t, completer, cfg)
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	step := start.Step
	for i := 0; i < cfg.MaxSteps; i++ {
		res, err := h.engine.ProcessUserFeedback(ctx, "s", step.StepID, "still not working")
		if err != nil {
			t.Fatalf("ProcessUserFeedback() #%d error = %v", i+1, err)
		}
		if i < cfg.MaxSteps-1 {
			if res.NextStep == nil {
				t.Fatalf("iteration %d: NextStep = nil before ceiling", i+1)
			}
			if res.NextStep.StepNumber != step.StepNumber+1 {
				t.Fatalf("step numbers not strictly increasing: %d after %d", res.NextStep.StepNumber, step.StepNumber)
			}
			step = res.NextStep
			continue
		}
		if res.NextStep != nil {
			t.Errorf("NextStep = %+v at ceiling, want nil", res.NextStep)
		}
		if res.SessionStatus != session.StatusEscalated {
			t.Errorf("session status = %q, want escalated", res.SessionStatus)
		}
		if res.Decision.Reason != escalation.ReasonStepsExceeded {
			t.Errorf("reason = %q, want steps_exceeded", res.Decision.Reason)
		}
	}
}

func TestProcessUserFeedback_TerminalSessionRejected(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Tighten the belt")), defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "belt squeals"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "problem fixed"); err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}

	if _, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "anything"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("error = %v, want ErrSessionNotActive", err)
	}
}

func TestProcessUserFeedback_NotifierFailureKeepsEscalation(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Check the fuse")), defaultEngineConfig())
	h.notifier.err = errors.New("ticketing down")
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "please get me a technician")
	if err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}
	if res.SessionStatus != session.StatusEscalated {
		t.Errorf("session status = %q, want escalated despite notifier failure", res.SessionStatus)
	}

	sess, err := h.store.GetSession(ctx, "s")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Status != session.StatusEscalated {
		t.Errorf("stored status = %q, want escalated", sess.Status)
	}
}

func TestGetSession(t *testing.T) {
	h := newTestEngine(t, staticCompleter(assessmentJSON("high", "Check the fuse", "Replace the fuse")), defaultEngineConfig())
	ctx := context.Background()

	start, err := h.engine.Start(ctx, StartRequest{SessionID: "s", Problem: "no power"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := h.engine.ProcessUserFeedback(ctx, "s", start.Step.StepID, "that worked, moving on"); err != nil {
		t.Fatalf("ProcessUserFeedback() error = %v", err)
	}

	sess, assessment, steps, err := h.engine.GetSession(ctx, "s")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.SessionID != "s" || assessment == nil {
		t.Errorf("GetSession() = %+v, %+v", sess, assessment)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}

	pending := 0
	for _, s := range steps {
		if s.Status == session.StepPending {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("pending steps = %d, want exactly 1", pending)
	}
}
