package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
)

// MemoryStore is an in-memory Store for tests and single-process
// development runs. Contents are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	assessments map[string]*analysis.Assessment
	steps       map[string]map[string]*Step
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		assessments: make(map[string]*analysis.Assessment),
		steps:       make(map[string]map[string]*Step),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, sess *Session, assessment *analysis.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sess.SessionID]; ok {
		return ErrSessionExists
	}
	copied := *sess
	assessed := *assessment
	m.sessions[sess.SessionID] = &copied
	m.assessments[sess.SessionID] = &assessed
	m.steps[sess.SessionID] = make(map[string]*Step)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *MemoryStore) UpdateSessionStatus(ctx context.Context, sessionID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = status
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.assessments, sessionID)
	delete(m.steps, sessionID)
	return nil
}

func (m *MemoryStore) SaveAssessment(ctx context.Context, sessionID string, assessment *analysis.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	copied := *assessment
	m.assessments[sessionID] = &copied
	sess.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Assessment(ctx context.Context, sessionID string) (*analysis.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assessment, ok := m.assessments[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *assessment
	return &copied, nil
}

func (m *MemoryStore) CreateStep(ctx context.Context, step *Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps, ok := m.steps[step.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	copied := *step
	steps[step.StepID] = &copied
	return nil
}

func (m *MemoryStore) Step(ctx context.Context, sessionID, stepID string) (*Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	step, ok := m.steps[sessionID][stepID]
	if !ok {
		return nil, ErrStepNotFound
	}
	copied := *step
	return &copied, nil
}

func (m *MemoryStore) CompleteStep(ctx context.Context, sessionID, stepID, feedback, outcome string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	step, ok := m.steps[sessionID][stepID]
	if !ok {
		return ErrStepNotFound
	}
	step.Status = StepCompleted
	step.UserFeedback = feedback
	step.Outcome = outcome
	step.Success = success
	step.CompletedAt = time.Now()
	return nil
}

func (m *MemoryStore) Steps(ctx context.Context, sessionID string) ([]*Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var steps []*Step
	for _, step := range m.steps[sessionID] {
		copied := *step
		steps = append(steps, &copied)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	return steps, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
