package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
)

// SQLiteStore is the durable Store backend.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) a SQLite-backed store at path.
func NewSQLite(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	// modernc.org/sqlite applies _pragma per pooled connection.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL DEFAULT '',
		machine_id TEXT NOT NULL DEFAULT '',
		problem    TEXT NOT NULL,
		language   TEXT NOT NULL,
		status     TEXT NOT NULL,
		assessment TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS steps (
		step_id           TEXT NOT NULL,
		session_id        TEXT NOT NULL REFERENCES sessions(session_id),
		step_number       INTEGER NOT NULL,
		instruction       TEXT NOT NULL,
		expected_outcomes TEXT NOT NULL,
		status            TEXT NOT NULL,
		user_feedback     TEXT NOT NULL DEFAULT '',
		outcome           TEXT NOT NULL DEFAULT '',
		success           INTEGER NOT NULL DEFAULT 0,
		created_at        INTEGER NOT NULL,
		completed_at      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, step_id)
	);
	CREATE INDEX IF NOT EXISTS idx_steps_session ON steps(session_id, step_number);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session, assessment *analysis.Assessment) error {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, machine_id, problem, language, status, assessment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.UserID, sess.MachineID, sess.Problem, sess.Language, string(sess.Status),
		string(payload), sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, machine_id, problem, language, status, created_at, updated_at
		FROM sessions WHERE session_id = ?`, sessionID)

	var sess Session
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&sess.SessionID, &sess.UserID, &sess.MachineID, &sess.Problem, &sess.Language, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Status = Status(status)
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(status), time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return requireRow(res, ErrSessionNotFound)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := requireRow(res, ErrSessionNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, sessionID string, assessment *analysis.Assessment) error {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET assessment = ?, updated_at = ? WHERE session_id = ?`,
		string(payload), time.Now().Unix(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return requireRow(res, ErrSessionNotFound)
}

func (s *SQLiteStore) Assessment(ctx context.Context, sessionID string) (*analysis.Assessment, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT assessment FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assessment: %w", err)
	}

	var assessment analysis.Assessment
	if err := json.Unmarshal([]byte(payload), &assessment); err != nil {
		return nil, fmt.Errorf("unmarshal assessment: %w", err)
	}
	return &assessment, nil
}

func (s *SQLiteStore) CreateStep(ctx context.Context, step *Step) error {
	outcomes, err := json.Marshal(step.ExpectedOutcomes)
	if err != nil {
		return fmt.Errorf("marshal expected outcomes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps (step_id, session_id, step_number, instruction, expected_outcomes, status, user_feedback, outcome, success, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.StepID, step.SessionID, step.StepNumber, step.Instruction, string(outcomes),
		string(step.Status), step.UserFeedback, step.Outcome, boolToInt(step.Success),
		step.CreatedAt.Unix(), unixOrZero(step.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Step(ctx context.Context, sessionID, stepID string) (*Step, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT step_id, session_id, step_number, instruction, expected_outcomes, status, user_feedback, outcome, success, created_at, completed_at
		FROM steps WHERE session_id = ? AND step_id = ?`, sessionID, stepID)

	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStepNotFound
	}
	return step, err
}

func (s *SQLiteStore) CompleteStep(ctx context.Context, sessionID, stepID, feedback, outcome string, success bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status = ?, user_feedback = ?, outcome = ?, success = ?, completed_at = ?
		WHERE session_id = ? AND step_id = ?`,
		string(StepCompleted), feedback, outcome, boolToInt(success), time.Now().Unix(),
		sessionID, stepID,
	)
	if err != nil {
		return fmt.Errorf("complete step: %w", err)
	}
	return requireRow(res, ErrStepNotFound)
}

func (s *SQLiteStore) Steps(ctx context.Context, sessionID string) ([]*Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, session_id, step_number, instruction, expected_outcomes, status, user_feedback, outcome, success, created_at, completed_at
		FROM steps WHERE session_id = ? ORDER BY step_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []*Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*Step, error) {
	var step Step
	var outcomes, status string
	var success int
	var createdAt, completedAt int64

	err := row.Scan(
		&step.StepID, &step.SessionID, &step.StepNumber, &step.Instruction,
		&outcomes, &status, &step.UserFeedback, &step.Outcome, &success,
		&createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(outcomes), &step.ExpectedOutcomes); err != nil {
		return nil, fmt.Errorf("unmarshal expected outcomes: %w", err)
	}
	step.Status = StepStatus(status)
	step.Success = success != 0
	step.CreatedAt = time.Unix(createdAt, 0)
	if completedAt > 0 {
		step.CompletedAt = time.Unix(completedAt, 0)
	}
	return &step, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
