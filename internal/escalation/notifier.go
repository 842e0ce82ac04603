package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/analysis"
	"github.com/fyrsmithlabs/diagnosd/internal/config"
	"github.com/fyrsmithlabs/diagnosd/internal/session"
)

var tracer = otel.Tracer("diagnosd/escalation")

// Event is the escalation record handed to the ticketing side.
type Event struct {
	Session      *session.Session     `json:"session"`
	Assessment   *analysis.Assessment `json:"assessment"`
	Reason       Reason               `json:"reason"`
	ContactEmail string               `json:"contact_email,omitempty"`
	EscalatedAt  time.Time            `json:"escalated_at"`
}

// Notifier delivers escalation events. Delivery is best effort: the caller
// logs a failure but never reverts the session's escalated state.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NATSNotifier publishes escalation events to
// <prefix>.escalations.<reason>.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *zap.Logger
	prefix string
}

var _ Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier creates a notifier over an existing NATS connection.
func NewNATSNotifier(conn *nats.Conn, logger *zap.Logger, cfg config.NATSConfig) (*NATSNotifier, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required for escalation notifier")
	}
	if logger == nil {
		return nil, errors.New("logger is required for escalation notifier")
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "diagnosd"
	}
	return &NATSNotifier{conn: conn, logger: logger, prefix: prefix}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, ev Event) error {
	_, span := tracer.Start(ctx, "NATSNotifier.Notify")
	defer span.End()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal escalation event: %w", err)
	}

	subject := fmt.Sprintf("%s.escalations.%s", n.prefix, ev.Reason)
	if err := n.conn.Publish(subject, payload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish escalation to %s: %w", subject, err)
	}

	n.logger.Info("escalation published",
		zap.String("subject", subject),
		zap.String("session_id", ev.Session.SessionID),
		zap.String("reason", string(ev.Reason)),
	)
	return nil
}

// LogNotifier records escalations in the log only, for runs without a
// message bus.
type LogNotifier struct {
	logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) (*LogNotifier, error) {
	if logger == nil {
		return nil, errors.New("logger is required for escalation notifier")
	}
	return &LogNotifier{logger: logger}, nil
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	n.logger.Warn("session escalated",
		zap.String("session_id", ev.Session.SessionID),
		zap.String("reason", string(ev.Reason)),
		zap.String("contact_email", ev.ContactEmail),
	)
	return nil
}
