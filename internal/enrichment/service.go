package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagnosd/internal/config"
)

var tracer = otel.Tracer("diagnosd/enrichment")

// Enricher looks up machine and user context. Each method returns nil (not
// an error) when the backing system cannot answer; callers treat all
// context as advisory.
type Enricher interface {
	MachineDetails(ctx context.Context, machineID string) *MachineDetails
	MaintenanceHistory(ctx context.Context, machineID string, limit int) []MaintenanceEntry
	PreventiveSuggestions(ctx context.Context, machineID string) []PreventiveSuggestion
	UserPreferences(ctx context.Context, userID string) *UserPreferences
}

// Gather assembles a full MachineContext from an Enricher. Either id may be
// empty, in which case the corresponding lookups are skipped.
func Gather(ctx context.Context, e Enricher, machineID, userID string, historyLimit int) *MachineContext {
	if e == nil {
		return nil
	}

	mc := &MachineContext{}
	if machineID != "" {
		mc.Details = e.MachineDetails(ctx, machineID)
		mc.History = e.MaintenanceHistory(ctx, machineID, historyLimit)
		mc.Suggestions = e.PreventiveSuggestions(ctx, machineID)
	}
	if userID != "" {
		mc.Preferences = e.UserPreferences(ctx, userID)
	}

	if mc.Empty() {
		return nil
	}
	return mc
}

// NATSClient is an Enricher backed by NATS request/reply against the ERP
// backend. Subjects follow <prefix>.erp.<entity>.<operation>.
type NATSClient struct {
	conn    *nats.Conn
	logger  *zap.Logger
	prefix  string
	timeout time.Duration
}

// NewNATSClient creates an ERP enrichment client over an existing NATS
// connection.
func NewNATSClient(conn *nats.Conn, logger *zap.Logger, cfg config.NATSConfig) (*NATSClient, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required for enrichment client")
	}
	if logger == nil {
		return nil, errors.New("logger is required for enrichment client")
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "diagnosd"
	}
	timeout := cfg.RequestTimeout.Duration()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &NATSClient{
		conn:    conn,
		logger:  logger,
		prefix:  prefix,
		timeout: timeout,
	}, nil
}

// request performs one request/reply exchange and decodes the JSON reply
// into out. Failures are logged and reported via the bool return.
func (c *NATSClient) request(ctx context.Context, subject string, payload, out interface{}) bool {
	ctx, span := tracer.Start(ctx, "enrichment.request")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("enrichment request marshal failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return false
	}

	msg, err := c.conn.RequestWithContext(ctx, fmt.Sprintf("%s.erp.%s", c.prefix, subject), data)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("enrichment request failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return false
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		span.RecordError(err)
		c.logger.Warn("enrichment reply decode failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return false
	}

	return true
}

// MachineDetails fetches machine details, nil when unavailable.
func (c *NATSClient) MachineDetails(ctx context.Context, machineID string) *MachineDetails {
	var details MachineDetails
	req := map[string]string{"machine_id": machineID}
	if !c.request(ctx, "machines.details", req, &details) {
		return nil
	}
	if details.MachineID == "" {
		return nil
	}
	return &details
}

// MaintenanceHistory fetches up to limit recent maintenance entries,
// newest first; nil when unavailable.
func (c *NATSClient) MaintenanceHistory(ctx context.Context, machineID string, limit int) []MaintenanceEntry {
	var entries []MaintenanceEntry
	req := map[string]interface{}{"machine_id": machineID, "limit": limit}
	if !c.request(ctx, "machines.maintenance", req, &entries) {
		return nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// PreventiveSuggestions fetches outstanding preventive-maintenance items,
// nil when unavailable.
func (c *NATSClient) PreventiveSuggestions(ctx context.Context, machineID string) []PreventiveSuggestion {
	var suggestions []PreventiveSuggestion
	req := map[string]string{"machine_id": machineID}
	if !c.request(ctx, "machines.preventive", req, &suggestions) {
		return nil
	}
	return suggestions
}

// UserPreferences fetches the user's locale and contact preferences,
// nil when unavailable.
func (c *NATSClient) UserPreferences(ctx context.Context, userID string) *UserPreferences {
	var prefs UserPreferences
	req := map[string]string{"user_id": userID}
	if !c.request(ctx, "users.preferences", req, &prefs) {
		return nil
	}
	if prefs.Language == "" && prefs.ContactEmail == "" {
		return nil
	}
	return &prefs
}

var _ Enricher = (*NATSClient)(nil)
