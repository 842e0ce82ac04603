// Package enrichment retrieves machine and user context from the ERP
// backend to enrich problem analysis.
//
// Every lookup is independently optional: the troubleshooting workflow must
// proceed when the ERP is unreachable, so failures degrade to missing
// context rather than errors.
package enrichment

import "time"

// MachineDetails describes a registered machine.
type MachineDetails struct {
	MachineID      string    `json:"machine_id"`
	Model          string    `json:"model"`
	Manufacturer   string    `json:"manufacturer"`
	SerialNumber   string    `json:"serial_number"`
	OperatingHours float64   `json:"operating_hours"`
	Location       string    `json:"location"`
	InstalledAt    time.Time `json:"installed_at"`
}

// MaintenanceEntry is one record from a machine's maintenance log.
type MaintenanceEntry struct {
	Date        time.Time `json:"date"`
	Type        string    `json:"type"` // corrective, preventive, inspection
	Description string    `json:"description"`
	Technician  string    `json:"technician,omitempty"`
}

// PreventiveSuggestion is an outstanding preventive-maintenance item.
type PreventiveSuggestion struct {
	Description string     `json:"description"`
	Priority    string     `json:"priority,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// UserPreferences holds per-user settings relevant to troubleshooting.
type UserPreferences struct {
	Language     string `json:"language"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// MachineContext aggregates everything known about a machine for analysis.
// Any field may be nil/empty when the corresponding lookup failed.
type MachineContext struct {
	Details     *MachineDetails        `json:"details,omitempty"`
	History     []MaintenanceEntry     `json:"history,omitempty"`
	Suggestions []PreventiveSuggestion `json:"suggestions,omitempty"`
	Preferences *UserPreferences       `json:"preferences,omitempty"`
}

// Empty reports whether no context was gathered at all.
func (m *MachineContext) Empty() bool {
	return m == nil || (m.Details == nil && len(m.History) == 0 &&
		len(m.Suggestions) == 0 && m.Preferences == nil)
}
