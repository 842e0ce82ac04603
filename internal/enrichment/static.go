package enrichment

import "context"

// Static is an Enricher serving fixed data, for tests and air-gapped
// deployments without an ERP backend.
type Static struct {
	Details     map[string]*MachineDetails
	History     map[string][]MaintenanceEntry
	Suggestions map[string][]PreventiveSuggestion
	Preferences map[string]*UserPreferences
}

func (s *Static) MachineDetails(_ context.Context, machineID string) *MachineDetails {
	return s.Details[machineID]
}

func (s *Static) MaintenanceHistory(_ context.Context, machineID string, limit int) []MaintenanceEntry {
	entries := s.History[machineID]
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func (s *Static) PreventiveSuggestions(_ context.Context, machineID string) []PreventiveSuggestion {
	return s.Suggestions[machineID]
}

func (s *Static) UserPreferences(_ context.Context, userID string) *UserPreferences {
	return s.Preferences[userID]
}

var _ Enricher = (*Static)(nil)
