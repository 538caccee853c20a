// Package domain provides the domain models and error taxonomy for the PubMed harvester.
package domain

// RunStatus represents the lifecycle states of a harvest run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusSearching RunStatus = "searching"
	RunStatusFetching  RunStatus = "fetching"
	RunStatusExporting RunStatus = "exporting"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	default:
		return false
	}
}

// Severity classifies observer milestone messages.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
