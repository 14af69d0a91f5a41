package manifest

// ProcessingStatus tracks a manifest or data file through its lifecycle.
// Discovered and Started are eligible for (re)processing; Completed and
// Rejected are terminal.
type ProcessingStatus string

const (
	StatusDiscovered ProcessingStatus = "discovered"
	StatusStarted    ProcessingStatus = "started"
	StatusCompleted  ProcessingStatus = "completed"
	StatusRejected   ProcessingStatus = "rejected"
)

func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

func (s ProcessingStatus) IsEligible() bool {
	return s == StatusDiscovered || s == StatusStarted
}
