package invoice

import "time"

// GenerationRun records one invocation of the recurrence driver, for audit
// and for the admin API.
type GenerationRun struct {
	ID          string
	Trigger     string // scheduled, manual, cli
	Status      string // running, completed, failed
	Created     int
	Skipped     int
	Failed      int
	Generated   []string // invoice numbers created by this run
	Errors      []string // per-template failures, "<template id>: <error>"
	Error       string   // run-level failure
	StartedAt   time.Time
	CompletedAt *time.Time
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)
