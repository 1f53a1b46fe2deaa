package domain

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ParsingLog records one attempt to collect from one source. A log is created
// running and transitions exactly once to completed or failed; FinishedAt is
// set iff the status is terminal.
type ParsingLog struct {
	ID          int64      `db:"id"`
	RunID       string     `db:"run_id"`
	ProjectID   int64      `db:"project_id"`
	SourceKind  SourceKind `db:"source_kind"`
	SourceID    int64      `db:"source_id"`
	Status      RunStatus  `db:"status"`
	ItemsAdded  int        `db:"items_added"`
	ErrorsCount int        `db:"errors_count"`
	StartedAt   time.Time  `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	Message     string     `db:"message"`
	ErrorDetail string     `db:"error_detail"`
}

// RunFilter narrows a parsing-log listing; nil fields do not constrain.
type RunFilter struct {
	RunID  *string
	Status *RunStatus
}

// RunStats holds the totals of one orchestrator pass.
type RunStats struct {
	RunID     string
	StartedAt time.Time
	Sources   int
	Added     int
	Errors    int
	Published int
	Duration  time.Duration
}
