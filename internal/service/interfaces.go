package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"reeltrack/internal/domain"
)

// Store is the slice of the storage contract the orchestrator consumes.
// Every storage backend satisfies it.
type Store interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListProjects(ctx context.Context, userID int64) ([]domain.Project, error)
	ListSources(ctx context.Context, projectID int64, activeOnly bool) ([]domain.Source, error)
	SaveContentBatch(ctx context.Context, drafts []domain.ContentDraft) (int, error)
	MarkSourceRun(ctx context.Context, id int64, t time.Time) error

	StartRun(ctx context.Context, runID string, projectID int64, kind domain.SourceKind, sourceID int64) (int64, error)
	CompleteRun(ctx context.Context, logID int64, added int, message string) error
	FailRun(ctx context.Context, logID int64, errDetail string, message string) error
}

// CollectParams is the per-call configuration handed to the collector.
type CollectParams struct {
	MinViews   int64
	MaxAgeDays int
	AuthToken  string
}

// Collector performs the actual content retrieval for one source locator.
// It is treated as fallible and slow; retries, if any, are its own business.
type Collector interface {
	Collect(ctx context.Context, locator string, params CollectParams) ([]domain.ContentRecord, error)
}

// CollectedEvent describes one successfully collected source within a pass.
type CollectedEvent struct {
	RunID     string    `json:"run_id"`
	ProjectID int64     `json:"project_id"`
	SourceID  int64     `json:"source_id"`
	Locator   string    `json:"locator"`
	Added     int       `json:"added"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event CollectedEvent) error
	Close() error
}
