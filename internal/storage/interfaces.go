package storage

import (
	"context"
	"time"

	"reeltrack/internal/domain"
)

// LogRecorder is the parsing-log slice of the store. It is split out because
// its invariant (each log transitions exactly once from running to a terminal
// status) is independent of content persistence.
type LogRecorder interface {
	// StartRun inserts a running log for one source within one pass and
	// returns its id. A second start for the same (runID, kind, sourceID)
	// tuple while the first is still running fails with ErrConflict.
	StartRun(ctx context.Context, runID string, projectID int64, kind domain.SourceKind, sourceID int64) (int64, error)

	// CompleteRun transitions a running log to completed, recording the
	// number of newly inserted items. ErrInvalidState unless running.
	CompleteRun(ctx context.Context, logID int64, added int, message string) error

	// FailRun transitions a running log to failed, recording the error
	// detail. ErrInvalidState unless running.
	FailRun(ctx context.Context, logID int64, errDetail string, message string) error

	// ListRuns returns a project's logs, newest first.
	ListRuns(ctx context.Context, projectID int64, filter domain.RunFilter) ([]domain.ParsingLog, error)
}

// Store is the persistence contract shared by the memory, sqlite and postgres
// backends. Construction picks a backend; callers depend only on this
// interface. Every data operation fails with ErrNotReady before Init.
type Store interface {
	LogRecorder

	// Init acquires the underlying connection or session.
	Init(ctx context.Context) error
	// Close releases it. Safe to call even if Init partially failed.
	Close() error

	GetUserByExternalID(ctx context.Context, externalID int64) (*domain.User, error)
	CreateUser(ctx context.Context, externalID int64, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	ListProjects(ctx context.Context, userID int64) ([]domain.Project, error)
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	CreateProject(ctx context.Context, userID int64, name string) (*domain.Project, error)
	UpdateProject(ctx context.Context, id int64, upd domain.ProjectUpdate) error

	ListSources(ctx context.Context, projectID int64, activeOnly bool) ([]domain.Source, error)
	CreateSource(ctx context.Context, projectID int64, kind domain.SourceKind, locator string, priority int) (*domain.Source, error)
	UpdateSource(ctx context.Context, id int64, upd domain.SourceUpdate) error
	DeleteSource(ctx context.Context, id int64) error
	// MarkSourceRun advances a source's last-run timestamp. The timestamp
	// only moves forward: an earlier value is a no-op, not an error.
	MarkSourceRun(ctx context.Context, id int64, t time.Time) error

	// ListContent returns a project's items matching the filter, plus the
	// total match count ignoring pagination. Ordering is by the selected key
	// with a views-then-id tiebreak so pages are deterministic.
	ListContent(ctx context.Context, projectID int64, filter domain.ContentFilter, order domain.ContentOrder, page domain.Page) ([]domain.ContentItem, int, error)

	// SaveContentBatch upserts drafts keyed by URL and links each to its
	// source. The call is atomic: on any failure nothing is applied. Returns
	// the number of newly inserted items; updates do not count.
	SaveContentBatch(ctx context.Context, drafts []domain.ContentDraft) (int, error)
}
