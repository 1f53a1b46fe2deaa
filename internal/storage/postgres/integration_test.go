//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *pgcontainer.PostgresContainer
	store     *Store
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := pgcontainer.Run(s.ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("test_db"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.store = New(connStr)
	s.Require().NoError(s.store.Init(s.ctx))
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	db, err := s.store.conn()
	s.Require().NoError(err)
	_, _ = db.ExecContext(s.ctx, "DELETE FROM parsing_logs")
	_, _ = db.ExecContext(s.ctx, "DELETE FROM content_sources")
	_, _ = db.ExecContext(s.ctx, "DELETE FROM content_items")
	_, _ = db.ExecContext(s.ctx, "DELETE FROM sources")
	_, _ = db.ExecContext(s.ctx, "DELETE FROM projects")
	_, _ = db.ExecContext(s.ctx, "DELETE FROM users")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) seedSource(kind domain.SourceKind, locator string) (*domain.Project, *domain.Source) {
	user, err := s.store.CreateUser(s.ctx, time.Now().UnixNano(), "tester")
	s.Require().NoError(err)
	project, err := s.store.CreateProject(s.ctx, user.ID, "competitors")
	s.Require().NoError(err)
	source, err := s.store.CreateSource(s.ctx, project.ID, kind, locator, 0)
	s.Require().NoError(err)
	return project, source
}

func (s *PostgresIntegrationSuite) TestSaveContentBatch_IdempotentUpsert() {
	_, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	draft := domain.ContentDraft{
		SourceID:    source.ID,
		URL:         "https://example.com/v/1",
		PublishedAt: time.Now().Add(-time.Hour).Truncate(time.Microsecond),
		Views:       100,
		Likes:       10,
	}

	inserted, err := s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{draft})
	s.Require().NoError(err)
	s.Equal(1, inserted)

	items, _, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	firstSeen := items[0].FirstSeenAt

	draft.Views = 250
	inserted, err = s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{draft})
	s.Require().NoError(err)
	s.Equal(0, inserted)

	items, total, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(int64(250), items[0].Views)
	s.True(items[0].FirstSeenAt.Equal(firstSeen))
}

func (s *PostgresIntegrationSuite) TestSaveContentBatch_RollsBackOnFailure() {
	_, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	drafts := []domain.ContentDraft{
		{SourceID: source.ID, URL: "https://example.com/v/1", PublishedAt: time.Now()},
		{SourceID: 999999, URL: "https://example.com/v/2", PublishedAt: time.Now()},
	}

	_, err := s.store.SaveContentBatch(s.ctx, drafts)
	s.ErrorIs(err, storage.ErrNotFound)

	_, total, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(0, total)
}

func (s *PostgresIntegrationSuite) TestContentSharedAcrossSources() {
	project, account := s.seedSource(domain.SourceKindAccount, "acct/x")
	hashtag, err := s.store.CreateSource(s.ctx, project.ID, domain.SourceKindHashtag, "#tag", 0)
	s.Require().NoError(err)

	url := "https://example.com/v/shared"
	_, err = s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{
		{SourceID: account.ID, URL: url, PublishedAt: time.Now()},
	})
	s.Require().NoError(err)

	inserted, err := s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{
		{SourceID: hashtag.ID, URL: url, PublishedAt: time.Now()},
	})
	s.Require().NoError(err)
	s.Equal(0, inserted)

	// Visible under either source filter, counted once overall.
	_, total, err := s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{SourceID: &hashtag.ID}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)

	_, total, err = s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{SourceID: &account.ID}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)

	_, total, err = s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)
}

func (s *PostgresIntegrationSuite) TestRunLogTransitions() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	logID, err := s.store.StartRun(s.ctx, "run-1", project.ID, source.Kind, source.ID)
	s.Require().NoError(err)

	// The partial unique index rejects a second running log for the tuple.
	_, err = s.store.StartRun(s.ctx, "run-1", project.ID, source.Kind, source.ID)
	s.ErrorIs(err, storage.ErrConflict)

	s.Require().NoError(s.store.CompleteRun(s.ctx, logID, 3, ""))
	s.ErrorIs(s.store.FailRun(s.ctx, logID, "late", ""), storage.ErrInvalidState)

	logID2, err := s.store.StartRun(s.ctx, "run-2", project.ID, source.Kind, source.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.store.FailRun(s.ctx, logID2, "boom", "collect failed"))

	logs, err := s.store.ListRuns(s.ctx, project.ID, domain.RunFilter{})
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	s.Equal(domain.RunStatusFailed, logs[0].Status)
	s.Equal(domain.RunStatusCompleted, logs[1].Status)
	s.Equal(3, logs[1].ItemsAdded)
}

func (s *PostgresIntegrationSuite) TestParsingLogSurvivesSourceDeletion() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	logID, err := s.store.StartRun(s.ctx, "run-1", project.ID, source.Kind, source.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CompleteRun(s.ctx, logID, 0, ""))

	s.Require().NoError(s.store.DeleteSource(s.ctx, source.ID))

	logs, err := s.store.ListRuns(s.ctx, project.ID, domain.RunFilter{})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(source.ID, logs[0].SourceID)
}

func (s *PostgresIntegrationSuite) TestMarkSourceRun_Monotonic() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	later := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.MarkSourceRun(s.ctx, source.ID, later))
	s.Require().NoError(s.store.MarkSourceRun(s.ctx, source.ID, later.Add(-time.Hour)))

	sources, err := s.store.ListSources(s.ctx, project.ID, false)
	s.Require().NoError(err)
	s.Require().Len(sources, 1)
	s.Require().NotNil(sources[0].LastRunAt)
	s.True(sources[0].LastRunAt.Equal(later))
}
