package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

type MemoryStoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func (s *MemoryStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
	s.Require().NoError(s.store.Init(s.ctx))
}

func TestMemoryStoreTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}

// seedSource creates a user, project and source, returning the source.
func (s *MemoryStoreTestSuite) seedSource(kind domain.SourceKind, locator string) (*domain.Project, *domain.Source) {
	user, err := s.store.CreateUser(s.ctx, time.Now().UnixNano(), "tester")
	s.Require().NoError(err)
	project, err := s.store.CreateProject(s.ctx, user.ID, "competitors")
	s.Require().NoError(err)
	source, err := s.store.CreateSource(s.ctx, project.ID, kind, locator, 0)
	s.Require().NoError(err)
	return project, source
}

func (s *MemoryStoreTestSuite) TestNotReady() {
	store := New()

	_, err := store.ListUsers(s.ctx)
	s.ErrorIs(err, storage.ErrNotReady)

	_, err = store.SaveContentBatch(s.ctx, []domain.ContentDraft{{URL: "u"}})
	s.ErrorIs(err, storage.ErrNotReady)
}

func (s *MemoryStoreTestSuite) TestCloseAfterPartialInit() {
	store := New()
	s.NoError(store.Close())
}

func (s *MemoryStoreTestSuite) TestUserLifecycle() {
	u, err := s.store.CreateUser(s.ctx, 42, "alice")
	s.Require().NoError(err)
	s.NotZero(u.ID)

	_, err = s.store.CreateUser(s.ctx, 42, "impostor")
	s.ErrorIs(err, storage.ErrConflict)

	got, err := s.store.GetUserByExternalID(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)
	s.Equal("alice", got.Username)

	_, err = s.store.GetUserByExternalID(s.ctx, 43)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestCreateProject_UserNotFound() {
	_, err := s.store.CreateProject(s.ctx, 999, "ghost")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestUpdateProject() {
	project, _ := s.seedSource(domain.SourceKindAccount, "acct/x")

	inactive := false
	name := "renamed"
	s.Require().NoError(s.store.UpdateProject(s.ctx, project.ID, domain.ProjectUpdate{Name: &name, Active: &inactive}))

	got, err := s.store.GetProject(s.ctx, project.ID)
	s.Require().NoError(err)
	s.Equal("renamed", got.Name)
	s.False(got.Active)

	err = s.store.UpdateProject(s.ctx, 999, domain.ProjectUpdate{Name: &name})
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestListSources_ActiveOnly() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	inactive := false
	s.Require().NoError(s.store.UpdateSource(s.ctx, source.ID, domain.SourceUpdate{Active: &inactive}))
	_, err := s.store.CreateSource(s.ctx, project.ID, domain.SourceKindHashtag, "#tag", 0)
	s.Require().NoError(err)

	all, err := s.store.ListSources(s.ctx, project.ID, false)
	s.Require().NoError(err)
	s.Len(all, 2)

	active, err := s.store.ListSources(s.ctx, project.ID, true)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(domain.SourceKindHashtag, active[0].Kind)
}

func (s *MemoryStoreTestSuite) TestSaveContentBatch_IdempotentUpsert() {
	_, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	draft := domain.ContentDraft{
		SourceID:    source.ID,
		URL:         "https://example.com/v/1",
		PublishedAt: time.Now().Add(-time.Hour),
		Views:       100,
	}

	inserted, err := s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{draft})
	s.Require().NoError(err)
	s.Equal(1, inserted)

	items, total, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Require().Equal(1, total)
	firstSeen := items[0].FirstSeenAt

	draft.Views = 250
	inserted, err = s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{draft})
	s.Require().NoError(err)
	s.Equal(0, inserted)

	items, total, err = s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(int64(250), items[0].Views)
	s.True(items[0].FirstSeenAt.Equal(firstSeen))
	s.False(items[0].LastUpdatedAt.Before(firstSeen))
}

func (s *MemoryStoreTestSuite) TestSaveContentBatch_Atomic() {
	_, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	drafts := []domain.ContentDraft{
		{SourceID: source.ID, URL: "https://example.com/v/1", PublishedAt: time.Now()},
		{SourceID: 999, URL: "https://example.com/v/2", PublishedAt: time.Now()},
		{SourceID: source.ID, URL: "https://example.com/v/3", PublishedAt: time.Now()},
	}

	_, err := s.store.SaveContentBatch(s.ctx, drafts)
	s.ErrorIs(err, storage.ErrNotFound)

	_, total, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(0, total)
}

func (s *MemoryStoreTestSuite) TestListContent_PaginationDeterminism() {
	_, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var drafts []domain.ContentDraft
	for i := 0; i < 5; i++ {
		drafts = append(drafts, domain.ContentDraft{
			SourceID:    source.ID,
			URL:         "https://example.com/v/" + string(rune('a'+i)),
			PublishedAt: base.Add(time.Duration(i) * time.Minute),
			Views:       int64(10 * i),
		})
	}
	_, err := s.store.SaveContentBatch(s.ctx, drafts)
	s.Require().NoError(err)

	full, total, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Require().Equal(5, total)
	s.Require().Len(full, 5)

	var paged []domain.ContentItem
	for offset := 0; offset < 5; offset += 2 {
		page, pageTotal, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{Limit: 2, Offset: offset})
		s.Require().NoError(err)
		s.Equal(5, pageTotal)
		paged = append(paged, page...)
	}

	s.Require().Len(paged, 5)
	for i := range full {
		s.Equal(full[i].ID, paged[i].ID)
	}

	// Newest first.
	for i := 1; i < len(full); i++ {
		s.False(full[i].PublishedAt.After(full[i-1].PublishedAt))
	}
}

func (s *MemoryStoreTestSuite) TestListContent_TiebreakOnViews() {
	_, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{
		{SourceID: source.ID, URL: "https://example.com/v/low", PublishedAt: at, Views: 10},
		{SourceID: source.ID, URL: "https://example.com/v/high", PublishedAt: at, Views: 90},
	})
	s.Require().NoError(err)

	items, _, err := s.store.ListContent(s.ctx, source.ProjectID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal("https://example.com/v/high", items[0].URL)
}

func (s *MemoryStoreTestSuite) TestListContent_Filters() {
	project, account := s.seedSource(domain.SourceKindAccount, "acct/x")
	hashtag, err := s.store.CreateSource(s.ctx, project.ID, domain.SourceKindHashtag, "#tag", 0)
	s.Require().NoError(err)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{
		{SourceID: account.ID, URL: "https://example.com/v/1", PublishedAt: old, Views: 50},
		{SourceID: hashtag.ID, URL: "https://example.com/v/2", PublishedAt: fresh, Views: 5000},
	})
	s.Require().NoError(err)

	minViews := int64(1000)
	_, total, err := s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{MinViews: &minViews}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)

	kind := domain.SourceKindAccount
	_, total, err = s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{SourceKind: &kind}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)

	after := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, total, err = s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{PublishedAfter: &after}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)

	srcID := hashtag.ID
	items, total, err := s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{SourceID: &srcID}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("https://example.com/v/2", items[0].URL)
}

func (s *MemoryStoreTestSuite) TestRunLogTransitions() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	logID, err := s.store.StartRun(s.ctx, "run-1", project.ID, source.Kind, source.ID)
	s.Require().NoError(err)

	_, err = s.store.StartRun(s.ctx, "run-1", project.ID, source.Kind, source.ID)
	s.ErrorIs(err, storage.ErrConflict)

	s.Require().NoError(s.store.CompleteRun(s.ctx, logID, 3, "ok"))

	err = s.store.CompleteRun(s.ctx, logID, 3, "again")
	s.ErrorIs(err, storage.ErrInvalidState)
	err = s.store.FailRun(s.ctx, logID, "late", "")
	s.ErrorIs(err, storage.ErrInvalidState)

	// A terminal log does not block a new attempt for the same tuple.
	_, err = s.store.StartRun(s.ctx, "run-1", project.ID, source.Kind, source.ID)
	s.NoError(err)

	logs, err := s.store.ListRuns(s.ctx, project.ID, domain.RunFilter{})
	s.Require().NoError(err)
	s.Require().Len(logs, 2)

	status := domain.RunStatusCompleted
	logs, err = s.store.ListRuns(s.ctx, project.ID, domain.RunFilter{Status: &status})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(3, logs[0].ItemsAdded)
	s.Require().NotNil(logs[0].FinishedAt)
	s.False(logs[0].FinishedAt.Before(logs[0].StartedAt))
}

func (s *MemoryStoreTestSuite) TestFailRunRecordsDetail() {
	project, source := s.seedSource(domain.SourceKindHashtag, "#tag")

	logID, err := s.store.StartRun(s.ctx, "run-2", project.ID, source.Kind, source.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.store.FailRun(s.ctx, logID, "collect timeout", "collect failed"))

	logs, err := s.store.ListRuns(s.ctx, project.ID, domain.RunFilter{})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Equal(domain.RunStatusFailed, logs[0].Status)
	s.Equal(1, logs[0].ErrorsCount)
	s.Equal("collect timeout", logs[0].ErrorDetail)
	s.NotNil(logs[0].FinishedAt)
}

func (s *MemoryStoreTestSuite) TestStartRun_UnknownSource() {
	project, _ := s.seedSource(domain.SourceKindAccount, "acct/x")

	_, err := s.store.StartRun(s.ctx, "run-3", project.ID, domain.SourceKindAccount, 999)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestMarkSourceRun_Monotonic() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	later := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	s.Require().NoError(s.store.MarkSourceRun(s.ctx, source.ID, later))
	s.Require().NoError(s.store.MarkSourceRun(s.ctx, source.ID, earlier))

	sources, err := s.store.ListSources(s.ctx, project.ID, false)
	s.Require().NoError(err)
	s.Require().Len(sources, 1)
	s.Require().NotNil(sources[0].LastRunAt)
	s.True(sources[0].LastRunAt.Equal(later))

	err = s.store.MarkSourceRun(s.ctx, 999, later)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *MemoryStoreTestSuite) TestDeleteSource_UnlinksContent() {
	project, source := s.seedSource(domain.SourceKindAccount, "acct/x")

	_, err := s.store.SaveContentBatch(s.ctx, []domain.ContentDraft{
		{SourceID: source.ID, URL: "https://example.com/v/1", PublishedAt: time.Now()},
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteSource(s.ctx, source.ID))

	_, total, err := s.store.ListContent(s.ctx, project.ID, domain.ContentFilter{}, domain.OrderPublished, domain.Page{})
	s.Require().NoError(err)
	s.Equal(0, total)

	s.ErrorIs(s.store.DeleteSource(s.ctx, source.ID), storage.ErrNotFound)
}
