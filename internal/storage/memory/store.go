package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

// Store is the ephemeral backend: everything lives in process memory and is
// lost on restart. All methods are safe for concurrent use; batch atomicity
// is a single critical section with validation before any mutation.
type Store struct {
	mu    sync.Mutex
	ready bool

	users    map[int64]domain.User
	projects map[int64]domain.Project
	sources  map[int64]domain.Source
	content  map[int64]domain.ContentItem
	byURL    map[string]int64
	links    map[int64]map[int64]struct{} // content id -> source ids
	logs     map[int64]domain.ParsingLog

	userSeq    int64
	projectSeq int64
	sourceSeq  int64
	contentSeq int64
	logSeq     int64
}

func New() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		projects: make(map[int64]domain.Project),
		sources:  make(map[int64]domain.Source),
		content:  make(map[int64]domain.ContentItem),
		byURL:    make(map[string]int64),
		links:    make(map[int64]map[int64]struct{}),
		logs:     make(map[int64]domain.ParsingLog),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

func (s *Store) check() error {
	if !s.ready {
		return storage.ErrNotReady
	}
	return nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if u.ExternalID == externalID {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user external id %d: %w", externalID, storage.ErrNotFound)
}

func (s *Store) CreateUser(ctx context.Context, externalID int64, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if u.ExternalID == externalID {
			return nil, fmt.Errorf("user external id %d: %w", externalID, storage.ErrConflict)
		}
	}

	s.userSeq++
	u := domain.User{
		ID:         s.userSeq,
		ExternalID: externalID,
		Username:   username,
		CreatedAt:  time.Now().UTC(),
	}
	s.users[u.ID] = u
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListProjects(ctx context.Context, userID int64) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	var out []domain.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", id, storage.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, userID int64, name string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %d: %w", userID, storage.ErrNotFound)
	}

	s.projectSeq++
	p := domain.Project{
		ID:        s.projectSeq,
		UserID:    userID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.projects[p.ID] = p
	return &p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id int64, upd domain.ProjectUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("project %d: %w", id, storage.ErrNotFound)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Active != nil {
		p.Active = *upd.Active
	}
	s.projects[id] = p
	return nil
}

func (s *Store) ListSources(ctx context.Context, projectID int64, activeOnly bool) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	var out []domain.Source
	for _, src := range s.sources {
		if src.ProjectID != projectID {
			continue
		}
		if activeOnly && !src.Active {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateSource(ctx context.Context, projectID int64, kind domain.SourceKind, locator string, priority int) (*domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}

	s.sourceSeq++
	src := domain.Source{
		ID:        s.sourceSeq,
		ProjectID: projectID,
		Kind:      kind,
		Locator:   locator,
		Active:    true,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	s.sources[src.ID] = src
	return &src, nil
}

func (s *Store) UpdateSource(ctx context.Context, id int64, upd domain.SourceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
	}
	if upd.Locator != nil {
		src.Locator = *upd.Locator
	}
	if upd.Active != nil {
		src.Active = *upd.Active
	}
	if upd.Priority != nil {
		src.Priority = *upd.Priority
	}
	s.sources[id] = src
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
	}
	delete(s.sources, id)

	// Content items stay; only the links to this source go.
	for contentID, set := range s.links {
		delete(set, id)
		if len(set) == 0 {
			delete(s.links, contentID)
		}
	}
	return nil
}

func (s *Store) MarkSourceRun(ctx context.Context, id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
	}
	if src.LastRunAt == nil || src.LastRunAt.Before(t) {
		src.LastRunAt = &t
		s.sources[id] = src
	}
	return nil
}

func (s *Store) ListContent(ctx context.Context, projectID int64, filter domain.ContentFilter, order domain.ContentOrder, page domain.Page) ([]domain.ContentItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, 0, err
	}

	var out []domain.ContentItem
	for id, item := range s.content {
		if !s.matchesProject(id, projectID, filter) {
			continue
		}
		if filter.MinViews != nil && item.Views < *filter.MinViews {
			continue
		}
		if filter.PublishedAfter != nil && !item.PublishedAt.After(*filter.PublishedAfter) {
			continue
		}
		if filter.PublishedBefore != nil && !item.PublishedAt.Before(*filter.PublishedBefore) {
			continue
		}
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order == domain.OrderViews {
			if a.Views != b.Views {
				return a.Views > b.Views
			}
			if !a.PublishedAt.Equal(b.PublishedAt) {
				return a.PublishedAt.After(b.PublishedAt)
			}
			return a.ID < b.ID
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		return a.ID < b.ID
	})

	total := len(out)
	if page.Offset > 0 {
		if page.Offset >= len(out) {
			out = nil
		} else {
			out = out[page.Offset:]
		}
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, total, nil
}

// matchesProject reports whether a content item is linked to a source of the
// given project, honoring the kind/source narrowing of the filter.
func (s *Store) matchesProject(contentID, projectID int64, filter domain.ContentFilter) bool {
	for sourceID := range s.links[contentID] {
		src, ok := s.sources[sourceID]
		if !ok || src.ProjectID != projectID {
			continue
		}
		if filter.SourceID != nil && src.ID != *filter.SourceID {
			continue
		}
		if filter.SourceKind != nil && src.Kind != *filter.SourceKind {
			continue
		}
		return true
	}
	return false
}

func (s *Store) SaveContentBatch(ctx context.Context, drafts []domain.ContentDraft) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}

	// Validate everything before touching state so a mid-batch failure
	// cannot leave a partial application.
	for i, d := range drafts {
		if _, ok := s.sources[d.SourceID]; !ok {
			return 0, fmt.Errorf("draft %d: source %d: %w", i, d.SourceID, storage.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	inserted := 0
	for _, d := range drafts {
		id, exists := s.byURL[d.URL]
		if exists {
			item := s.content[id]
			item.Views = d.Views
			item.Likes = d.Likes
			item.Comments = d.Comments
			item.LastUpdatedAt = now
			s.content[id] = item
		} else {
			s.contentSeq++
			id = s.contentSeq
			s.content[id] = domain.ContentItem{
				ID:            id,
				URL:           d.URL,
				PublishedAt:   d.PublishedAt,
				Views:         d.Views,
				Likes:         d.Likes,
				Comments:      d.Comments,
				AuthorHandle:  d.AuthorHandle,
				AuthorName:    d.AuthorName,
				DurationSec:   d.DurationSec,
				Caption:       d.Caption,
				FirstSeenAt:   now,
				LastUpdatedAt: now,
			}
			s.byURL[d.URL] = id
			inserted++
		}

		if s.links[id] == nil {
			s.links[id] = make(map[int64]struct{})
		}
		s.links[id][d.SourceID] = struct{}{}
	}
	return inserted, nil
}

func (s *Store) StartRun(ctx context.Context, runID string, projectID int64, kind domain.SourceKind, sourceID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}

	if _, ok := s.projects[projectID]; !ok {
		return 0, fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	if _, ok := s.sources[sourceID]; !ok {
		return 0, fmt.Errorf("source %d: %w", sourceID, storage.ErrNotFound)
	}
	for _, l := range s.logs {
		if l.RunID == runID && l.SourceKind == kind && l.SourceID == sourceID && l.Status == domain.RunStatusRunning {
			return 0, fmt.Errorf("run %s source %d already running: %w", runID, sourceID, storage.ErrConflict)
		}
	}

	s.logSeq++
	l := domain.ParsingLog{
		ID:         s.logSeq,
		RunID:      runID,
		ProjectID:  projectID,
		SourceKind: kind,
		SourceID:   sourceID,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	s.logs[l.ID] = l
	return l.ID, nil
}

func (s *Store) CompleteRun(ctx context.Context, logID int64, added int, message string) error {
	return s.finishRun(logID, func(l *domain.ParsingLog) {
		l.Status = domain.RunStatusCompleted
		l.ItemsAdded = added
		l.Message = message
	})
}

func (s *Store) FailRun(ctx context.Context, logID int64, errDetail string, message string) error {
	return s.finishRun(logID, func(l *domain.ParsingLog) {
		l.Status = domain.RunStatusFailed
		l.ErrorsCount = 1
		l.ErrorDetail = errDetail
		l.Message = message
	})
}

func (s *Store) finishRun(logID int64, apply func(*domain.ParsingLog)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	l, ok := s.logs[logID]
	if !ok {
		return fmt.Errorf("parsing log %d: %w", logID, storage.ErrNotFound)
	}
	if l.Status != domain.RunStatusRunning {
		return fmt.Errorf("parsing log %d is %s: %w", logID, l.Status, storage.ErrInvalidState)
	}

	now := time.Now().UTC()
	l.FinishedAt = &now
	apply(&l)
	s.logs[logID] = l
	return nil
}

func (s *Store) ListRuns(ctx context.Context, projectID int64, filter domain.RunFilter) ([]domain.ParsingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	var out []domain.ParsingLog
	for _, l := range s.logs {
		if l.ProjectID != projectID {
			continue
		}
		if filter.RunID != nil && l.RunID != *filter.RunID {
			continue
		}
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
