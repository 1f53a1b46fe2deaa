package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

func (s *Store) GetUserByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var u domain.User
	err = db.GetContext(ctx, &u,
		"SELECT id, external_id, username, created_at FROM users WHERE external_id = $1",
		externalID,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user external id %d: %w", externalID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, externalID int64, username string) (*domain.User, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var u domain.User
	err = db.GetContext(ctx, &u, `
		INSERT INTO users (external_id, username)
		VALUES ($1, $2)
		RETURNING id, external_id, username, created_at`,
		externalID, username,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", mapErr(err))
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var out []domain.User
	err = db.SelectContext(ctx, &out,
		"SELECT id, external_id, username, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *Store) ListProjects(ctx context.Context, userID int64) ([]domain.Project, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var out []domain.Project
	err = db.SelectContext(ctx, &out,
		"SELECT id, user_id, name, active, created_at FROM projects WHERE user_id = $1 ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var p domain.Project
	err = db.GetContext(ctx, &p,
		"SELECT id, user_id, name, active, created_at FROM projects WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, userID int64, name string) (*domain.Project, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var p domain.Project
	err = db.GetContext(ctx, &p, `
		INSERT INTO projects (user_id, name)
		VALUES ($1, $2)
		RETURNING id, user_id, name, active, created_at`,
		userID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", mapErr(err))
	}
	return &p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id int64, upd domain.ProjectUpdate) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	sets := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Active != nil {
		args = append(args, *upd.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(sets) == 0 {
		_, err := s.GetProject(ctx, id)
		return err
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx,
		fmt.Sprintf("UPDATE projects SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListSources(ctx context.Context, projectID int64, activeOnly bool) ([]domain.Source, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT id, project_id, kind, locator, active, priority, last_run_at, created_at
		FROM sources WHERE project_id = $1`
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY id"

	var out []domain.Source
	if err := db.SelectContext(ctx, &out, query, projectID); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return out, nil
}

func (s *Store) CreateSource(ctx context.Context, projectID int64, kind domain.SourceKind, locator string, priority int) (*domain.Source, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var src domain.Source
	err = db.GetContext(ctx, &src, `
		INSERT INTO sources (project_id, kind, locator, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, kind, locator, active, priority, last_run_at, created_at`,
		projectID, string(kind), locator, priority,
	)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", mapErr(err))
	}
	return &src, nil
}

func (s *Store) UpdateSource(ctx context.Context, id int64, upd domain.SourceUpdate) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if upd.Locator != nil {
		args = append(args, *upd.Locator)
		sets = append(sets, fmt.Sprintf("locator = $%d", len(args)))
	}
	if upd.Active != nil {
		args = append(args, *upd.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	if upd.Priority != nil {
		args = append(args, *upd.Priority)
		sets = append(sets, fmt.Sprintf("priority = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx,
		fmt.Sprintf("UPDATE sources SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, "DELETE FROM sources WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete source: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkSourceRun(ctx context.Context, id int64, t time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE sources SET last_run_at = $2
		WHERE id = $1 AND (last_run_at IS NULL OR last_run_at < $2)`,
		id, t.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark source run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark source run: %w", err)
	}
	if n == 0 {
		var exists bool
		err := db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)", id)
		if err != nil {
			return fmt.Errorf("mark source run: %w", err)
		}
		if !exists {
			return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
		}
	}
	return nil
}
