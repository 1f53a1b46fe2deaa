package sqlite

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
	err = db.QueryRowContext(ctx,
		"SELECT id, external_id, username, created_at FROM users WHERE external_id = ?",
		externalID,
	).Scan(&u.ID, &u.ExternalID, &u.Username, &u.CreatedAt)
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

	u := domain.User{ExternalID: externalID, Username: username, CreatedAt: time.Now().UTC()}
	res, err := db.ExecContext(ctx,
		"INSERT INTO users (external_id, username, created_at) VALUES (?, ?, ?)",
		u.ExternalID, u.Username, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", mapErr(err))
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT id, external_id, username, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) ListProjects(ctx context.Context, userID int64) ([]domain.Project, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, name, active, created_at FROM projects WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var p domain.Project
	err = db.QueryRowContext(ctx,
		"SELECT id, user_id, name, active, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Active, &p.CreatedAt)
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

	p := domain.Project{UserID: userID, Name: name, Active: true, CreatedAt: time.Now().UTC()}
	res, err := db.ExecContext(ctx,
		"INSERT INTO projects (user_id, name, active, created_at) VALUES (?, ?, ?, ?)",
		p.UserID, p.Name, p.Active, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", mapErr(err))
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
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
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *upd.Active)
	}
	if len(sets) == 0 {
		_, err := s.GetProject(ctx, id)
		return err
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx,
		"UPDATE projects SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
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

	query := "SELECT id, project_id, kind, locator, active, priority, last_run_at, created_at FROM sources WHERE project_id = ?"
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY id"

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func scanSource(rows *sql.Rows) (*domain.Source, error) {
	var src domain.Source
	var lastRun sql.NullTime
	if err := rows.Scan(&src.ID, &src.ProjectID, &src.Kind, &src.Locator,
		&src.Active, &src.Priority, &lastRun, &src.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	if lastRun.Valid {
		t := lastRun.Time
		src.LastRunAt = &t
	}
	return &src, nil
}

func (s *Store) CreateSource(ctx context.Context, projectID int64, kind domain.SourceKind, locator string, priority int) (*domain.Source, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	src := domain.Source{
		ProjectID: projectID,
		Kind:      kind,
		Locator:   locator,
		Active:    true,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO sources (project_id, kind, locator, active, priority, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		src.ProjectID, src.Kind, src.Locator, src.Active, src.Priority, src.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", mapErr(err))
	}
	src.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
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
		sets = append(sets, "locator = ?")
		args = append(args, *upd.Locator)
	}
	if upd.Active != nil {
		sets = append(sets, "active = ?")
		args = append(args, *upd.Active)
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx,
		"UPDATE sources SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
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

	res, err := db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
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

	// Forward-only: an earlier timestamp leaves the row untouched.
	res, err := db.ExecContext(ctx,
		"UPDATE sources SET last_run_at = ? WHERE id = ? AND (last_run_at IS NULL OR last_run_at < ?)",
		t.UTC(), id, t.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark source run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark source run: %w", err)
	}
	if n == 0 {
		var exists int
		err := db.QueryRowContext(ctx, "SELECT 1 FROM sources WHERE id = ?", id).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("source %d: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("mark source run: %w", err)
		}
	}
	return nil
}
