package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

func (s *Store) StartRun(ctx context.Context, runID string, projectID int64, kind domain.SourceKind, sourceID int64) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var exists bool
	if err := db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)", projectID); err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	if err := db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)", sourceID); err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("source %d: %w", sourceID, storage.ErrNotFound)
	}

	var id int64
	err = db.GetContext(ctx, &id, `
		INSERT INTO parsing_logs (run_id, project_id, source_kind, source_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id`,
		runID, projectID, string(kind), sourceID, string(domain.RunStatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", mapErr(err))
	}
	return id, nil
}

func (s *Store) CompleteRun(ctx context.Context, logID int64, added int, message string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE parsing_logs
		SET status = $2, items_added = $3, message = $4, finished_at = now()
		WHERE id = $1 AND status = $5`,
		logID, string(domain.RunStatusCompleted), added, message, string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return s.checkTransition(ctx, res, logID, "complete run")
}

func (s *Store) FailRun(ctx context.Context, logID int64, errDetail string, message string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE parsing_logs
		SET status = $2, errors_count = 1, error_detail = $3, message = $4, finished_at = now()
		WHERE id = $1 AND status = $5`,
		logID, string(domain.RunStatusFailed), errDetail, message, string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return s.checkTransition(ctx, res, logID, "fail run")
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, logID int64, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.GetContext(ctx, &status, "SELECT status FROM parsing_logs WHERE id = $1", logID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("parsing log %d: %w", logID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("parsing log %d is %s: %w", logID, status, storage.ErrInvalidState)
}

func (s *Store) ListRuns(ctx context.Context, projectID int64, filter domain.RunFilter) ([]domain.ParsingLog, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT id, run_id, project_id, source_kind, source_id, status,
		items_added, errors_count, started_at, finished_at, message, error_detail
		FROM parsing_logs WHERE project_id = $1`
	args := []interface{}{projectID}
	if filter.RunID != nil {
		args = append(args, *filter.RunID)
		query += fmt.Sprintf(" AND run_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY id DESC"

	var out []domain.ParsingLog
	if err := db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
