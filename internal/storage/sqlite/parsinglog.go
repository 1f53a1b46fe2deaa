package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

func (s *Store) StartRun(ctx context.Context, runID string, projectID int64, kind domain.SourceKind, sourceID int64) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var exists int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("project %d: %w", projectID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	err = db.QueryRowContext(ctx, "SELECT 1 FROM sources WHERE id = ?", sourceID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("source %d: %w", sourceID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}

	// The partial unique index on running rows turns a double start into a
	// constraint violation, mapped to ErrConflict.
	res, err := db.ExecContext(ctx, `
		INSERT INTO parsing_logs (run_id, project_id, source_kind, source_id, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, projectID, string(kind), sourceID, string(domain.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", mapErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
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
		SET status = ?, items_added = ?, message = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.RunStatusCompleted), added, message, time.Now().UTC(),
		logID, string(domain.RunStatusRunning),
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
		SET status = ?, errors_count = 1, error_detail = ?, message = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.RunStatusFailed), errDetail, message, time.Now().UTC(),
		logID, string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return s.checkTransition(ctx, res, logID, "fail run")
}

// checkTransition distinguishes a missing log from one already terminal when
// a guarded status update touched no rows.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, logID int64, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM parsing_logs WHERE id = ?", logID).Scan(&status)
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
		FROM parsing_logs WHERE project_id = ?`
	args := []interface{}{projectID}
	if filter.RunID != nil {
		query += " AND run_id = ?"
		args = append(args, *filter.RunID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	query += " ORDER BY id DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.ParsingLog
	for rows.Next() {
		var l domain.ParsingLog
		var finished sql.NullTime
		if err := rows.Scan(&l.ID, &l.RunID, &l.ProjectID, &l.SourceKind, &l.SourceID,
			&l.Status, &l.ItemsAdded, &l.ErrorsCount, &l.StartedAt, &finished,
			&l.Message, &l.ErrorDetail); err != nil {
			return nil, fmt.Errorf("scan parsing log: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			l.FinishedAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
