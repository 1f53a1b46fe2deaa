package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

func (s *Store) ListContent(ctx context.Context, projectID int64, filter domain.ContentFilter, order domain.ContentOrder, page domain.Page) ([]domain.ContentItem, int, error) {
	db, err := s.conn()
	if err != nil {
		return nil, 0, err
	}

	where := `WHERE EXISTS (
		SELECT 1 FROM content_sources cs
		JOIN sources src ON src.id = cs.source_id
		WHERE cs.content_id = c.id AND src.project_id = ?`
	args := []interface{}{projectID}
	if filter.SourceID != nil {
		where += " AND src.id = ?"
		args = append(args, *filter.SourceID)
	}
	if filter.SourceKind != nil {
		where += " AND src.kind = ?"
		args = append(args, string(*filter.SourceKind))
	}
	where += ")"

	if filter.MinViews != nil {
		where += " AND c.views >= ?"
		args = append(args, *filter.MinViews)
	}
	if filter.PublishedAfter != nil {
		where += " AND c.published_at > ?"
		args = append(args, filter.PublishedAfter.UTC())
	}
	if filter.PublishedBefore != nil {
		where += " AND c.published_at < ?"
		args = append(args, filter.PublishedBefore.UTC())
	}

	var total int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM content_items c "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count content: %w", err)
	}

	orderBy := " ORDER BY c.published_at DESC, c.views DESC, c.id"
	if order == domain.OrderViews {
		orderBy = " ORDER BY c.views DESC, c.published_at DESC, c.id"
	}

	query := "SELECT " + prefixColumns("c") + " FROM content_items c " + where + orderBy
	if page.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, page.Offset)
	} else if page.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, page.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var out []domain.ContentItem
	for rows.Next() {
		var item domain.ContentItem
		if err := rows.Scan(&item.ID, &item.URL, &item.PublishedAt, &item.Views,
			&item.Likes, &item.Comments, &item.AuthorHandle, &item.AuthorName,
			&item.DurationSec, &item.Caption, &item.FirstSeenAt, &item.LastUpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan content item: %w", err)
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

func prefixColumns(alias string) string {
	return alias + `.id, ` + alias + `.url, ` + alias + `.published_at, ` +
		alias + `.views, ` + alias + `.likes, ` + alias + `.comments, ` +
		alias + `.author_handle, ` + alias + `.author_name, ` + alias + `.duration_sec, ` +
		alias + `.caption, ` + alias + `.first_seen_at, ` + alias + `.last_updated_at`
}

func (s *Store) SaveContentBatch(ctx context.Context, drafts []domain.ContentDraft) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if len(drafts) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}

	inserted, err := saveBatchTx(ctx, tx, drafts)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

func saveBatchTx(ctx context.Context, tx *sql.Tx, drafts []domain.ContentDraft) (int, error) {
	now := time.Now().UTC()
	inserted := 0

	for i, d := range drafts {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM sources WHERE id = ?", d.SourceID).Scan(&exists)
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("draft %d: source %d: %w", i, d.SourceID, storage.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("draft %d: check source: %w", i, err)
		}

		var contentID int64
		err = tx.QueryRowContext(ctx, "SELECT id FROM content_items WHERE url = ?", d.URL).Scan(&contentID)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO content_items (
					url, published_at, views, likes, comments,
					author_handle, author_name, duration_sec, caption,
					first_seen_at, last_updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				d.URL, d.PublishedAt.UTC(), d.Views, d.Likes, d.Comments,
				d.AuthorHandle, d.AuthorName, d.DurationSec, d.Caption, now, now,
			)
			if err != nil {
				return 0, fmt.Errorf("draft %d: insert: %w", i, mapErr(err))
			}
			contentID, err = res.LastInsertId()
			if err != nil {
				return 0, fmt.Errorf("draft %d: insert: %w", i, err)
			}
			inserted++
		case err != nil:
			return 0, fmt.Errorf("draft %d: lookup: %w", i, err)
		default:
			// Refresh the counters only; first_seen_at stays.
			if _, err := tx.ExecContext(ctx, `
				UPDATE content_items
				SET views = ?, likes = ?, comments = ?, last_updated_at = ?
				WHERE id = ?`,
				d.Views, d.Likes, d.Comments, now, contentID,
			); err != nil {
				return 0, fmt.Errorf("draft %d: update: %w", i, mapErr(err))
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO content_sources (content_id, source_id) VALUES (?, ?)",
			contentID, d.SourceID,
		); err != nil {
			return 0, fmt.Errorf("draft %d: link source: %w", i, mapErr(err))
		}
	}
	return inserted, nil
}
