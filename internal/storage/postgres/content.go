package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"reeltrack/internal/domain"
	"reeltrack/internal/storage"
)

func (s *Store) ListContent(ctx context.Context, projectID int64, filter domain.ContentFilter, order domain.ContentOrder, page domain.Page) ([]domain.ContentItem, int, error) {
	db, err := s.conn()
	if err != nil {
		return nil, 0, err
	}

	args := []interface{}{projectID}
	linkCond := "cs.content_id = c.id AND src.project_id = $1"
	if filter.SourceID != nil {
		args = append(args, *filter.SourceID)
		linkCond += fmt.Sprintf(" AND src.id = $%d", len(args))
	}
	if filter.SourceKind != nil {
		args = append(args, string(*filter.SourceKind))
		linkCond += fmt.Sprintf(" AND src.kind = $%d", len(args))
	}

	where := fmt.Sprintf(`WHERE EXISTS (
		SELECT 1 FROM content_sources cs
		JOIN sources src ON src.id = cs.source_id
		WHERE %s)`, linkCond)

	if filter.MinViews != nil {
		args = append(args, *filter.MinViews)
		where += fmt.Sprintf(" AND c.views >= $%d", len(args))
	}
	if filter.PublishedAfter != nil {
		args = append(args, filter.PublishedAfter.UTC())
		where += fmt.Sprintf(" AND c.published_at > $%d", len(args))
	}
	if filter.PublishedBefore != nil {
		args = append(args, filter.PublishedBefore.UTC())
		where += fmt.Sprintf(" AND c.published_at < $%d", len(args))
	}

	var total int
	if err := db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM content_items c "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count content: %w", err)
	}

	orderBy := " ORDER BY c.published_at DESC, c.views DESC, c.id"
	if order == domain.OrderViews {
		orderBy = " ORDER BY c.views DESC, c.published_at DESC, c.id"
	}

	query := `SELECT c.id, c.url, c.published_at, c.views, c.likes, c.comments,
		c.author_handle, c.author_name, c.duration_sec, c.caption,
		c.first_seen_at, c.last_updated_at
		FROM content_items c ` + where + orderBy
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var out []domain.ContentItem
	if err := db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list content: %w", err)
	}
	return out, total, nil
}

// SaveContentBatch wraps the per-item existence-check-then-insert loop in an
// explicit transaction: a fault on any item (a network error included) rolls
// the whole batch back before the error is re-raised.
func (s *Store) SaveContentBatch(ctx context.Context, drafts []domain.ContentDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}

	var inserted int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for i, d := range drafts {
			var exists bool
			err := tx.GetContext(ctx, &exists,
				"SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)", d.SourceID)
			if err != nil {
				return fmt.Errorf("draft %d: check source: %w", i, err)
			}
			if !exists {
				return fmt.Errorf("draft %d: source %d: %w", i, d.SourceID, storage.ErrNotFound)
			}

			var contentID int64
			err = tx.GetContext(ctx, &contentID,
				"SELECT id FROM content_items WHERE url = $1", d.URL)
			switch {
			case err == sql.ErrNoRows:
				err = tx.GetContext(ctx, &contentID, `
					INSERT INTO content_items (
						url, published_at, views, likes, comments,
						author_handle, author_name, duration_sec, caption,
						first_seen_at, last_updated_at
					) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
					RETURNING id`,
					d.URL, d.PublishedAt.UTC(), d.Views, d.Likes, d.Comments,
					d.AuthorHandle, d.AuthorName, d.DurationSec, d.Caption, now,
				)
				if err != nil {
					return fmt.Errorf("draft %d: insert: %w", i, mapErr(err))
				}
				inserted++
			case err != nil:
				return fmt.Errorf("draft %d: lookup: %w", i, err)
			default:
				if _, err := tx.ExecContext(ctx, `
					UPDATE content_items
					SET views = $2, likes = $3, comments = $4, last_updated_at = $5
					WHERE id = $1`,
					contentID, d.Views, d.Likes, d.Comments, now,
				); err != nil {
					return fmt.Errorf("draft %d: update: %w", i, mapErr(err))
				}
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_sources (content_id, source_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				contentID, d.SourceID,
			); err != nil {
				return fmt.Errorf("draft %d: link source: %w", i, mapErr(err))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
