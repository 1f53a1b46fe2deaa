package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"reeltrack/internal/storage"
)

// Store is the managed multi-tenant backend over a remote Postgres. The
// connection pool is owned by the store handle: Init acquires it, Close
// releases it on every exit path, and no process-wide state is kept.
type Store struct {
	dsn string
	db  *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

func New(dsn string) *Store {
	return &Store{dsn: dsn}
}

func (s *Store) Init(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate postgres: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sqlx.DB, error) {
	if s.db == nil {
		return nil, storage.ErrNotReady
	}
	return s.db, nil
}

// withTx runs fn inside an explicit transaction, rolling back before the
// error is re-raised so a mid-transaction fault never leaks a partial write.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapErr translates Postgres error codes into the shared taxonomy.
func mapErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%v: %w", err, storage.ErrConflict)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%v: %w", err, storage.ErrNotFound)
		}
	}
	return err
}
