package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlitedrv "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"reeltrack/internal/storage"
)

// Store is the embedded backend: a single local database file. Foreign keys
// are enforced so orphaned project/source references are rejected at write
// time, and the content batch rides a native transaction.
type Store struct {
	path string
	db   *sql.DB
}

var _ storage.Store = (*Store)(nil)

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", "file:"+s.path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection keeps SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate sqlite: %w", err)
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

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, storage.ErrNotReady
	}
	return s.db, nil
}

// mapErr translates sqlite constraint codes into the shared taxonomy while
// keeping the original message.
func mapErr(err error) error {
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%v: %w", err, storage.ErrConflict)
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%v: %w", err, storage.ErrNotFound)
		}
	}
	return err
}
