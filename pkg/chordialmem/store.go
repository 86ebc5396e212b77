package chordialmem

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// Open opens (or creates) the chordial database at path and migrates it.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// one connection keeps ":memory:" databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	if _, err := s.db.Exec(vecSchema); err != nil {
		return fmt.Errorf("vector schema: %w", err)
	}

	return s.runMigrations()
}

// runMigrations handles schema changes for existing databases
func (s *Store) runMigrations() error {
	if !s.columnExists("users", "onboarding_state") {
		if _, err := s.db.Exec("ALTER TABLE users ADD COLUMN onboarding_state TEXT DEFAULT 'none'"); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) columnExists(table, column string) bool {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// withTx runs fn in a transaction: commit on success, rollback on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SetEmbedder(e Embedder) {
	s.embedder = e
}

func (s *Store) HasEmbedder() bool {
	return s.embedder != nil
}

// Wait blocks until background access tracking has finished
func (s *Store) Wait() {
	s.pending.Wait()
}

func (s *Store) Close() error {
	s.pending.Wait()

	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// DB exposes the connection so sibling stores share one database file
func (s *Store) DB() *sql.DB {
	return s.db
}
