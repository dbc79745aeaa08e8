// Package sqlstore mirrors the active dataset into an embedded SQLite
// database and runs synthesized queries against it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// Column describes one column of a table to be created.
type Column struct {
	Name string
	Type string // SQLite type affinity: TEXT, INTEGER, REAL
}

// Store is the queryable backing store keyed by table identifier.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReplaceTable drops any table named table and recreates it with cols and
// rows inside one transaction. Each row must have len(cols) values.
func (s *Store) ReplaceTable(ctx context.Context, table string, cols []Column, rows [][]any) (err error) {
	if len(cols) == 0 {
		return errors.New("cannot create a table without columns")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	qt := QuoteIdent(table)
	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qt); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}

	defs := make([]string, len(cols))
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		typ := c.Type
		if typ == "" {
			typ = "TEXT"
		}
		names[i] = QuoteIdent(c.Name)
		defs[i] = names[i] + " " + typ
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", qt, strings.Join(defs, ", "))
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", qt, strings.Join(names, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()
	for i, row := range rows {
		if len(row) != len(cols) {
			err = fmt.Errorf("row %d has %d values, want %d", i+1, len(row), len(cols))
			return err
		}
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i+1, table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", table, err)
	}
	return nil
}

// DropTable removes table if it exists.
func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	return nil
}

// QuoteIdent quotes a SQLite identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
