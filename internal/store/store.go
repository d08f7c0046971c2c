// Package store owns the single mutable table of a session. Every other
// component receives a read-only view, computes, and returns derived data;
// nothing retains a copy across mutations.
package store

import (
	"context"
	"sync"

	"datalens/domain/table"
	"datalens/internal/errors"
)

// MutateFunc computes a replacement table from the current one. It must not
// modify its input; the store publishes the returned table atomically.
type MutateFunc func(t *table.Table) (*table.Table, error)

// Store is the exclusive owner of the session table. Mutations run to
// completion against the current snapshot and publish a new one, or fail
// and leave the prior snapshot authoritative. Every published mutation bumps
// the version marker, mechanically invalidating derived data computed
// against earlier versions.
type Store struct {
	mu      sync.RWMutex
	tbl     *table.Table
	version table.Version
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// HasTable reports whether a table has been loaded
func (s *Store) HasTable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tbl != nil
}

// Version returns the current table version
func (s *Store) Version() table.Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Replace installs a freshly loaded table, discarding any prior one
func (s *Store) Replace(t *table.Table) table.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tbl = t
	s.version++
	return s.version
}

// View runs fn against the current table under a read lock. The table
// reference must not escape fn.
func (s *Store) View(fn func(t *table.Table) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tbl == nil {
		return errors.ValidationError("no dataset loaded")
	}
	return fn(s.tbl)
}

// ViewVersioned is View plus the version the table was read at
func (s *Store) ViewVersioned(fn func(t *table.Table, v table.Version) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tbl == nil {
		return errors.ValidationError("no dataset loaded")
	}
	return fn(s.tbl, s.version)
}

// Mutate computes a replacement table from the current snapshot and
// publishes it. If the context expires before the result is ready the table
// is left untouched and a recoverable timeout is reported. fn runs without
// the lock held for writing so long computations do not starve readers; the
// single-writer discipline is enforced by the caller's busy gate.
func (s *Store) Mutate(ctx context.Context, op string, fn MutateFunc) (table.Version, error) {
	s.mu.RLock()
	current := s.tbl
	startVersion := s.version
	s.mu.RUnlock()

	if current == nil {
		return 0, errors.ValidationError("no dataset loaded")
	}

	type outcome struct {
		next *table.Table
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		next, err := fn(current)
		done <- outcome{next: next, err: err}
	}()

	select {
	case <-ctx.Done():
		return startVersion, errors.Timeout(op)
	case out := <-done:
		if out.err != nil {
			return startVersion, out.err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tbl = out.next
		s.version++
		return s.version, nil
	}
}

// Project replaces the table with exactly the named columns, preserving
// row order.
func (s *Store) Project(ctx context.Context, names []string) (table.Version, error) {
	return s.Mutate(ctx, "project", func(t *table.Table) (*table.Table, error) {
		return t.Project(names)
	})
}

// DropRows removes the given rows and reindexes the remainder contiguously
// from zero. Previously computed row indices are invalid afterwards.
func (s *Store) DropRows(ctx context.Context, rows []int) (table.Version, error) {
	return s.Mutate(ctx, "drop_rows", func(t *table.Table) (*table.Table, error) {
		return t.DropRows(rows), nil
	})
}

// SetCell replaces a single cell
func (s *Store) SetCell(ctx context.Context, row int, column string, cell table.Cell) (table.Version, error) {
	return s.Mutate(ctx, "set_cell", func(t *table.Table) (*table.Table, error) {
		return t.WithCell(row, column, cell)
	})
}

// GetCell reads a single cell from the current table
func (s *Store) GetCell(row int, column string) (table.Cell, error) {
	var cell table.Cell
	err := s.View(func(t *table.Table) error {
		var err error
		cell, err = t.Cell(row, column)
		return err
	})
	return cell, err
}
