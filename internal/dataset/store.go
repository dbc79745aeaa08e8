package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
	"github.com/KaramelBytes/tabletalk/internal/tabular"
)

// Backend is the queryable store the active dataset is mirrored into.
type Backend interface {
	ReplaceTable(ctx context.Context, table string, cols []sqlstore.Column, rows [][]any) error
	DropTable(ctx context.Context, table string) error
	Query(ctx context.Context, query string) (*sqlstore.Result, error)
}

// Store holds the single active Dataset. Loads build a new snapshot outside
// the lock and swap it in under the writer lock together with the backing
// table, so readers see either the old or the new dataset, never a mix.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	opts    ProfileOptions
	log     *zap.Logger

	current *Dataset
	version uint64
}

// NewStore creates an empty store over backend.
func NewStore(backend Backend, opts ProfileOptions, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, opts: opts.withDefaults(), log: log}
}

// LoadFile reads path from disk and loads it.
func (s *Store) LoadFile(ctx context.Context, path string) (*Dataset, error) {
	start := time.Now()
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.install(ctx, filepath.Base(path), t, start)
}

// Load parses data named name, replaces the backing table of the same
// identifier and makes the result the active dataset. Errors leave the
// previous dataset active.
func (s *Store) Load(ctx context.Context, name string, data []byte) (*Dataset, error) {
	start := time.Now()
	t, err := tabular.Decode(name, data)
	if err != nil {
		return nil, err
	}
	return s.install(ctx, name, t, start)
}

// install stores t under the identifier derived from name and swaps it in.
func (s *Store) install(ctx context.Context, name string, t *tabular.Table, start time.Time) (*Dataset, error) {
	cols, rows := build(t)
	ds := &Dataset{
		Table:    TableIdentifier(name),
		Source:   filepath.Base(name),
		Columns:  cols,
		Profiles: buildProfiles(cols, rows, s.opts),
		Rows:     len(rows),
	}
	sqlCols := make([]sqlstore.Column, len(cols))
	for i, c := range cols {
		sqlCols[i] = sqlstore.Column{Name: c.Name, Type: c.Kind.SQLType()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.ReplaceTable(ctx, ds.Table, sqlCols, rows); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", name, err)
	}
	s.version++
	ds.Version = s.version
	ds.LoadedAt = time.Now().UTC()
	s.current = ds

	s.log.Info("dataset loaded",
		zap.String("source", ds.Source),
		zap.String("table", ds.Table),
		zap.Int("rows", ds.Rows),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("categorical", len(ds.Profiles)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}

// Current returns the active snapshot or nil.
func (s *Store) Current() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot returns the active snapshot or ErrNoDataset.
func (s *Store) Snapshot() (*Dataset, error) {
	if ds := s.Current(); ds != nil {
		return ds, nil
	}
	return nil, ErrNoDataset
}

// Clear drops the active dataset and its backing table.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// ClearIfTable clears the store when the active dataset has the given table
// identifier. It reports whether anything was cleared.
func (s *Store) ClearIfTable(ctx context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Table != table {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	if s.current == nil {
		return nil
	}
	table := s.current.Table
	s.current = nil
	s.version++
	s.log.Info("dataset cleared", zap.String("table", table))
	if err := s.backend.DropTable(ctx, table); err != nil {
		return err
	}
	return nil
}

// Execute runs query against the backing store on behalf of snapshot. It
// fails with ErrDatasetChanged when snapshot is no longer the active dataset.
// Loads and clears wait until the query finishes.
func (s *Store) Execute(ctx context.Context, snapshot *Dataset, query string) (*sqlstore.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoDataset
	}
	if snapshot == nil || s.current.Version != snapshot.Version {
		return nil, ErrDatasetChanged
	}
	return s.backend.Query(ctx, query)
}
