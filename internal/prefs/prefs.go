// Package prefs persists cosmetic board preferences such as which columns are collapsed.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// CollapsedColumnsKey is the preference key holding the collapsed column set.
const CollapsedColumnsKey = "collapsed_columns"

// Backend is a string key-value store. ok is false when the key was never saved.
type Backend interface {
	LoadPreference(ctx context.Context, key string) (value string, ok bool, err error)
	SavePreference(ctx context.Context, key, value string) error
}

// Memory is an in-process Backend.
type Memory struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemory() *Memory { return &Memory{m: map[string]string{}} }

func (b *Memory) LoadPreference(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	return v, ok, nil
}

func (b *Memory) SavePreference(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = value
	return nil
}

// FileBackend is a Backend stored as a YAML map in a single file, for CLI use without a server.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend stores preferences at path. The file is created on first save.
func NewFileBackend(path string) *FileBackend { return &FileBackend{path: path} }

// DefaultFilePath is home/prefs.yaml.
func DefaultFilePath(home string) string { return filepath.Join(home, "prefs.yaml") }

func (f *FileBackend) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return m, nil
}

func (f *FileBackend) LoadPreference(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (f *FileBackend) SavePreference(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return err
	}
	m[key] = value
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// ColumnSet is a set of column keys.
type ColumnSet map[models.Column]struct{}

// NewColumnSet builds a set from keys.
func NewColumnSet(cols ...models.Column) ColumnSet {
	s := make(ColumnSet, len(cols))
	for _, c := range cols {
		s[c] = struct{}{}
	}
	return s
}

func (s ColumnSet) Has(c models.Column) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the members in board display order.
func (s ColumnSet) Sorted() []models.Column {
	out := make([]models.Column, 0, len(s))
	for _, c := range stage.Columns() {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// CollapseStore loads and saves the collapsed column set.
type CollapseStore struct {
	Backend Backend
	// Key defaults to CollapsedColumnsKey.
	Key    string
	Logger *slog.Logger
}

func (s *CollapseStore) key() string {
	if s.Key == "" {
		return CollapsedColumnsKey
	}
	return s.Key
}

func (s *CollapseStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Load never fails. Backend errors and unreadable values log a warning and yield an empty set;
// unknown column keys are dropped.
func (s *CollapseStore) Load(ctx context.Context) ColumnSet {
	raw, ok, err := s.Backend.LoadPreference(ctx, s.key())
	if err != nil {
		s.logger().Warn("load collapsed columns failed", "key", s.key(), "err", err)
		return ColumnSet{}
	}
	if !ok || raw == "" {
		return ColumnSet{}
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		s.logger().Warn("collapsed columns value is not a JSON array", "key", s.key(), "err", err)
		return ColumnSet{}
	}
	set := ColumnSet{}
	for _, k := range keys {
		c, err := stage.ParseColumn(k)
		if err != nil {
			s.logger().Warn("dropping unknown collapsed column", "column", k)
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// Save persists set as a JSON array in display order.
func (s *CollapseStore) Save(ctx context.Context, set ColumnSet) error {
	for c := range set {
		if _, err := stage.Column(c); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(set))
	for _, c := range set.Sorted() {
		keys = append(keys, string(c))
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return s.Backend.SavePreference(ctx, s.key(), string(data))
}

// Toggle flips c in the stored set and returns the new set.
func (s *CollapseStore) Toggle(ctx context.Context, c models.Column) (ColumnSet, error) {
	if _, err := stage.Column(c); err != nil {
		return nil, err
	}
	set := s.Load(ctx)
	if set.Has(c) {
		delete(set, c)
	} else {
		set[c] = struct{}{}
	}
	return set, s.Save(ctx, set)
}

// Set collapses or expands c and returns the new set.
func (s *CollapseStore) Set(ctx context.Context, c models.Column, collapsed bool) (ColumnSet, error) {
	if _, err := stage.Column(c); err != nil {
		return nil, err
	}
	set := s.Load(ctx)
	if collapsed {
		set[c] = struct{}{}
	} else {
		delete(set, c)
	}
	return set, s.Save(ctx, set)
}
