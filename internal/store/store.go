// Package store implements the in-memory record store: table name -> ordered records.
package store

import (
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/uiruntime/internal/errs"
	"github.com/and161185/uiruntime/internal/model"
)

// Snapshot is a deep copy of the store contents, as seeded or persisted.
type Snapshot map[string][]model.Record

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for t, rows := range s {
		cp := make([]model.Record, len(rows))
		for i, r := range rows {
			cp[i] = r.Clone()
		}
		out[t] = cp
	}
	return out
}

// IDGenerator returns fresh record ids.
type IDGenerator func() string

// NewUUID generates UUIDv4 ids.
func NewUUID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Store holds records per table in insertion order. Ids are unique per table.
// Store is safe for concurrent use, so several runtimes of one app may share it.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]model.Record
	newID  IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides id generation (tests use deterministic ids).
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.newID = g }
}

// New seeds a store from snapshot. Records without an id, or repeating an id already seen in
// the same table, get a fresh one. The snapshot is copied.
func New(seed Snapshot, opts ...Option) *Store {
	s := &Store{tables: make(map[string][]model.Record, len(seed)), newID: NewUUID}
	for _, o := range opts {
		o(s)
	}
	for table, rows := range seed {
		seen := make(map[string]struct{}, len(rows))
		cp := make([]model.Record, 0, len(rows))
		for _, r := range rows {
			rec := r.Clone()
			if rec == nil {
				rec = model.Record{}
			}
			id := rec.ID()
			if _, dup := seen[id]; id == "" || dup {
				id = s.freshID(seen)
				rec[model.IDKey] = id
			}
			seen[id] = struct{}{}
			cp = append(cp, rec)
		}
		s.tables[table] = cp
	}
	return s
}

func (s *Store) freshID(seen map[string]struct{}) string {
	for {
		id := s.newID()
		if _, dup := seen[id]; !dup {
			return id
		}
	}
}

// HasTable reports whether the table exists (possibly empty).
func (s *Store) HasTable(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[table]
	return ok
}

// EnsureTable creates an empty table if missing.
func (s *Store) EnsureTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = []model.Record{}
	}
}

// Tables lists table names in sorted order.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for t := range s.tables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Insert appends a copy of rec with a freshly generated id and returns the stored copy.
// Any id carried by rec is replaced.
func (s *Store) Insert(table string, rec model.Record) (model.Record, error) {
	stored, _, err := s.InsertUnless(table, rec, nil)
	return stored, err
}

// InsertUnless inserts like Insert unless a record of the table satisfies conflict.
// The check and the insert are atomic. It reports false when a conflicting record exists.
func (s *Store) InsertUnless(table string, rec model.Record, conflict func(model.Record) bool) (model.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, false, errs.ErrUnknownTable
	}
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if conflict != nil && conflict(r) {
			return nil, false, nil
		}
		seen[r.ID()] = struct{}{}
	}
	cp := rec.Clone()
	if cp == nil {
		cp = model.Record{}
	}
	cp[model.IDKey] = s.freshID(seen)
	s.tables[table] = append(rows, cp)
	return cp.Clone(), true, nil
}

// Delete removes the record with the given id. It reports whether a record was removed;
// deleting an absent id is a no-op.
func (s *Store) Delete(table, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok || id == "" {
		return false
	}
	for i, r := range rows {
		if r.ID() == id {
			s.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(table, id string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.tables[table] {
		if r.ID() == id {
			return r.Clone(), true
		}
	}
	return nil, false
}

// Find returns a copy of the first record matching pred.
func (s *Store) Find(table string, pred func(model.Record) bool) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.tables[table] {
		if pred(r) {
			return r.Clone(), true
		}
	}
	return nil, false
}

// Rows returns a copy of the records of a table in order.
func (s *Store) Rows(table string) []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[table]
	out := make([]model.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// Snapshot returns a deep copy of every table.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot(s.tables).Clone()
}
