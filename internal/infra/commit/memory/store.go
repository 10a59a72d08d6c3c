// Package memory provides an in-memory commit store implementing the atomic
// multi-item commit contract, including conditional checks, duplicate-key
// rejection, and the per-batch item cap. It backs tests and the embedded
// snapshot stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ndjndj/dynamoid/pkg/record"
)

// Compile-time contract assertion.
var _ record.CommitStore = (*Store)(nil)

// Store holds tables as nested maps keyed by an encoded primary key. All
// batch validation and application happens under one mutex, so a batch is
// visible entirely or not at all.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]any
}

// NewStore constructs an empty in-memory commit store.
func NewStore() *Store {
	return &Store{tables: make(map[string]map[string]map[string]any)}
}

// Snapshot is the exportable full state, used by the durable snapshot stores.
type Snapshot struct {
	Tables map[string]map[string]map[string]any `json:"tables"`
}

// Commit validates the batch and applies it atomically.
func (s *Store) Commit(_ context.Context, batch []record.WriteRequest) error {
	if len(batch) > record.MaxTransactItems {
		return record.CommitError{Cause: record.ErrTooManyOperations}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]int, len(batch))
	for i, req := range batch {
		ks := req.Table + "\x1e" + keyString(req.Key)
		if prev, ok := seen[ks]; ok {
			return record.CommitError{
				Cause: record.ErrDuplicateKeyInBatch,
				Reasons: []record.CancellationReason{
					{Index: prev, Code: "ValidationError", Message: "duplicate key in batch"},
					{Index: i, Code: "ValidationError", Message: "duplicate key in batch"},
				},
			}
		}
		seen[ks] = i
	}

	var reasons []record.CancellationReason
	for i, req := range batch {
		if msg := s.checkCondition(req); msg != "" {
			reasons = append(reasons, record.CancellationReason{Index: i, Code: "ConditionalCheckFailed", Message: msg})
		}
	}
	if len(reasons) > 0 {
		return record.CommitError{Cause: record.ErrConditionFailed, Reasons: reasons}
	}

	for _, req := range batch {
		table := s.tables[req.Table]
		if table == nil {
			table = make(map[string]map[string]any)
			s.tables[req.Table] = table
		}
		ks := keyString(req.Key)
		switch req.Kind {
		case record.WriteDelete:
			delete(table, ks)
		default:
			table[ks] = cloneItem(req.Item)
		}
	}
	return nil
}

// checkCondition evaluates one request's conditional checks against current
// state; it returns an empty string when the condition holds.
func (s *Store) checkCondition(req record.WriteRequest) string {
	cond := req.Condition
	if cond.IsZero() {
		return ""
	}
	item, exists := s.lookup(req.Table, req.Key)
	if cond.HashNotExists && exists {
		return fmt.Sprintf("item with key %s already exists", keyString(req.Key))
	}
	if cond.HashExists && !exists {
		return fmt.Sprintf("item with key %s does not exist", keyString(req.Key))
	}
	if cond.LockAttribute != "" {
		if !exists {
			return "lock check against a missing item"
		}
		current, ok := toInt64(item[cond.LockAttribute])
		if !ok || current != cond.LockValue {
			return fmt.Sprintf("lock attribute %s mismatch", cond.LockAttribute)
		}
	}
	return ""
}

func (s *Store) lookup(table string, key map[string]any) (map[string]any, bool) {
	rows, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	item, ok := rows[keyString(key)]
	return item, ok
}

// Load returns a copy of the stored item for the given key.
func (s *Store) Load(table string, key map[string]any) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.lookup(table, key)
	if !ok {
		return nil, false
	}
	return cloneItem(item), true
}

// Len returns the number of rows in a table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// ExportState returns a deep copy of the full store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := make(map[string]map[string]map[string]any, len(s.tables))
	for name, rows := range s.tables {
		cp := make(map[string]map[string]any, len(rows))
		for k, item := range rows {
			cp[k] = cloneItem(item)
		}
		tables[name] = cp
	}
	return Snapshot{Tables: tables}
}

// ImportState replaces the full store state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]map[string]map[string]any, len(snapshot.Tables))
	for name, rows := range snapshot.Tables {
		cp := make(map[string]map[string]any, len(rows))
		for k, item := range rows {
			cp[k] = cloneItem(item)
		}
		s.tables[name] = cp
	}
}

// keyString encodes a primary key map deterministically.
func keyString(key map[string]any) string {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, key[name]))
	}
	return strings.Join(parts, "\x1f")
}

func cloneItem(item map[string]any) map[string]any {
	if item == nil {
		return nil
	}
	cp := make(map[string]any, len(item))
	for k, v := range item {
		cp[k] = v
	}
	return cp
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
