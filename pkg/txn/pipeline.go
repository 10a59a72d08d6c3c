package txn

import (
	"fmt"

	"github.com/ndjndj/dynamoid/pkg/record"
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
	opUpsert
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	case opUpsert:
		return "upsert"
	}
	return "unknown"
}

// checkKeyState enforces the persistence-state preconditions for each
// operation kind before any lifecycle work runs.
func checkKeyState(rec *record.Record, kind opKind) error {
	def := rec.Definition()
	switch kind {
	case opCreate:
		if rec.IsPersisted() {
			return record.InvalidKeyStateError{Table: def.Table, Reason: "create target already has an assigned key"}
		}
	case opUpdate, opDelete:
		if !rec.IsPersisted() {
			return record.InvalidKeyStateError{Table: def.Table, Reason: fmt.Sprintf("%s target is not persisted", kind)}
		}
		if rec.HashKeyValue() == nil {
			return record.InvalidKeyStateError{Table: def.Table, Reason: fmt.Sprintf("%s target lacks a hash key", kind)}
		}
		if def.RangeKey != "" && rec.RangeKeyValue() == nil {
			return record.InvalidKeyStateError{Table: def.Table, Reason: fmt.Sprintf("%s target lacks a range key", kind)}
		}
	case opUpsert:
		// Upserts accept either state; the put is unconditional.
	}
	return nil
}

// buildRequest computes the final attribute state for the operation and
// shapes the store write request. This is the persist-prep step: it runs
// inside the saving…saved span, after the creating/updating boundary hooks.
func (t *Transaction) buildRequest(rec *record.Record, kind opKind) (record.WriteRequest, error) {
	def := rec.Definition()
	now := t.clock()

	if kind == opDelete {
		cond := record.Condition{HashExists: true}
		if def.LockAttribute != "" {
			if lock, ok := lockValue(rec.Get(def.LockAttribute)); ok {
				cond.LockAttribute = def.LockAttribute
				cond.LockValue = lock
			}
		}
		return record.WriteRequest{
			Kind:          record.WriteDelete,
			Table:         def.Table,
			HashAttribute: def.HashKey,
			Key:           rec.Key(),
			Condition:     cond,
		}, nil
	}

	if kind == opCreate && rec.HashKeyValue() == nil {
		if !def.AutoID {
			return record.WriteRequest{}, record.InvalidKeyStateError{Table: def.Table, Reason: "create target lacks a hash key and the type does not auto-generate one"}
		}
		if err := rec.Set(def.HashKey, newID()); err != nil {
			return record.WriteRequest{}, err
		}
	}
	if rec.HashKeyValue() == nil {
		return record.WriteRequest{}, record.InvalidKeyStateError{Table: def.Table, Reason: fmt.Sprintf("%s target lacks a hash key", kind)}
	}
	if def.RangeKey != "" && rec.RangeKeyValue() == nil {
		return record.WriteRequest{}, record.InvalidKeyStateError{Table: def.Table, Reason: fmt.Sprintf("%s target lacks a range key", kind)}
	}

	if def.Timestamps {
		if kind == opCreate {
			if err := rec.Set(record.AttrCreatedAt, now); err != nil {
				return record.WriteRequest{}, err
			}
		}
		if err := rec.Set(record.AttrUpdatedAt, now); err != nil {
			return record.WriteRequest{}, err
		}
	}

	cond := record.Condition{}
	if kind == opCreate {
		cond.HashNotExists = true
	}
	if def.LockAttribute != "" && kind != opUpsert {
		current, ok := lockValue(rec.Get(def.LockAttribute))
		if kind == opCreate {
			current, ok = 0, false
		}
		if ok {
			cond.LockAttribute = def.LockAttribute
			cond.LockValue = current
		}
		if err := rec.Set(def.LockAttribute, current+1); err != nil {
			return record.WriteRequest{}, err
		}
	}

	wk := record.WritePut
	if kind == opCreate {
		wk = record.WritePutIfAbsent
	}
	return record.WriteRequest{
		Kind:          wk,
		Table:         def.Table,
		HashAttribute: def.HashKey,
		Key:           rec.Key(),
		Item:          rec.Attributes(),
		Condition:     cond,
	}, nil
}

// lockValue coerces a stored lock counter to int64. Numeric types cover
// in-memory writes and JSON round-trips through the snapshot stores.
func lockValue(v any) (int64, bool) {
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
