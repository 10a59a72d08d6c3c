package record

import "context"

// WriteKind describes the store-level shape of a staged mutation.
type WriteKind string

// Staged write shapes. Creates insert only when the key is absent, updates
// replace unconditionally unless a lock condition applies, deletes require
// the row to exist.
const (
	WritePutIfAbsent WriteKind = "put_if_absent"
	WritePut         WriteKind = "put"
	WriteDelete      WriteKind = "delete"
)

// Condition captures the conditional checks attached to one write request.
// The zero value means unconditional.
type Condition struct {
	// HashNotExists requires that no row with the request key exists.
	HashNotExists bool
	// HashExists requires that a row with the request key exists.
	HashExists bool
	// LockAttribute, when non-empty, requires the stored row's lock counter
	// to equal LockValue.
	LockAttribute string
	LockValue     int64
}

// IsZero reports whether the condition imposes no checks.
func (c Condition) IsZero() bool {
	return !c.HashNotExists && !c.HashExists && c.LockAttribute == ""
}

// WriteRequest is the store-ready payload for one staged operation. The
// shape passes through to the commit store unchanged; no wire format is owned
// here.
type WriteRequest struct {
	Kind WriteKind
	// Table names the target table.
	Table string
	// HashAttribute names the partition key attribute within Key, needed by
	// stores that build conditional expressions.
	HashAttribute string
	// Key holds the primary key attributes.
	Key map[string]any
	// Item holds the full attribute state for put shapes; nil for deletes.
	Item      map[string]any
	Condition Condition
}

// MaxTransactItems is the backing store's cap on items per atomic commit.
// Batches exceeding it fail before any network call.
const MaxTransactItems = 100

// CommitStore is the narrow store contract the coordinator consumes: a
// single atomic multi-item commit that accepts the entire batch or none of
// it. Implementations surface failures as CommitError.
type CommitStore interface {
	Commit(ctx context.Context, batch []WriteRequest) error
}
