package record

import (
	"errors"
	"fmt"
	"strings"
)

// NotValidError is returned by strict staging entry points when a record
// fails validation; it is fatal to the enclosing transaction when propagated
// out of the scope body.
type NotValidError struct {
	Record *Record
	Result Result
}

func (e NotValidError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		msgs = append(msgs, v.Message)
	}
	table := "record"
	if e.Record != nil && e.Record.def != nil {
		table = e.Record.def.Table
	}
	return fmt.Sprintf("%s not valid: %s", table, strings.Join(msgs, "; "))
}

// InvalidKeyStateError reports a staged operation whose target is in the
// wrong persistence state for the operation kind. It is a programmer error
// and always fatal.
type InvalidKeyStateError struct {
	Table  string
	Reason string
}

func (e InvalidKeyStateError) Error() string {
	return fmt.Sprintf("invalid key state for table %s: %s", e.Table, e.Reason)
}

// Sentinel causes carried by CommitError.
var (
	// ErrTooManyOperations flags a pending batch above MaxTransactItems.
	ErrTooManyOperations = errors.New("pending batch exceeds the atomic commit item limit")
	// ErrDuplicateKeyInBatch flags two staged operations addressing one key.
	ErrDuplicateKeyInBatch = errors.New("duplicate key in commit batch")
	// ErrConditionFailed flags a conditional check rejected by the store.
	ErrConditionFailed = errors.New("conditional check failed")
)

// CancellationReason describes why the store rejected one batch item, when
// per-item detail is available.
type CancellationReason struct {
	Index   int
	Code    string
	Message string
}

// CommitError wraps any store-side rejection of the whole batch at commit
// time. No partial effects are visible when it is returned; the coordinator
// does not retry.
type CommitError struct {
	Cause   error
	Reasons []CancellationReason
}

func (e CommitError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("transaction commit failed: %v", e.Cause)
	}
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, fmt.Sprintf("item %d: %s", r.Index, r.Code))
	}
	return fmt.Sprintf("transaction commit failed: %v (%s)", e.Cause, strings.Join(parts, ", "))
}

func (e CommitError) Unwrap() error { return e.Cause }
