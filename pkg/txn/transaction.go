// Package txn implements the transactional write coordinator: staging of
// record mutations with their validation and lifecycle callbacks running
// eagerly in memory, followed by one atomic multi-item commit against a
// commit store when the scope body returns.
package txn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/ndjndj/dynamoid/pkg/record"
)

// Status tracks a transaction through its scope.
type Status string

// Transaction states. A transaction is open while the scope body runs,
// committing during the store call, and terminal afterwards.
const (
	StatusOpen       Status = "open"
	StatusCommitting Status = "committing"
	StatusCommitted  Status = "committed"
	StatusAborted    Status = "aborted"
)

// Transaction aggregates staged operations for one atomic commit. It is
// scope-bound: created by Execute, handed to the scope body, and finalized
// when the body returns. A Transaction must not be shared across goroutines.
type Transaction struct {
	store   record.CommitStore
	status  Status
	ops     []*operation
	befores map[*record.Record]record.Memento

	clock   func() time.Time
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

type operation struct {
	rec     *record.Record
	kind    opKind
	request record.WriteRequest
}

// Result summarizes a finished transaction scope.
type Result struct {
	Status     Status
	Operations int
}

// Status returns the transaction's current state.
func (t *Transaction) Status() Status { return t.status }

// Pending returns the number of staged operations.
func (t *Transaction) Pending() int { return len(t.ops) }

// Execute opens a transaction scope against store, runs fn, and commits the
// accumulated batch atomically when fn returns nil. When fn returns an error,
// or the commit fails, the transaction aborts: nothing is written and every
// participating record's in-memory state is restored to its pre-staging
// snapshot. An empty batch aborts without a network call and without error.
func Execute(ctx context.Context, store record.CommitStore, fn func(*Transaction) error, opts ...Option) (Result, error) {
	t := &Transaction{
		store:   store,
		status:  StatusOpen,
		befores: make(map[*record.Record]record.Memento),
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  noopLogger{},
		metrics: nil,
		tracer:  nil,
	}
	for _, opt := range opts {
		opt(t)
	}

	start := t.clock()
	ctx, span := t.startSpan(ctx, "transaction")
	err := fn(t)
	if err != nil {
		t.abort()
		t.observe(ctx, "transaction", false, start)
		span.End(err)
		return Result{Status: t.status, Operations: 0}, err
	}
	if len(t.ops) == 0 {
		t.status = StatusAborted
		t.logger.Debug("transaction scope staged nothing, skipping commit")
		t.observe(ctx, "transaction", true, start)
		span.End(nil)
		return Result{Status: t.status}, nil
	}
	if err := t.commit(ctx); err != nil {
		t.observe(ctx, "transaction", false, start)
		span.End(err)
		return Result{Status: t.status}, err
	}
	t.observe(ctx, "transaction", true, start)
	span.End(nil)
	return Result{Status: t.status, Operations: len(t.ops)}, nil
}

func (t *Transaction) commit(ctx context.Context) error {
	if len(t.ops) > record.MaxTransactItems {
		t.abort()
		return record.CommitError{Cause: record.ErrTooManyOperations}
	}
	t.status = StatusCommitting
	batch := make([]record.WriteRequest, 0, len(t.ops))
	for _, op := range t.ops {
		batch = append(batch, op.request)
	}
	if err := t.store.Commit(ctx, batch); err != nil {
		t.abort()
		var ce record.CommitError
		if !errors.As(err, &ce) {
			err = record.CommitError{Cause: err}
		}
		t.logger.Warn("transaction commit rejected", "operations", len(batch), "error", err)
		return err
	}
	t.status = StatusCommitted
	for _, op := range t.ops {
		if op.kind == opDelete {
			op.rec.MarkDeleted()
			continue
		}
		op.rec.MarkCommitted()
	}
	t.logger.Debug("transaction committed", "operations", len(batch))
	return nil
}

// abort discards the pending batch and rewinds every participating record to
// the attribute state captured before its first staging call.
func (t *Transaction) abort() {
	if t.status == StatusCommitted {
		return
	}
	t.status = StatusAborted
	for rec, memento := range t.befores {
		rec.Restore(memento)
	}
	t.ops = nil
}

// snapshotOnce captures a record's state ahead of its first staging in this
// transaction so abort can restore it.
func (t *Transaction) snapshotOnce(rec *record.Record) {
	if _, ok := t.befores[rec]; !ok {
		t.befores[rec] = rec.Snapshot()
	}
}

func (t *Transaction) append(rec *record.Record, kind opKind, req record.WriteRequest) {
	t.ops = append(t.ops, &operation{rec: rec, kind: kind, request: req})
}

func (t *Transaction) observe(ctx context.Context, operation string, success bool, start time.Time) {
	if t.metrics == nil {
		return
	}
	t.metrics.Observe(ctx, operation, success, t.clock().Sub(start))
}

func (t *Transaction) startSpan(ctx context.Context, operation string) (context.Context, TraceSpan) {
	if t.tracer == nil {
		return ctx, noopSpan{}
	}
	return t.tracer.Start(ctx, operation)
}

type noopSpan struct{}

func (noopSpan) End(error) {}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
