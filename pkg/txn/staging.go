package txn

import (
	"context"
	"errors"

	"github.com/ndjndj/dynamoid/pkg/record"
)

// stageOptions carries per-call staging behavior.
type stageOptions struct {
	skipValidation bool
}

// StageOption adjusts a single staging call.
type StageOption func(*stageOptions)

// SkipValidation stages the record without running its validators. The
// validate-phase hooks do not fire either; lifecycle save hooks still run.
func SkipValidation() StageOption {
	return func(o *stageOptions) { o.skipValidation = true }
}

func buildStageOptions(opts []StageOption) stageOptions {
	var o stageOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stage is the single internal staging path: every entry point resolves its
// target to a record plus attribute delta and lands here.
func (t *Transaction) stage(ctx context.Context, rec *record.Record, overrides map[string]any, kind opKind, opts stageOptions) error {
	if t.status != StatusOpen {
		return errors.New("transaction is not open")
	}
	if err := checkKeyState(rec, kind); err != nil {
		return err
	}
	t.snapshotOnce(rec)
	if len(overrides) > 0 {
		if err := rec.SetAll(overrides); err != nil {
			return err
		}
	}

	if kind == opUpsert {
		// Upserts bypass validators and lifecycle hooks entirely.
		req, err := t.buildRequest(rec, kind)
		if err != nil {
			return err
		}
		t.append(rec, kind, req)
		t.logger.Debug("staged operation", "kind", kind.String(), "table", rec.Definition().Table)
		return nil
	}

	mark := len(t.ops)
	if err := t.runLifecycle(ctx, rec, kind, opts); err != nil {
		// A hook may fail after persist-prep already appended the request;
		// a failed staging call must leave nothing in the pending list.
		t.ops = t.ops[:mark]
		return err
	}
	t.logger.Debug("staged operation", "kind", kind.String(), "table", rec.Definition().Table)
	return nil
}

// Create stages a first-time insert for an unpersisted record. Validation
// failure returns a record.NotValidError; returning that error from the
// scope body aborts the whole transaction.
func (t *Transaction) Create(ctx context.Context, rec *record.Record, overrides map[string]any, opts ...StageOption) error {
	return t.stage(ctx, rec, overrides, opCreate, buildStageOptions(opts))
}

// TryCreate is the non-strict variant of Create: validation failure yields
// (false, nil) and leaves the transaction open; every other failure is
// returned verbatim.
func (t *Transaction) TryCreate(ctx context.Context, rec *record.Record, overrides map[string]any, opts ...StageOption) (bool, error) {
	return t.try(t.Create(ctx, rec, overrides, opts...))
}

// Update stages a replacement write for a persisted record, merging
// overrides onto its in-memory attributes. A no-op delta still runs the full
// lifecycle, matching single-record save semantics.
func (t *Transaction) Update(ctx context.Context, rec *record.Record, overrides map[string]any, opts ...StageOption) error {
	return t.stage(ctx, rec, overrides, opUpdate, buildStageOptions(opts))
}

// TryUpdate is the non-strict variant of Update.
func (t *Transaction) TryUpdate(ctx context.Context, rec *record.Record, overrides map[string]any, opts ...StageOption) (bool, error) {
	return t.try(t.Update(ctx, rec, overrides, opts...))
}

// Delete stages a conditional delete for a persisted record. Destroy hooks
// run; validators do not.
func (t *Transaction) Delete(ctx context.Context, rec *record.Record, opts ...StageOption) error {
	return t.stage(ctx, rec, nil, opDelete, buildStageOptions(opts))
}

// TryDelete is the non-strict variant of Delete.
func (t *Transaction) TryDelete(ctx context.Context, rec *record.Record, opts ...StageOption) (bool, error) {
	return t.try(t.Delete(ctx, rec, opts...))
}

// Upsert stages an unconditional put that creates or replaces the row. It
// runs no validators and no lifecycle hooks; timestamp touch still applies.
func (t *Transaction) Upsert(ctx context.Context, rec *record.Record, overrides map[string]any) error {
	return t.stage(ctx, rec, overrides, opUpsert, stageOptions{})
}

// TryUpsert is the non-strict variant of Upsert. Upserts run no validators,
// so the boolean only reflects staging success.
func (t *Transaction) TryUpsert(ctx context.Context, rec *record.Record, overrides map[string]any) (bool, error) {
	return t.try(t.Upsert(ctx, rec, overrides))
}

// UpdateKeyed stages an update addressed by definition plus a key-bearing
// attribute set, without requiring a previously loaded instance. It returns
// the hydrated record participating in the transaction.
func (t *Transaction) UpdateKeyed(ctx context.Context, def *record.Definition, attrs map[string]any, overrides map[string]any, opts ...StageOption) (*record.Record, error) {
	rec, err := def.Hydrate(attrs)
	if err != nil {
		return nil, err
	}
	if err := t.Update(ctx, rec, overrides, opts...); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteKeyed stages a delete addressed by definition plus key attributes.
func (t *Transaction) DeleteKeyed(ctx context.Context, def *record.Definition, attrs map[string]any, opts ...StageOption) (*record.Record, error) {
	rec, err := def.Hydrate(attrs)
	if err != nil {
		return nil, err
	}
	if err := t.Delete(ctx, rec, opts...); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpsertKeyed stages an upsert addressed by definition plus attributes.
func (t *Transaction) UpsertKeyed(ctx context.Context, def *record.Definition, attrs map[string]any) (*record.Record, error) {
	rec, err := def.New(attrs)
	if err != nil {
		return nil, err
	}
	if err := t.Upsert(ctx, rec, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// try converts a validation failure into a falsy result and passes every
// other error through unchanged.
func (t *Transaction) try(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var nv record.NotValidError
	if errors.As(err, &nv) {
		t.logger.Debug("staging rejected by validation", "error", err)
		return false, nil
	}
	return false, err
}
