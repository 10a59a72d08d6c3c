package txn

import (
	"context"

	"github.com/ndjndj/dynamoid/pkg/record"
)

// runLifecycle drives the staged record through its validation and callback
// state machine and, inside the save span, builds the write request and
// appends it to the pending list. An operation reaches the pending list only
// when every non-fatal phase before persist-prep has passed.
//
// Boundary order for an update: validating, validated, saving, updating,
// updated, saved. Creates swap the creating/created boundaries in; deletes
// run destroying, destroyed with no validate or save span. Around-save hooks
// wrap the whole saving…saved span, outermost hook first.
func (t *Transaction) runLifecycle(ctx context.Context, rec *record.Record, kind opKind, opts stageOptions) error {
	def := rec.Definition()

	if kind == opDelete {
		if err := fireHooks(ctx, rec, def.Hooks(record.PhaseDestroying)); err != nil {
			return err
		}
		req, err := t.buildRequest(rec, kind)
		if err != nil {
			return err
		}
		t.append(rec, kind, req)
		return fireHooks(ctx, rec, def.Hooks(record.PhaseDestroyed))
	}

	if !opts.skipValidation {
		if err := fireHooks(ctx, rec, def.Hooks(record.PhaseValidating)); err != nil {
			return err
		}
		var combined record.Result
		for _, v := range def.Validators() {
			combined.Merge(v.Validate(rec))
		}
		if !combined.OK() {
			return record.NotValidError{Record: rec, Result: combined}
		}
		if err := fireHooks(ctx, rec, def.Hooks(record.PhaseValidated)); err != nil {
			return err
		}
	}

	before, after := record.PhaseUpdating, record.PhaseUpdated
	if kind == opCreate {
		before, after = record.PhaseCreating, record.PhaseCreated
	}

	span := func(ctx context.Context) error {
		if err := fireHooks(ctx, rec, def.Hooks(record.PhaseSaving)); err != nil {
			return err
		}
		if err := fireHooks(ctx, rec, def.Hooks(before)); err != nil {
			return err
		}
		req, err := t.buildRequest(rec, kind)
		if err != nil {
			return err
		}
		t.append(rec, kind, req)
		if err := fireHooks(ctx, rec, def.Hooks(after)); err != nil {
			return err
		}
		return fireHooks(ctx, rec, def.Hooks(record.PhaseSaved))
	}

	arounds := def.AroundSaveHooks()
	wrapped := span
	for i := len(arounds) - 1; i >= 0; i-- {
		hook, next := arounds[i], wrapped
		wrapped = func(ctx context.Context) error {
			return hook(ctx, rec, next)
		}
	}
	return wrapped(ctx)
}

func fireHooks(ctx context.Context, rec *record.Record, hooks []record.Hook) error {
	for _, h := range hooks {
		if err := h(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
