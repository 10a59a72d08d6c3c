package record

import "context"

// Phase identifies a lifecycle boundary that hooks can attach to.
type Phase string

// Lifecycle boundaries in firing order for a plain save. Creating/created
// replace updating/updated for first-time creates; destroying/destroyed fire
// for deletes and skip the validate and save spans entirely.
const (
	PhaseValidating Phase = "validating"
	PhaseValidated  Phase = "validated"
	PhaseSaving     Phase = "saving"
	PhaseCreating   Phase = "creating"
	PhaseCreated    Phase = "created"
	PhaseUpdating   Phase = "updating"
	PhaseUpdated    Phase = "updated"
	PhaseSaved      Phase = "saved"
	PhaseDestroying Phase = "destroying"
	PhaseDestroyed  Phase = "destroyed"
)

// Hook is a boundary lifecycle callback. A non-nil error aborts the staged
// operation and propagates verbatim to the staging entry point.
type Hook func(ctx context.Context, r *Record) error

// AroundHook wraps the saving…saved span. Implementations must call next to
// run the inner span; skipping next suppresses the wrapped boundaries and the
// persist-prep step.
type AroundHook func(ctx context.Context, r *Record, next func(context.Context) error) error

type hookSet struct {
	byPhase    map[Phase][]Hook
	aroundSave []AroundHook
}

// On registers a boundary hook; hooks on one phase run in registration order.
func (d *Definition) On(phase Phase, h Hook) {
	if d.hooks.byPhase == nil {
		d.hooks.byPhase = make(map[Phase][]Hook)
	}
	d.hooks.byPhase[phase] = append(d.hooks.byPhase[phase], h)
}

// AroundSave registers a hook wrapping the saving…saved span. Multiple
// around hooks nest: the first registered is outermost.
func (d *Definition) AroundSave(h AroundHook) {
	d.hooks.aroundSave = append(d.hooks.aroundSave, h)
}

// Hooks returns the boundary hooks registered for a phase.
func (d *Definition) Hooks(phase Phase) []Hook {
	return d.hooks.byPhase[phase]
}

// AroundSaveHooks returns the registered around-save hooks, outermost first.
func (d *Definition) AroundSaveHooks() []AroundHook {
	return d.hooks.aroundSave
}
