package txn

import "time"

// Option customizes a transaction scope opened by Execute.
type Option func(*Transaction)

// WithClock overrides the time source used for timestamp attributes and
// metric durations.
func WithClock(clock func() time.Time) Option {
	return func(t *Transaction) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger Logger) Option {
	return func(t *Transaction) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics attaches a metrics recorder observing staging and commit
// outcomes.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(t *Transaction) { t.metrics = recorder }
}

// WithTracer attaches a tracer producing one span per transaction scope.
func WithTracer(tracer Tracer) Option {
	return func(t *Transaction) { t.tracer = tracer }
}
