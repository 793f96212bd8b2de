package audit

import (
	"context"

	"skirmish/internal/sim"
	"skirmish/internal/telemetry"
)

const (
	// DefaultQueueDepth bounds records awaiting the writer goroutine.
	DefaultQueueDepth = 512

	recorderDroppedMetricKey = "audit_records_dropped_total"
	recorderWrittenMetricKey = "audit_records_written_total"
)

// Recorder bridges engine batch hooks to the store. The hook runs inside
// batch application, so the handoff is a non-blocking send to a writer
// goroutine; records are shed under backlog rather than stalling the engine.
type Recorder struct {
	store   *Store
	queue   chan Record
	metrics telemetry.Metrics
	logger  telemetry.Logger
}

// NewRecorder wraps store with an asynchronous write queue.
func NewRecorder(store *Store, depth int, metrics telemetry.Metrics, logger telemetry.Logger) *Recorder {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &Recorder{
		store:   store,
		queue:   make(chan Record, depth),
		metrics: metrics,
		logger:  logger,
	}
}

// Hook returns the batch hook to register with the engine.
func (r *Recorder) Hook() sim.BatchHook {
	return func(frame, clock uint64, events int, checksum string) {
		select {
		case r.queue <- Record{Frame: frame, Clock: clock, Events: events, Checksum: checksum}:
		default:
			if r.metrics != nil {
				r.metrics.Add(recorderDroppedMetricKey, 1)
			}
		}
	}
}

// Run writes queued records until ctx is cancelled, then flushes whatever is
// still queued before returning. Writes use an uncancellable context so a
// shutdown mid-write cannot truncate the trail.
func (r *Recorder) Run(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			r.flush(writeCtx)
			return
		case rec := <-r.queue:
			r.write(writeCtx, rec)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	if err := r.store.Record(ctx, rec); err != nil {
		if r.logger != nil {
			r.logger.Printf("[audit] write frame %d failed: %v", rec.Frame, err)
		}
		return
	}
	if r.metrics != nil {
		r.metrics.Add(recorderWrittenMetricKey, 1)
	}
}
