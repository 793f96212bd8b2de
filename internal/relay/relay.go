package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"skirmish/internal/gate"
	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
	"skirmish/logging"
	relaylog "skirmish/logging/relay"
)

const (
	// DefaultTickRate matches the render frame rate the original client ran at.
	DefaultTickRate = 60
	// DefaultBufferCapacity bounds staged events between ticks.
	DefaultBufferCapacity = 256
	// DefaultEventRate is the per-sender admission budget in events per second.
	DefaultEventRate = 32
	// DefaultEventBurst is the per-sender burst allowance.
	DefaultEventBurst = 64

	batchesEmittedMetricKey = "relay_batches_emitted_total"
	ticksSkippedMetricKey   = "relay_ticks_skipped_total"
	batchEventsMetricKey    = "relay_batch_events"
	frameMetricKey          = "relay_frame"
	tickDurationMetricKey   = "relay_tick_duration_ns"
)

// ErrMissingSigner is returned by New when no signing identity is supplied.
var ErrMissingSigner = errors.New("relay: signer is required")

// Broadcaster delivers a signed batch to every subscribed peer. Delivery is
// best effort; a lost batch is never retried.
type Broadcaster interface {
	Broadcast(ctx context.Context, batch proto.SignedWrapper)
}

// BroadcasterFunc adapts a function to the Broadcaster interface.
type BroadcasterFunc func(ctx context.Context, batch proto.SignedWrapper)

func (f BroadcasterFunc) Broadcast(ctx context.Context, batch proto.SignedWrapper) {
	f(ctx, batch)
}

// Config tunes the tick cadence and admission limits.
type Config struct {
	TickRate       int
	BufferCapacity int
	EventRate      float64
	EventBurst     int
}

func (c Config) normalized() Config {
	if c.TickRate <= 0 {
		c.TickRate = DefaultTickRate
	}
	if c.BufferCapacity < 1 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.EventRate <= 0 {
		c.EventRate = DefaultEventRate
	}
	if c.EventBurst < 1 {
		c.EventBurst = DefaultEventBurst
	}
	return c
}

// Deps carries the relay's collaborators. Zero values are substituted with
// inert defaults except Signer, which is mandatory.
type Deps struct {
	Signer      *gate.Signer
	Verifier    *gate.Verifier
	Broadcaster Broadcaster
	Publisher   logging.Publisher
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Clock       logging.Clock
}

// Relay is the authoritative clock: it collects verified events, fixes their
// total order, and emits one signed BatchReport per tick. It never simulates;
// ordering and timing are its whole contract.
type Relay struct {
	cfg         Config
	period      time.Duration
	signer      *gate.Signer
	broadcaster Broadcaster
	publisher   logging.Publisher
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	clock       logging.Clock
	buffer      *EventBuffer
	intake      *Intake

	mu       sync.Mutex
	frame    uint64
	lastTick time.Time
	pending  []proto.SignedWrapper
	skips    uint64
}

// New constructs a relay around the given signing identity.
func New(cfg Config, deps Deps) (*Relay, error) {
	if deps.Signer == nil {
		return nil, ErrMissingSigner
	}
	cfg = cfg.normalized()
	if deps.Clock == nil {
		deps.Clock = logging.ClockFunc(time.Now)
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = BroadcasterFunc(func(context.Context, proto.SignedWrapper) {})
	}
	r := &Relay{
		cfg:         cfg,
		period:      time.Second / time.Duration(cfg.TickRate),
		signer:      deps.Signer,
		broadcaster: deps.Broadcaster,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
	}
	r.buffer = NewEventBuffer(cfg.BufferCapacity, deps.Metrics)
	r.intake = newIntake(r.buffer, cfg, deps, r.Frame)
	return r, nil
}

// Receive admits one raw transport message through the intake pipeline.
func (r *Relay) Receive(ctx context.Context, data []byte) bool {
	return r.intake.Receive(ctx, data)
}

// Buffered reports the number of staged events awaiting the next tick.
func (r *Relay) Buffered() int {
	return r.buffer.Len()
}

// Frame reports the sequence number of the last emitted batch.
func (r *Relay) Frame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// PublicKeyPEM exposes the relay's identity for peers to pin.
func (r *Relay) PublicKeyPEM() []byte {
	return []byte(r.signer.PublicKeyPEM())
}

// Run drives the tick loop until ctx is cancelled. On exit the buffer is
// closed so blocked producers unwind.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	defer r.buffer.Close()

	r.mu.Lock()
	r.lastTick = r.clock.Now()
	r.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, r.clock.Now())
		}
	}
}

// tick drains the buffer and emits one signed batch. Ticks are a heartbeat:
// an empty buffer still produces a report, because peers integrate motion
// from deltaTiming. On signing failure the tick is skipped wholesale; the
// drained events are retained, the frame does not advance, and the skipped
// interval folds into the next report's deltaTiming.
func (r *Relay) tick(ctx context.Context, now time.Time) bool {
	r.mu.Lock()
	events := r.pending
	r.pending = nil
	events = append(events, r.buffer.Drain()...)

	delta := r.period
	if !r.lastTick.IsZero() {
		if elapsed := now.Sub(r.lastTick); elapsed > 0 {
			delta = elapsed
		}
	}

	report := proto.BatchReport{
		Frame:       r.frame + 1,
		DeltaTiming: uint64(delta.Nanoseconds()),
		DeltaEvents: events,
	}
	wrapper, err := r.signer.Wrap(report)
	if err != nil {
		r.pending = events
		r.skips++
		skips := r.skips
		frame := r.frame
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.Add(ticksSkippedMetricKey, 1)
		}
		relaylog.TickSkipped(ctx, r.publisher, frame, relaylog.SkipPayload{
			Reason:      err.Error(),
			Consecutive: skips,
		})
		// During a long outage only power-of-two run lengths reach the log.
		if r.logger != nil && skips&(skips-1) == 0 {
			r.logger.Printf("[relay] tick skipped (%d consecutive): %v", skips, err)
		}
		return false
	}
	r.frame = report.Frame
	r.lastTick = now
	r.skips = 0
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Add(batchesEmittedMetricKey, 1)
		r.metrics.Store(batchEventsMetricKey, uint64(len(events)))
		r.metrics.Store(frameMetricKey, report.Frame)
		if d := r.clock.Now().Sub(now); d > 0 {
			r.metrics.Store(tickDurationMetricKey, uint64(d.Nanoseconds()))
		}
	}
	r.broadcaster.Broadcast(ctx, wrapper)
	return true
}
