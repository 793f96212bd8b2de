package relay

import (
	"context"
	"errors"
	"sync"

	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
)

const (
	bufferOccupancyMetricKey = "relay_buffer_occupancy"
	bufferBlockedMetricKey   = "relay_buffer_blocked_total"
)

// ErrBufferClosed is returned by Append once the buffer has shut down.
var ErrBufferClosed = errors.New("relay: event buffer closed")

// EventBuffer stages verified events between ticks. It is safe for concurrent
// producers and a single draining consumer. Producers block while the buffer
// is at capacity: dropping an authenticated event would silently erase a
// legitimate action, so backpressure is pushed onto the sender instead.
type EventBuffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	events   []proto.SignedWrapper
	capacity int
	closed   bool
	metrics  telemetry.Metrics
}

// NewEventBuffer constructs a buffer that admits at most capacity events
// between drains.
func NewEventBuffer(capacity int, metrics telemetry.Metrics) *EventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &EventBuffer{capacity: capacity, metrics: metrics}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Append stages one event in arrival order, blocking while the buffer is
// full. A context cancelled mid-wait is honoured at the next drain or close,
// which on a ticking relay is at most one tick away.
func (b *EventBuffer) Append(ctx context.Context, event proto.SignedWrapper) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.events) >= b.capacity {
		if b.closed {
			return ErrBufferClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.metrics != nil {
			b.metrics.Add(bufferBlockedMetricKey, 1)
		}
		b.notFull.Wait()
	}
	if b.closed {
		return ErrBufferClosed
	}
	b.events = append(b.events, event)
	b.storeOccupancyLocked()
	return nil
}

// Drain returns all staged events in FIFO order and clears the buffer,
// releasing any blocked producers. Snapshot-and-clear happens under one
// critical section so no event is split across two batches.
func (b *EventBuffer) Drain() []proto.SignedWrapper {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.events
	b.events = nil
	b.storeOccupancyLocked()
	b.notFull.Broadcast()
	return drained
}

// Len reports the number of staged events.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Capacity reports the admission limit.
func (b *EventBuffer) Capacity() int {
	return b.capacity
}

// Close rejects all future appends and releases blocked producers. Staged
// events remain drainable.
func (b *EventBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.notFull.Broadcast()
	b.mu.Unlock()
}

func (b *EventBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(bufferOccupancyMetricKey, uint64(len(b.events)))
}
