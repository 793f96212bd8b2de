package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"skirmish/internal/proto"
)

func stubEvent(id string) proto.SignedWrapper {
	return proto.SignedWrapper{
		Payload:   []byte(`{"type":"move","dir":"w","id":"` + id + `"}`),
		Signature: []byte(id),
		PublicKey: "pem:" + id,
	}
}

func TestBufferDrainsInArrivalOrder(t *testing.T) {
	buf := NewEventBuffer(8, nil)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if err := buf.Append(ctx, stubEvent(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if got := buf.Len(); got != 3 {
		t.Fatalf("expected 3 staged events, got %d", got)
	}

	drained := buf.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained events, got %d", len(drained))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if got := string(drained[i].Signature); got != want {
			t.Fatalf("event %d out of order: got %s, want %s", i, got, want)
		}
	}
	if got := buf.Len(); got != 0 {
		t.Fatalf("drain left %d events", got)
	}
	if again := buf.Drain(); again != nil {
		t.Fatalf("second drain returned %d events", len(again))
	}
}

func TestBufferBlocksWhenFull(t *testing.T) {
	buf := NewEventBuffer(1, nil)
	ctx := context.Background()

	if err := buf.Append(ctx, stubEvent("e1")); err != nil {
		t.Fatalf("append e1: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- buf.Append(ctx, stubEvent("e2"))
	}()

	select {
	case err := <-done:
		t.Fatalf("append did not block on a full buffer: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	drained := buf.Drain()
	if len(drained) != 1 || string(drained[0].Signature) != "e1" {
		t.Fatalf("unexpected drain result: %+v", drained)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked append failed after drain: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked append never completed after drain")
	}

	drained = buf.Drain()
	if len(drained) != 1 || string(drained[0].Signature) != "e2" {
		t.Fatalf("expected e2 after unblocking, got %+v", drained)
	}
}

func TestBufferCloseReleasesProducers(t *testing.T) {
	buf := NewEventBuffer(1, nil)
	ctx := context.Background()

	if err := buf.Append(ctx, stubEvent("e1")); err != nil {
		t.Fatalf("append e1: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- buf.Append(ctx, stubEvent("e2"))
	}()

	time.Sleep(20 * time.Millisecond)
	buf.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrBufferClosed) {
			t.Fatalf("expected ErrBufferClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not release the blocked producer")
	}

	if err := buf.Append(ctx, stubEvent("e3")); !errors.Is(err, ErrBufferClosed) {
		t.Fatalf("append after close returned %v", err)
	}

	// Staged events remain drainable after close.
	if drained := buf.Drain(); len(drained) != 1 {
		t.Fatalf("expected staged event to survive close, got %d", len(drained))
	}
}

func TestBufferNoLossUnderConcurrentAppends(t *testing.T) {
	buf := NewEventBuffer(4, nil)
	ctx := context.Background()

	const producers = 4
	const perProducer = 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := fmt.Sprintf("p%d-%d", p, i)
				if err := buf.Append(ctx, stubEvent(id)); err != nil {
					t.Errorf("append %s: %v", id, err)
					return
				}
			}
		}(p)
	}

	seen := make(map[string]bool)
	deadline := time.After(5 * time.Second)
	for len(seen) < producers*perProducer {
		select {
		case <-deadline:
			t.Fatalf("drained %d of %d events before deadline", len(seen), producers*perProducer)
		default:
		}
		for _, event := range buf.Drain() {
			id := string(event.Signature)
			if seen[id] {
				t.Fatalf("event %s delivered twice", id)
			}
			seen[id] = true
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
}

func TestBufferHonoursCancelledContext(t *testing.T) {
	buf := NewEventBuffer(1, nil)
	if err := buf.Append(context.Background(), stubEvent("e1")); err != nil {
		t.Fatalf("append e1: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := buf.Append(cancelled, stubEvent("e2")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
