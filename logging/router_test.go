package logging_test

import (
	"context"
	"testing"
	"time"

	"skirmish/logging"
	"skirmish/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	memory := sinks.NewMemorySink()
	router, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("expected router construction to succeed, got %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	})
	return router, memory
}

func waitForEvents(t *testing.T, memory *sinks.MemorySink, want int) []logging.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := memory.Events()
		if len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events, got %d", want, len(memory.Events()))
	return nil
}

func TestRouterForwardsToSink(t *testing.T) {
	router, memory := newTestRouter(t, logging.DefaultConfig())

	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventType("relay.tick"),
		Frame:    7,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRelay,
	})

	events := waitForEvents(t, memory, 1)
	if events[0].Type != "relay.tick" {
		t.Fatalf("expected relay.tick, got %s", events[0].Type)
	}
	if events[0].Frame != 7 {
		t.Fatalf("expected frame 7, got %d", events[0].Frame)
	}
	if events[0].Time.IsZero() {
		t.Fatalf("expected router to stamp event time")
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, memory := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventType("security.signature_rejected"),
		Severity: logging.SeverityDebug,
	})
	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventType("network.frame_gap"),
		Severity: logging.SeverityWarn,
	})

	events := waitForEvents(t, memory, 1)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event after filtering, got %d", len(events))
	}
	if events[0].Type != "network.frame_gap" {
		t.Fatalf("expected the warn event to survive, got %s", events[0].Type)
	}
	stats := router.Stats()
	if stats.EventsTotal != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", stats.EventsTotal)
	}
}

func TestRouterAppliesConfiguredFields(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"node": "relay-1"}
	router, memory := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{
		Type:     logging.EventType("match.phase_changed"),
		Severity: logging.SeverityInfo,
	})

	events := waitForEvents(t, memory, 1)
	if got := events[0].Extra["node"]; got != "relay-1" {
		t.Fatalf("expected configured field node=relay-1, got %v", got)
	}
}

func TestMetricsAddAndStore(t *testing.T) {
	var metrics logging.Metrics
	metrics.TelemetryAdd("relay_batches_emitted", 2)
	metrics.TelemetryAdd("relay_batches_emitted", 1)
	metrics.TelemetryStore("relay_buffer_occupancy", 9)

	snapshot := metrics.Snapshot()
	if snapshot["relay_batches_emitted"] != 3 {
		t.Fatalf("expected counter 3, got %d", snapshot["relay_batches_emitted"])
	}
	if snapshot["relay_buffer_occupancy"] != 9 {
		t.Fatalf("expected gauge 9, got %d", snapshot["relay_buffer_occupancy"])
	}

	snapshot["relay_batches_emitted"] = 100
	if metrics.Snapshot()["relay_batches_emitted"] != 3 {
		t.Fatalf("snapshot must be a copy")
	}
}
