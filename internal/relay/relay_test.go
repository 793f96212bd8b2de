package relay

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"skirmish/internal/gate"
	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
	"skirmish/logging"
	relaylog "skirmish/logging/relay"
)

type testSender struct {
	signer *gate.Signer
}

func newTestSender(t *testing.T) *testSender {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := gate.NewSigner(priv)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return &testSender{signer: signer}
}

// wire renders a signed move action as raw transport bytes.
func (s *testSender) wire(t *testing.T, actionID string) []byte {
	t.Helper()
	payload, err := proto.EncodeAction(proto.Action{
		ID:   actionID,
		Kind: proto.ActionMove,
		Move: &proto.MoveAction{Dir: proto.DirUp},
	})
	if err != nil {
		t.Fatalf("encode action: %v", err)
	}
	wrapper, err := s.signer.Wrap(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("wrap action: %v", err)
	}
	data, err := proto.EncodeWrapper(wrapper)
	if err != nil {
		t.Fatalf("encode wrapper: %v", err)
	}
	return data
}

type captureBroadcaster struct {
	batches []proto.SignedWrapper
}

func (c *captureBroadcaster) Broadcast(_ context.Context, batch proto.SignedWrapper) {
	c.batches = append(c.batches, batch)
}

func newTestRelay(t *testing.T, cfg Config, deps Deps) *Relay {
	t.Helper()
	if deps.Signer == nil {
		deps.Signer = newTestSender(t).signer
	}
	r, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return r
}

func decodeBatch(t *testing.T, wrapper proto.SignedWrapper) proto.BatchReport {
	t.Helper()
	report, err := proto.DecodeReport(wrapper.Payload)
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return report
}

func TestEmptyTickEmitsHeartbeat(t *testing.T) {
	captured := &captureBroadcaster{}
	r := newTestRelay(t, Config{}, Deps{Broadcaster: captured})
	ctx := context.Background()

	if !r.tick(ctx, time.Now()) {
		t.Fatal("tick failed")
	}
	if len(captured.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(captured.batches))
	}

	batch := captured.batches[0]
	if !gate.NewVerifier(nil).VerifyFrom(r.signer.PublicKey(), batch) {
		t.Fatal("batch signature did not verify against the relay key")
	}
	report := decodeBatch(t, batch)
	if report.Frame != 1 {
		t.Fatalf("expected frame 1, got %d", report.Frame)
	}
	if report.DeltaTiming == 0 {
		t.Fatal("expected strictly positive deltaTiming")
	}
	if len(report.DeltaEvents) != 0 {
		t.Fatalf("expected empty deltaEvents, got %d", len(report.DeltaEvents))
	}
}

func TestEventsPreserveArrivalOrder(t *testing.T) {
	captured := &captureBroadcaster{}
	r := newTestRelay(t, Config{}, Deps{Broadcaster: captured})
	sender := newTestSender(t)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if !r.Receive(ctx, sender.wire(t, id)) {
			t.Fatalf("event %s was not accepted", id)
		}
	}
	if got := r.Buffered(); got != 3 {
		t.Fatalf("expected 3 buffered events, got %d", got)
	}

	r.tick(ctx, time.Now())
	report := decodeBatch(t, captured.batches[0])
	if len(report.DeltaEvents) != 3 {
		t.Fatalf("expected 3 events in batch, got %d", len(report.DeltaEvents))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		action, err := proto.DecodeAction(report.DeltaEvents[i].Payload)
		if err != nil {
			t.Fatalf("decode event %d: %v", i, err)
		}
		if action.ID != want {
			t.Fatalf("event %d out of order: got %s, want %s", i, action.ID, want)
		}
	}
	if got := r.Buffered(); got != 0 {
		t.Fatalf("drain left %d events behind", got)
	}
}

func TestSkippedTickRetainsEventsAndTime(t *testing.T) {
	captured := &captureBroadcaster{}
	r := newTestRelay(t, Config{}, Deps{Broadcaster: captured, Signer: &gate.Signer{}})
	sender := newTestSender(t)
	ctx := context.Background()
	base := time.Now()

	r.mu.Lock()
	r.lastTick = base
	r.mu.Unlock()

	if !r.Receive(ctx, sender.wire(t, "e1")) {
		t.Fatal("event was not accepted")
	}
	if r.tick(ctx, base.Add(16*time.Millisecond)) {
		t.Fatal("tick succeeded without key material")
	}
	if len(captured.batches) != 0 {
		t.Fatal("unsigned batch was emitted")
	}
	if got := r.Frame(); got != 0 {
		t.Fatalf("skipped tick advanced frame to %d", got)
	}
	r.mu.Lock()
	retained := len(r.pending)
	r.mu.Unlock()
	if retained != 1 {
		t.Fatalf("expected 1 retained event, got %d", retained)
	}

	// Key material shows up; the next tick carries the retained event and
	// the full elapsed interval.
	working := newTestSender(t).signer
	r.signer = working
	if !r.tick(ctx, base.Add(32*time.Millisecond)) {
		t.Fatal("tick failed with key material present")
	}
	report := decodeBatch(t, captured.batches[0])
	if report.Frame != 1 {
		t.Fatalf("expected frame 1 after recovery, got %d", report.Frame)
	}
	if got, want := report.DeltaTiming, uint64((32 * time.Millisecond).Nanoseconds()); got != want {
		t.Fatalf("expected deltaTiming %d covering the skipped tick, got %d", want, got)
	}
	if len(report.DeltaEvents) != 1 {
		t.Fatalf("expected retained event in batch, got %d events", len(report.DeltaEvents))
	}
	action, err := proto.DecodeAction(report.DeltaEvents[0].Payload)
	if err != nil {
		t.Fatalf("decode retained event: %v", err)
	}
	if action.ID != "e1" {
		t.Fatalf("expected retained event e1, got %s", action.ID)
	}
}

func TestSkipWarningsStepped(t *testing.T) {
	var warns int
	var published []logging.Event
	r := newTestRelay(t, Config{}, Deps{
		Signer: &gate.Signer{},
		Logger: telemetry.LoggerFunc(func(string, ...any) { warns++ }),
		Publisher: logging.PublisherFunc(func(_ context.Context, event logging.Event) {
			published = append(published, event)
		}),
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if r.tick(ctx, time.Now()) {
			t.Fatal("tick succeeded without key material")
		}
	}

	// Runs of 1, 2, 4 and 8 reach the log; every skip publishes an event.
	if warns != 4 {
		t.Fatalf("expected 4 stepped warnings, got %d", warns)
	}
	if len(published) != 10 {
		t.Fatalf("expected 10 skip events, got %d", len(published))
	}
	payload, ok := published[9].Payload.(relaylog.SkipPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", published[9].Payload)
	}
	if payload.Consecutive != 10 {
		t.Fatalf("expected a consecutive run of 10, got %d", payload.Consecutive)
	}
	if published[9].Type != relaylog.EventTickSkipped {
		t.Fatalf("unexpected event type %s", published[9].Type)
	}
}

func TestMalformedInputLeavesBufferUntouched(t *testing.T) {
	counters := &logging.Metrics{}
	r := newTestRelay(t, Config{}, Deps{Metrics: telemetry.WrapMetrics(counters)})
	sender := newTestSender(t)
	ctx := context.Background()

	if r.Receive(ctx, []byte("{not json")) {
		t.Fatal("accepted invalid json")
	}
	if r.Receive(ctx, []byte(`{"ver":1}`)) {
		t.Fatal("accepted wrapper with missing fields")
	}
	forged := sender.wire(t, "e1")
	tampered, err := proto.DecodeWrapper(forged)
	if err != nil {
		t.Fatalf("decode wrapper: %v", err)
	}
	tampered.Signature[0] ^= 0xff
	raw, err := proto.EncodeWrapper(tampered)
	if err != nil {
		t.Fatalf("encode wrapper: %v", err)
	}
	if r.Receive(ctx, raw) {
		t.Fatal("accepted wrapper with corrupted signature")
	}

	if got := r.Buffered(); got != 0 {
		t.Fatalf("rejected input reached the buffer: %d events", got)
	}
	snapshot := counters.Snapshot()
	if got := snapshot[intakeMalformedMetricKey]; got != 2 {
		t.Fatalf("expected 2 malformed rejections, got %d", got)
	}
	if got := snapshot[intakeRejectedMetricKey]; got != 1 {
		t.Fatalf("expected 1 signature rejection, got %d", got)
	}
}

func TestFloodingSenderThrottled(t *testing.T) {
	r := newTestRelay(t, Config{EventRate: 1, EventBurst: 2}, Deps{})
	flooder := newTestSender(t)
	patient := newTestSender(t)
	ctx := context.Background()

	accepted := 0
	for i := 0; i < 5; i++ {
		if r.Receive(ctx, flooder.wire(t, "spam")) {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("expected burst of 2 accepted, got %d", accepted)
	}

	// An independent sender has its own budget.
	if !r.Receive(ctx, patient.wire(t, "legit")) {
		t.Fatal("throttling one sender starved another")
	}
	if got := r.Buffered(); got != 3 {
		t.Fatalf("expected 3 buffered events, got %d", got)
	}
}

func TestRunEmitsOnTicker(t *testing.T) {
	batches := make(chan proto.SignedWrapper, 8)
	r := newTestRelay(t, Config{TickRate: 100}, Deps{
		Broadcaster: BroadcasterFunc(func(_ context.Context, batch proto.SignedWrapper) {
			select {
			case batches <- batch:
			default:
			}
		}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for want := uint64(1); want <= 2; want++ {
		select {
		case batch := <-batches:
			report := decodeBatch(t, batch)
			if report.Frame != want {
				t.Fatalf("expected frame %d, got %d", want, report.Frame)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no batch %d within deadline", want)
		}
	}
	cancel()
}

func TestConfigNormalization(t *testing.T) {
	cfg := Config{}.normalized()
	if cfg.TickRate != DefaultTickRate {
		t.Fatalf("expected tick rate %d, got %d", DefaultTickRate, cfg.TickRate)
	}
	if cfg.BufferCapacity != DefaultBufferCapacity {
		t.Fatalf("expected capacity %d, got %d", DefaultBufferCapacity, cfg.BufferCapacity)
	}
	if cfg.EventRate != DefaultEventRate {
		t.Fatalf("expected event rate %v, got %v", float64(DefaultEventRate), cfg.EventRate)
	}
	if cfg.EventBurst != DefaultEventBurst {
		t.Fatalf("expected burst %d, got %d", DefaultEventBurst, cfg.EventBurst)
	}

	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("expected error for missing signer")
	}
}
