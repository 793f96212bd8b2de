package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"skirmish/internal/audit"
	"skirmish/internal/config"
	"skirmish/internal/gate"
	"skirmish/internal/identity"
	"skirmish/internal/net/ws"
	"skirmish/internal/proto"
	"skirmish/internal/relay"
	"skirmish/internal/sim"
	"skirmish/internal/telemetry"
)

// relayHarness is a live relay reachable over a websocket test server.
type relayHarness struct {
	url     string
	keyPath string
}

func startRelayHarness(t *testing.T) *relayHarness {
	t.Helper()

	id, err := identity.Generate("relay")
	if err != nil {
		t.Fatalf("failed to generate relay identity: %v", err)
	}
	signer, err := gate.NewSigner(id.Private)
	if err != nil {
		t.Fatalf("failed to build signer: %v", err)
	}

	var rel *relay.Relay
	hub := ws.NewHub(func(ctx context.Context, data []byte) bool {
		return rel.Receive(ctx, data)
	}, ws.HubDeps{})
	rel, err = relay.New(relay.Config{TickRate: 120}, relay.Deps{
		Signer:      signer,
		Broadcaster: hub,
	})
	if err != nil {
		t.Fatalf("failed to build relay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rel.Run(ctx)
	}()

	server := httptest.NewServer(http.HandlerFunc(hub.Handle))
	t.Cleanup(func() {
		server.Close()
		hub.Close()
		cancel()
		<-done
	})

	pemBytes, err := identity.EncodePublicKeyPEM(id.Public)
	if err != nil {
		t.Fatalf("failed to encode relay key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "relay_public_key.pem")
	if err := os.WriteFile(keyPath, pemBytes, 0o644); err != nil {
		t.Fatalf("failed to write relay key: %v", err)
	}

	return &relayHarness{
		url:     strings.Replace(server.URL, "http", "ws", 1),
		keyPath: keyPath,
	}
}

func startTestPeer(t *testing.T, harness *relayHarness, name, auditPath string) *Peer {
	t.Helper()
	cfg := config.PeerConfig{
		RelayURL:     harness.url,
		Name:         name,
		KeysDir:      t.TempDir(),
		RelayKeyPath: harness.keyPath,
		AuditPath:    auditPath,
		Logging:      config.LoggingConfig{Sinks: []string{"discard"}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := StartPeer(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("failed to start peer %s: %v", name, err)
	}
	t.Cleanup(func() { peer.Close() })
	return peer
}

func waitForState(t *testing.T, peer *Peer, describe string, ok func(sim.State) bool) sim.State {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapshot := peer.Snapshot()
		if ok(snapshot) {
			return snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; last snapshot %+v", describe, peer.Snapshot())
	return sim.State{}
}

func TestPeerSoloMatchOverRelay(t *testing.T) {
	harness := startRelayHarness(t)
	auditPath := filepath.Join(t.TempDir(), "trail.db")
	peer := startTestPeer(t, harness, "alice", auditPath)

	if err := peer.Join(); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}
	waitForState(t, peer, "join to apply", func(s sim.State) bool {
		_, ok := s.Players[peer.ID()]
		return ok
	})

	if err := peer.Start(); err != nil {
		t.Fatalf("failed to send start: %v", err)
	}
	final := waitForState(t, peer, "solo match to end", func(s sim.State) bool {
		return s.Phase == sim.PhaseGameOver
	})
	if final.WinnerID != peer.ID() {
		t.Fatalf("expected solo starter to win, got winner %q", final.WinnerID)
	}

	if err := peer.Close(); err != nil {
		t.Fatalf("failed to close peer: %v", err)
	}

	store, err := audit.Open(auditPath)
	if err != nil {
		t.Fatalf("failed to reopen audit trail: %v", err)
	}
	defer store.Close()
	records, err := store.Records(context.Background())
	if err != nil {
		t.Fatalf("failed to read audit trail: %v", err)
	}
	if len(records) == 0 {
		t.Fatalf("expected audit records after a played match")
	}
}

func TestTwoPeersConvergeOnSharedState(t *testing.T) {
	harness := startRelayHarness(t)
	alice := startTestPeer(t, harness, "alice", "")
	bob := startTestPeer(t, harness, "bob", "")

	if err := alice.Join(); err != nil {
		t.Fatalf("failed to send alice join: %v", err)
	}
	if err := bob.Join(); err != nil {
		t.Fatalf("failed to send bob join: %v", err)
	}
	for _, peer := range []*Peer{alice, bob} {
		waitForState(t, peer, "both joins to apply", func(s sim.State) bool {
			return len(s.Players) == 2
		})
	}

	if err := alice.Start(); err != nil {
		t.Fatalf("failed to send start: %v", err)
	}
	for _, peer := range []*Peer{alice, bob} {
		waitForState(t, peer, "match to activate", func(s sim.State) bool {
			return s.Phase == sim.PhaseActive
		})
	}

	if err := alice.Move(proto.DirRight); err != nil {
		t.Fatalf("failed to send move: %v", err)
	}
	observed := waitForState(t, bob, "alice's intent to replicate", func(s sim.State) bool {
		player, ok := s.Players[alice.ID()]
		return ok && player.Intent.X > 0
	})
	if observed.Players[alice.ID()].Intent.Y != 0 {
		t.Fatalf("expected a pure horizontal intent, got %+v", observed.Players[alice.ID()].Intent)
	}
}

func TestStartPeerFailsWithoutRelayKey(t *testing.T) {
	cfg := config.PeerConfig{
		RelayURL:     "ws://localhost:1/ws",
		Name:         "alice",
		KeysDir:      t.TempDir(),
		RelayKeyPath: filepath.Join(t.TempDir(), "missing.pem"),
		Logging:      config.LoggingConfig{Sinks: []string{"discard"}},
	}
	if _, err := StartPeer(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected start to fail without a pinned relay key")
	}
}

func TestLoadOrGenerateIdentityPersists(t *testing.T) {
	dir := t.TempDir()
	logger := telemetry.LoggerFunc(func(string, ...any) {})

	first, err := loadOrGenerateIdentity(dir, "alice", logger)
	if err != nil {
		t.Fatalf("failed to generate identity: %v", err)
	}
	second, err := loadOrGenerateIdentity(dir, "alice", logger)
	if err != nil {
		t.Fatalf("failed to reload identity: %v", err)
	}
	if identity.Fingerprint(first.Public) != identity.Fingerprint(second.Public) {
		t.Fatalf("expected a stable identity across loads, got %s then %s",
			identity.Fingerprint(first.Public), identity.Fingerprint(second.Public))
	}
}
