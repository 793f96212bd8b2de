// Package sim replays signed batch reports into local game state. Every peer
// runs one Engine; because batches arrive identically ordered and identically
// timed, and all state arithmetic is reproducible, every Engine reaches the
// same state without peers ever exchanging state directly.
package sim

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"skirmish/internal/gate"
	"skirmish/internal/identity"
	"skirmish/internal/proto"
	"skirmish/internal/rules"
	"skirmish/internal/telemetry"
	"skirmish/logging"
	"skirmish/logging/match"
	"skirmish/logging/network"
	"skirmish/logging/security"
)

// ErrBatchRejected reports that a purported batch report was discarded before
// touching state. The sender never learns why.
var ErrBatchRejected = errors.New("sim: batch rejected")

const (
	defaultMaxDelta = 10 * time.Second

	metricBatchesApplied  = "sim_batches_applied"
	metricBatchesRejected = "sim_batches_rejected"
	metricEventsApplied   = "sim_events_applied"
	metricEventsRejected  = "sim_events_rejected"
)

// BatchHook observes every applied batch after its state is final. Hooks run
// inside the application critical section; keep them cheap.
type BatchHook func(frame, clock uint64, events int, checksum string)

// Config tunes the engine.
type Config struct {
	// RelayKey pins the only identity whose batch reports are accepted.
	RelayKey ed25519.PublicKey
	// MaxDelta caps a single batch's integration window, protecting the
	// integer arithmetic from absurd deltas. Zero selects the default.
	MaxDelta time.Duration
	// Rules configures the anti-cheat enforcer when none is injected.
	Rules rules.Config
}

func (c Config) normalized() Config {
	if c.MaxDelta <= 0 {
		c.MaxDelta = defaultMaxDelta
	}
	return c
}

// Deps bundles runtime dependencies. Zero fields fall back to defaults.
type Deps struct {
	Verifier  *gate.Verifier
	Enforcer  *rules.Enforcer
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Hooks     []BatchHook
}

// Engine applies batch reports to replicated game state.
type Engine struct {
	mu    sync.RWMutex
	state State

	relayKey ed25519.PublicKey
	maxDelta uint64

	verifier  *gate.Verifier
	enforcer  *rules.Enforcer
	publisher logging.Publisher
	metrics   telemetry.Metrics
	hooks     []BatchHook

	nextProjectileID uint64
	fingerprints     map[string]string
	applied          uint64
}

// New constructs an Engine pinned to the given relay key.
func New(cfg Config, deps Deps) (*Engine, error) {
	if len(cfg.RelayKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("sim: relay public key must be %d bytes, got %d", ed25519.PublicKeySize, len(cfg.RelayKey))
	}
	cfg = cfg.normalized()

	verifier := deps.Verifier
	if verifier == nil {
		verifier = gate.NewVerifier(deps.Metrics)
	}
	enforcer := deps.Enforcer
	if enforcer == nil {
		enforcer = rules.NewEnforcer(cfg.Rules, deps.Metrics)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	return &Engine{
		state:        newState(),
		relayKey:     cfg.RelayKey,
		maxDelta:     uint64(cfg.MaxDelta.Nanoseconds()),
		verifier:     verifier,
		enforcer:     enforcer,
		publisher:    publisher,
		metrics:      deps.Metrics,
		hooks:        deps.Hooks,
		fingerprints: make(map[string]string),
	}, nil
}

// ApplyBatch verifies and applies one purported batch report. The whole batch
// applies atomically with respect to Snapshot readers: integration first,
// then event application in report order, then the win check. A batch that
// fails the outer verification or decode leaves state untouched.
func (e *Engine) ApplyBatch(ctx context.Context, wrapper proto.SignedWrapper) error {
	if !e.verifier.VerifyFrom(e.relayKey, wrapper) {
		e.count(metricBatchesRejected)
		security.BatchRejected(ctx, e.publisher, e.Frame(), relayRef(), security.RejectPayload{Reason: "signature"})
		return ErrBatchRejected
	}
	report, err := proto.DecodeReport(wrapper.Payload)
	if err != nil {
		e.count(metricBatchesRejected)
		security.BatchRejected(ctx, e.publisher, e.Frame(), relayRef(), security.RejectPayload{Reason: "malformed"})
		return ErrBatchRejected
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied > 0 && report.Frame != e.state.Frame+1 {
		network.FrameGap(ctx, e.publisher, report.Frame, relayRef(), network.GapPayload{
			Previous: e.state.Frame,
			Received: report.Frame,
		})
	}

	dt := report.DeltaTiming
	if dt > e.maxDelta {
		dt = e.maxDelta
	}
	e.state.Frame = report.Frame
	e.state.Clock += dt

	if e.state.Phase == PhaseActive {
		e.integrate(ctx, dt)
	}
	for _, inner := range report.DeltaEvents {
		e.applyEvent(ctx, inner)
	}
	if e.state.Phase == PhaseActive {
		e.checkWin(ctx)
	}

	e.applied++
	e.count(metricBatchesApplied)

	if len(e.hooks) > 0 {
		checksum, sumErr := e.state.Checksum()
		if sumErr != nil {
			checksum = ""
		}
		for _, hook := range e.hooks {
			hook(e.state.Frame, e.state.Clock, len(report.DeltaEvents), checksum)
		}
	}
	return nil
}

// integrate advances motion by dt nanoseconds and resolves collisions.
// Projectiles are visited in spawn order (ascending id) and candidate victims
// in ascending player id, which fixes the outcome of simultaneous hits.
func (e *Engine) integrate(ctx context.Context, dt uint64) {
	for _, id := range e.state.sortedPlayerIDs() {
		player := e.state.Players[id]
		if !player.Alive {
			continue
		}
		if player.Intent == (Vec{}) {
			continue
		}
		player.Position = wrap(Advance(player.Position, player.Intent, dt))
	}

	lifetime := uint64(ProjectileLifetime.Nanoseconds())
	damage := make(map[string]int)
	lastHitBy := make(map[string]string)

	survivors := make([]*Projectile, 0, len(e.state.Projectiles))
	for _, projectile := range e.state.Projectiles {
		if e.state.Clock-projectile.SpawnedAt > lifetime {
			continue
		}
		path := Segment{
			A: projectile.Position,
			B: Advance(projectile.Position, projectile.Velocity, dt),
		}
		projectile.Position = wrap(path.B)

		hit := false
		for _, id := range e.state.sortedPlayerIDs() {
			target := e.state.Players[id]
			if !target.Alive || id == projectile.OwnerID {
				continue
			}
			if pathHits(path, hitbox(target)) {
				damage[id]++
				lastHitBy[id] = projectile.OwnerID
				hit = true
				break
			}
		}
		if !hit {
			survivors = append(survivors, projectile)
		}
	}
	e.state.Projectiles = survivors

	for _, id := range e.state.sortedPlayerIDs() {
		hits := damage[id]
		if hits == 0 {
			continue
		}
		target := e.state.Players[id]
		target.Health -= hits
		if target.Health < 0 {
			target.Health = 0
		}
		if target.Health == 0 && target.Alive {
			target.Alive = false
			target.Intent = Vec{}
			match.PlayerDefeated(ctx, e.publisher, e.state.Frame, playerRef(id), match.DefeatPayload{By: lastHitBy[id]})
		}
	}
}

// applyEvent re-verifies and applies a single inner event. Every failure is
// silent toward the sender; the log stream is the only trace.
func (e *Engine) applyEvent(ctx context.Context, wrapper proto.SignedWrapper) {
	if !e.verifier.Verify(wrapper) {
		e.count(metricEventsRejected)
		security.SignatureRejected(ctx, e.publisher, e.state.Frame, logging.EntityRef{}, security.RejectPayload{Reason: "signature"})
		return
	}
	sender, err := e.senderID(wrapper.PublicKey)
	if err != nil {
		e.count(metricEventsRejected)
		security.WrapperMalformed(ctx, e.publisher, e.state.Frame, logging.EntityRef{}, security.RejectPayload{Reason: "public_key"})
		return
	}
	action, err := proto.DecodeAction(wrapper.Payload)
	if err != nil {
		e.count(metricEventsRejected)
		security.WrapperMalformed(ctx, e.publisher, e.state.Frame, playerRef(sender), security.RejectPayload{Reason: "payload", Sender: sender})
		return
	}

	switch action.Kind {
	case proto.ActionStart:
		e.applyStart(ctx)
	case proto.ActionJoin:
		e.applyJoin(ctx, sender, action.Join.Name)
	case proto.ActionMove:
		e.applyMove(ctx, sender, action.Move.Dir)
	case proto.ActionShoot:
		e.applyShoot(ctx, sender, action.Shoot.Angle)
	}
	e.count(metricEventsApplied)
}

func (e *Engine) applyStart(ctx context.Context) {
	if e.state.Phase != PhaseLobby || len(e.state.Players) == 0 {
		return
	}
	e.state.Phase = PhaseActive
	match.PhaseChanged(ctx, e.publisher, e.state.Frame, match.PhasePayload{
		From: string(PhaseLobby),
		To:   string(PhaseActive),
	})
}

func (e *Engine) applyJoin(ctx context.Context, id, name string) {
	if e.state.Phase == PhaseGameOver {
		return
	}
	if _, exists := e.state.Players[id]; exists {
		return
	}
	attrs := SeededAttributes(id)
	e.state.Players[id] = &PlayerState{
		ID:       id,
		Name:     name,
		Position: attrs.Position,
		Color:    attrs.Color,
		Health:   MaxHealth,
		Alive:    true,
	}
	match.PlayerJoined(ctx, e.publisher, e.state.Frame, playerRef(id), match.JoinPayload{
		Name:   name,
		SpawnX: attrs.Position.X,
		SpawnY: attrs.Position.Y,
		Color:  colorHex(attrs.Color),
	})
}

func (e *Engine) applyMove(ctx context.Context, id, dir string) {
	player, ok := e.alivePlayer(id)
	if !ok {
		return
	}
	verdict := e.enforcer.CheckMove(dir)
	if !verdict.OK {
		security.AntiCheatRejected(ctx, e.publisher, e.state.Frame, playerRef(id), security.RejectPayload{
			Reason: verdict.Reason,
			Sender: id,
		})
		return
	}
	player.Intent = intentFor(dir)
}

func (e *Engine) applyShoot(ctx context.Context, id string, angle float64) {
	player, ok := e.alivePlayer(id)
	if !ok {
		return
	}
	verdict := e.enforcer.CheckShoot(e.state.Clock, player.LastShot, player.Fired)
	if !verdict.OK {
		security.AntiCheatRejected(ctx, e.publisher, e.state.Frame, playerRef(id), security.RejectPayload{
			Reason: verdict.Reason,
			Sender: id,
		})
		return
	}
	player.LastShot = e.state.Clock
	player.Fired = true

	// Angle is the one float input; quantize before it touches state.
	velocity := Vec{
		X: QuantizeVelocity(math.Cos(angle) * ProjectileSpeed),
		Y: QuantizeVelocity(math.Sin(angle) * ProjectileSpeed),
	}
	e.nextProjectileID++
	e.state.Projectiles = append(e.state.Projectiles, &Projectile{
		ID:        e.nextProjectileID,
		OwnerID:   id,
		Position:  center(player),
		Velocity:  velocity,
		SpawnedAt: e.state.Clock,
	})
}

// checkWin ends the match when at most one joined player remains alive. With
// one survivor that player wins; with none the match is a draw.
func (e *Engine) checkWin(ctx context.Context) {
	if len(e.state.Players) == 0 {
		return
	}
	if e.state.aliveCount() > 1 {
		return
	}
	winner := ""
	for _, id := range e.state.sortedPlayerIDs() {
		if e.state.Players[id].Alive {
			winner = id
			break
		}
	}
	e.state.Phase = PhaseGameOver
	e.state.WinnerID = winner
	match.PhaseChanged(ctx, e.publisher, e.state.Frame, match.PhasePayload{
		From: string(PhaseActive),
		To:   string(PhaseGameOver),
	})
	match.WinnerDeclared(ctx, e.publisher, e.state.Frame, match.WinnerPayload{
		WinnerID: winner,
		Draw:     winner == "",
	})
}

func (e *Engine) alivePlayer(id string) (*PlayerState, bool) {
	if e.state.Phase != PhaseActive {
		return nil, false
	}
	player, ok := e.state.Players[id]
	if !ok || !player.Alive {
		return nil, false
	}
	return player, true
}

// senderID maps a wire public key to the short player id, memoizing the
// derivation. Caller holds the write lock.
func (e *Engine) senderID(pemText string) (string, error) {
	if id, ok := e.fingerprints[pemText]; ok {
		return id, nil
	}
	pub, err := identity.ParsePublicKeyPEM([]byte(pemText))
	if err != nil {
		return "", err
	}
	id := identity.Fingerprint(pub)
	e.fingerprints[pemText] = id
	return id, nil
}

// Snapshot returns a deep copy of the current state. Safe to call while
// batches continue to apply.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.clone()
}

// Frame returns the frame of the last applied report.
func (e *Engine) Frame() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Frame
}

// Clock returns cumulative simulated time in nanoseconds.
func (e *Engine) Clock() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clock
}

// Checksum returns the canonical digest of the current state.
func (e *Engine) Checksum() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Checksum()
}

func (e *Engine) count(key string) {
	if e.metrics != nil {
		e.metrics.Add(key, 1)
	}
}

func intentFor(dir string) Vec {
	speed := QuantizeVelocity(PlayerSpeed)
	switch dir {
	case proto.DirUp:
		return Vec{Y: -speed}
	case proto.DirDown:
		return Vec{Y: speed}
	case proto.DirLeft:
		return Vec{X: -speed}
	case proto.DirRight:
		return Vec{X: speed}
	default:
		return Vec{}
	}
}

func colorHex(c Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func playerRef(id string) logging.EntityRef {
	return logging.EntityRef{ID: id, Kind: logging.EntityKindPlayer}
}

func relayRef() logging.EntityRef {
	return logging.EntityRef{Kind: logging.EntityKindRelay}
}
