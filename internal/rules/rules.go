// Package rules enforces the per-event legality checks that run after an
// event's signature has verified but before it mutates simulation state.
// Every check reads simulated time derived from accumulated batch deltas,
// never the wall clock, so all peers reach identical verdicts.
package rules

import (
	"time"

	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
)

// DefaultCooldown is the minimum simulated time between accepted shots.
const DefaultCooldown = 200 * time.Millisecond

// Rejection reasons carried into the audit trail. Senders never see them.
const (
	ReasonShootCooldown    = "shoot_cooldown"
	ReasonUnknownDirection = "unknown_direction"
)

const (
	metricShootRejected = "rules_shoot_rejected"
	metricMoveRejected  = "rules_move_rejected"
)

// Config tunes the enforcer. Zero values fall back to defaults.
type Config struct {
	Cooldown time.Duration
}

func (c Config) normalized() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// Verdict is the outcome of a single check.
type Verdict struct {
	OK     bool
	Reason string
}

func allow() Verdict {
	return Verdict{OK: true}
}

func deny(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Enforcer applies the checks. Safe for concurrent use; it holds no
// per-player state, callers pass the relevant slice of simulation state in.
type Enforcer struct {
	cooldownNanos uint64
	metrics       telemetry.Metrics
}

// NewEnforcer builds an Enforcer. metrics may be nil.
func NewEnforcer(cfg Config, metrics telemetry.Metrics) *Enforcer {
	cfg = cfg.normalized()
	return &Enforcer{
		cooldownNanos: uint64(cfg.Cooldown.Nanoseconds()),
		metrics:       metrics,
	}
}

// CooldownNanos returns the configured cooldown in nanoseconds.
func (e *Enforcer) CooldownNanos() uint64 {
	return e.cooldownNanos
}

// CheckShoot reports whether a shot at simulated time now is legal. lastShot
// is the simulated time of the shooter's previous accepted shot and fired
// whether one exists; a player who has never fired may always shoot. A shot
// exactly at the cooldown boundary is legal.
func (e *Enforcer) CheckShoot(now, lastShot uint64, fired bool) Verdict {
	if !fired {
		return allow()
	}
	if now < lastShot || now-lastShot < e.cooldownNanos {
		e.count(metricShootRejected)
		return deny(ReasonShootCooldown)
	}
	return allow()
}

// CheckMove reports whether dir is one of the recognized movement tokens.
func (e *Enforcer) CheckMove(dir string) Verdict {
	switch dir {
	case proto.DirUp, proto.DirLeft, proto.DirDown, proto.DirRight, proto.DirStop:
		return allow()
	default:
		e.count(metricMoveRejected)
		return deny(ReasonUnknownDirection)
	}
}

func (e *Enforcer) count(key string) {
	if e.metrics != nil {
		e.metrics.Add(key, 1)
	}
}
