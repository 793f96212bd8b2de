package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"skirmish/internal/gate"
)

// World geometry and balance constants, in world units unless noted. The
// world is toroidal: positions wrap at both boundaries.
const (
	WorldWidth  = 3000
	WorldHeight = 3000

	PlayerSize      = 40
	PlayerSpeed     = 4500
	ProjectileSpeed = 1000

	// ProjectileSize only affects rendering; collision treats projectiles
	// as points sweeping a path.
	ProjectileSize = 5

	MaxHealth = 10

	// ProjectileLifetime is measured in simulated time, not wall time.
	ProjectileLifetime = time.Second
)

// Fixed-point equivalents used by the integration and collision code.
const (
	worldWidthFixed  = int64(WorldWidth * CoordScale)
	worldHeightFixed = int64(WorldHeight * CoordScale)
	playerSizeFixed  = int64(PlayerSize * CoordScale)
)

// Phase is the match lifecycle. Transitions are monotonic; GameOver is
// terminal.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseActive   Phase = "active"
	PhaseGameOver Phase = "gameOver"
)

// Color is a player's display color. Channels never drop below 50 so every
// player stays visible on the dark background.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// PlayerState is the replicated per-player record. Only batch application
// mutates it.
type PlayerState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position Vec    `json:"position"`
	Intent   Vec    `json:"intent"`
	Color    Color  `json:"color"`
	Health   int    `json:"health"`
	LastShot uint64 `json:"lastShot"`
	Fired    bool   `json:"fired"`
	Alive    bool   `json:"alive"`
}

// Projectile is a live shot. Destroyed on its first hit or when its simulated
// lifetime runs out.
type Projectile struct {
	ID        uint64 `json:"id"`
	OwnerID   string `json:"ownerId"`
	Position  Vec    `json:"position"`
	Velocity  Vec    `json:"velocity"`
	SpawnedAt uint64 `json:"spawnedAt"`
}

// State is the full replicated game state of one peer. Frame and Clock come
// from applied batch reports; Clock is cumulative deltaTiming in nanoseconds
// and is the only notion of time the simulation knows.
type State struct {
	Phase       Phase                   `json:"phase"`
	Frame       uint64                  `json:"frame"`
	Clock       uint64                  `json:"clock"`
	Players     map[string]*PlayerState `json:"players"`
	Projectiles []*Projectile           `json:"projectiles"`
	WinnerID    string                  `json:"winnerId,omitempty"`
}

func newState() State {
	return State{
		Phase:   PhaseLobby,
		Players: make(map[string]*PlayerState),
	}
}

// clone returns a deep copy safe to hand to readers.
func (s State) clone() State {
	out := s
	out.Players = make(map[string]*PlayerState, len(s.Players))
	for id, player := range s.Players {
		copied := *player
		out.Players[id] = &copied
	}
	out.Projectiles = make([]*Projectile, len(s.Projectiles))
	for i, projectile := range s.Projectiles {
		copied := *projectile
		out.Projectiles[i] = &copied
	}
	return out
}

// sortedPlayerIDs returns player ids in ascending order for deterministic
// iteration.
func (s State) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// aliveCount returns how many joined players still live.
func (s State) aliveCount() int {
	count := 0
	for _, player := range s.Players {
		if player.Alive {
			count++
		}
	}
	return count
}

// Checksum returns a hex digest of the canonical serialization of the state.
// Two peers in lockstep produce identical checksums after every batch.
func (s State) Checksum() (string, error) {
	data, err := gate.Canonical(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// wrap maps a position onto the toroidal world.
func wrap(v Vec) Vec {
	return Vec{
		X: floorMod(v.X, worldWidthFixed),
		Y: floorMod(v.Y, worldHeightFixed),
	}
}

// hitbox returns a player's collision rectangle. Positions anchor the top
// left corner.
func hitbox(p *PlayerState) Rect {
	return NewRect(p.Position.X, p.Position.Y, playerSizeFixed, playerSizeFixed)
}

// center returns the middle of a player's hitbox, where shots originate.
func center(p *PlayerState) Vec {
	return Vec{
		X: p.Position.X + playerSizeFixed/2,
		Y: p.Position.Y + playerSizeFixed/2,
	}
}
