package match

import (
	"context"

	"skirmish/logging"
)

const (
	// EventPlayerJoined is emitted when a join event creates a player.
	EventPlayerJoined logging.EventType = "match.player_joined"
	// EventPhaseChanged is emitted on every lifecycle transition.
	EventPhaseChanged logging.EventType = "match.phase_changed"
	// EventPlayerDefeated is emitted when a player's health reaches zero.
	EventPlayerDefeated logging.EventType = "match.player_defeated"
	// EventWinnerDeclared is emitted once when the match ends.
	EventWinnerDeclared logging.EventType = "match.winner_declared"
)

// JoinPayload captures the seeded attributes assigned to a new player.
type JoinPayload struct {
	Name   string `json:"name"`
	SpawnX int64  `json:"spawnX"`
	SpawnY int64  `json:"spawnY"`
	Color  string `json:"color"`
}

// PhasePayload captures a lifecycle transition.
type PhasePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DefeatPayload captures who fired the eliminating projectile.
type DefeatPayload struct {
	By string `json:"by,omitempty"`
}

// WinnerPayload captures the match outcome. Draw is set when nobody survived.
type WinnerPayload struct {
	WinnerID string `json:"winnerId,omitempty"`
	Draw     bool   `json:"draw,omitempty"`
}

// PlayerJoined publishes an info event for a newly created player.
func PlayerJoined(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload JoinPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerJoined,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
	})
}

// PhaseChanged publishes an info event for a lifecycle transition.
func PhaseChanged(ctx context.Context, pub logging.Publisher, frame uint64, payload PhasePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPhaseChanged,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindMatch},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
	})
}

// PlayerDefeated publishes an info event when a player is eliminated.
func PlayerDefeated(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload DefeatPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerDefeated,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
	})
}

// WinnerDeclared publishes an info event for the final outcome.
func WinnerDeclared(ctx context.Context, pub logging.Publisher, frame uint64, payload WinnerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWinnerDeclared,
		Frame:    frame,
		Actor:    logging.EntityRef{Kind: logging.EntityKindMatch},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
	})
}
