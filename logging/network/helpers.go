package network

import (
	"context"

	"skirmish/logging"
)

const (
	// EventPeerConnected is emitted when a peer subscribes to the relay stream.
	EventPeerConnected logging.EventType = "network.peer_connected"
	// EventPeerDisconnected is emitted when a peer's connection is torn down.
	EventPeerDisconnected logging.EventType = "network.peer_disconnected"
	// EventFrameGap is emitted when a peer observes a jump in report frames.
	EventFrameGap logging.EventType = "network.frame_gap"
	// EventRateLimited is emitted when intake sheds events from a flooding sender.
	EventRateLimited logging.EventType = "network.rate_limited"
)

// GapPayload captures a discontinuity in the report frame sequence.
type GapPayload struct {
	Previous uint64 `json:"previous"`
	Received uint64 `json:"received"`
}

// PeerConnected publishes an info event when a subscriber attaches.
func PeerConnected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerConnected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// PeerDisconnected publishes an info event when a subscriber detaches.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerDisconnected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// FrameGap publishes a warning when the frame sequence skips ahead. Lockstep
// needs no recovery here, only visibility.
func FrameGap(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload GapPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameGap,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// RateLimited publishes a debug event when a sender exceeds the intake budget.
func RateLimited(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRateLimited,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
	})
}
