package security

import (
	"context"

	"skirmish/logging"
)

const (
	// EventWrapperMalformed is emitted when bytes fail to decode into a signed wrapper.
	EventWrapperMalformed logging.EventType = "security.wrapper_malformed"
	// EventSignatureRejected is emitted when an inner event signature fails verification.
	EventSignatureRejected logging.EventType = "security.signature_rejected"
	// EventBatchRejected is emitted when a batch report's outer signature fails verification.
	EventBatchRejected logging.EventType = "security.batch_rejected"
	// EventAntiCheatRejected is emitted when an authentic event violates a gameplay rule.
	EventAntiCheatRejected logging.EventType = "security.anticheat_rejected"
)

// RejectPayload captures why an inbound payload was discarded.
type RejectPayload struct {
	Reason string `json:"reason"`
	Sender string `json:"sender,omitempty"`
}

// WrapperMalformed publishes a debug event for bytes that never became a wrapper.
func WrapperMalformed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWrapperMalformed,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySecurity,
		Payload:  payload,
	})
}

// SignatureRejected publishes a debug event for a failed inner verification.
func SignatureRejected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSignatureRejected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySecurity,
		Payload:  payload,
	})
}

// BatchRejected publishes a debug event for a failed outer batch verification.
func BatchRejected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBatchRejected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySecurity,
		Payload:  payload,
	})
}

// AntiCheatRejected publishes a debug event for a rule violation. The event is
// dropped without feedback to the sender; this is the only local trace.
func AntiCheatRejected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload RejectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAntiCheatRejected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySecurity,
		Payload:  payload,
	})
}
