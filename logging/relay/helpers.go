package relay

import (
	"context"

	"skirmish/logging"
)

const (
	// EventTickSkipped is emitted when a tick cannot produce a signed batch.
	EventTickSkipped logging.EventType = "relay.tick_skipped"
)

// SkipPayload records why a tick was skipped and how long the outage has run.
type SkipPayload struct {
	Reason      string `json:"reason"`
	Consecutive uint64 `json:"consecutive"`
}

// TickSkipped publishes a warning for a tick that emitted no batch. The frame
// is the last one successfully emitted; it does not advance on a skip.
func TickSkipped(ctx context.Context, pub logging.Publisher, frame uint64, payload SkipPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickSkipped,
		Frame:    frame,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryRelay,
		Payload:  payload,
	})
}
