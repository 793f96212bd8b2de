package relay

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"

	"skirmish/internal/gate"
	"skirmish/internal/identity"
	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
	"skirmish/logging"
	"skirmish/logging/network"
	"skirmish/logging/security"
)

const (
	intakeAcceptedMetricKey  = "relay_intake_accepted_total"
	intakeMalformedMetricKey = "relay_intake_malformed_total"
	intakeRejectedMetricKey  = "relay_intake_rejected_total"
	intakeThrottledMetricKey = "relay_intake_throttled_total"

	limiterExpiry  = 5 * time.Minute
	limiterCleanup = 10 * time.Minute
)

// Intake is the relay's ingestion boundary: raw transport bytes in, verified
// events staged in the buffer out. Every rejection is silent toward the
// sender; the only traces are a local log event and a counter.
type Intake struct {
	buffer    *EventBuffer
	verifier  *gate.Verifier
	limiters  *gocache.Cache
	eventRate rate.Limit
	burst     int
	publisher logging.Publisher
	metrics   telemetry.Metrics
	frame     func() uint64
}

func newIntake(buffer *EventBuffer, cfg Config, deps Deps, frame func() uint64) *Intake {
	verifier := deps.Verifier
	if verifier == nil {
		verifier = gate.NewVerifier(deps.Metrics)
	}
	return &Intake{
		buffer:    buffer,
		verifier:  verifier,
		limiters:  gocache.New(limiterExpiry, limiterCleanup),
		eventRate: rate.Limit(cfg.EventRate),
		burst:     cfg.EventBurst,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		frame:     frame,
	}
}

// Receive admits one raw transport message. It reports acceptance to the
// local caller only; senders learn nothing either way.
func (in *Intake) Receive(ctx context.Context, data []byte) bool {
	if err := fastjson.ValidateBytes(data); err != nil {
		in.count(intakeMalformedMetricKey)
		security.WrapperMalformed(ctx, in.publisher, in.frame(), relayRef(),
			security.RejectPayload{Reason: "invalid_json"})
		return false
	}
	wrapper, err := proto.DecodeWrapper(data)
	if err != nil {
		in.count(intakeMalformedMetricKey)
		security.WrapperMalformed(ctx, in.publisher, in.frame(), relayRef(),
			security.RejectPayload{Reason: "bad_wrapper"})
		return false
	}
	sender := wrapper.PublicKey
	if !in.verifier.Verify(wrapper) {
		in.count(intakeRejectedMetricKey)
		security.SignatureRejected(ctx, in.publisher, in.frame(), senderRef(sender),
			security.RejectPayload{Reason: "signature"})
		return false
	}
	if !in.limiterFor(sender).Allow() {
		in.count(intakeThrottledMetricKey)
		network.RateLimited(ctx, in.publisher, in.frame(), senderRef(sender))
		return false
	}
	if err := in.buffer.Append(ctx, wrapper); err != nil {
		// Shutdown or caller cancellation; nothing to tell anyone.
		in.count(intakeRejectedMetricKey)
		return false
	}
	in.count(intakeAcceptedMetricKey)
	return true
}

// limiterFor returns the per-sender limiter, keyed by the PEM text of the
// sender's verified public key. The refresh on hit keeps active senders from
// aging out mid-session.
func (in *Intake) limiterFor(sender string) *rate.Limiter {
	if cached, ok := in.limiters.Get(sender); ok {
		if limiter, ok := cached.(*rate.Limiter); ok {
			in.limiters.SetDefault(sender, limiter)
			return limiter
		}
	}
	limiter := rate.NewLimiter(in.eventRate, in.burst)
	in.limiters.SetDefault(sender, limiter)
	return limiter
}

func (in *Intake) count(key string) {
	if in.metrics != nil {
		in.metrics.Add(key, 1)
	}
}

func senderRef(publicKeyPEM string) logging.EntityRef {
	id := "unknown"
	if pub, err := identity.ParsePublicKeyPEM([]byte(publicKeyPEM)); err == nil {
		id = identity.Fingerprint(pub)
	}
	return logging.EntityRef{ID: id, Kind: logging.EntityKindPeer}
}

func relayRef() logging.EntityRef {
	return logging.EntityRef{Kind: logging.EntityKindRelay}
}
