package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"skirmish/internal/audit"
	"skirmish/internal/config"
	"skirmish/internal/gate"
	"skirmish/internal/identity"
	"skirmish/internal/net/ws"
	"skirmish/internal/proto"
	"skirmish/internal/sim"
	"skirmish/internal/telemetry"
	"skirmish/logging"
)

// Peer is a running peer process: a lockstep engine fed by the relay's batch
// stream plus signed intent senders. Obtain one from StartPeer and release it
// with Close.
type Peer struct {
	name   string
	id     *identity.Identity
	signer *gate.Signer
	engine *sim.Engine
	client *ws.Client
	store  *audit.Store

	logger       telemetry.Logger
	metrics      *logging.Metrics
	closeLogging func(context.Context) error

	cancel       context.CancelFunc
	applyDone    chan struct{}
	recorderDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// StartPeer connects to the relay and begins applying its batch stream. The
// caller owns the returned Peer and must Close it.
func StartPeer(ctx context.Context, cfg config.PeerConfig, logger telemetry.Logger) (*Peer, error) {
	cfg = cfg.Normalized()
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	router, metrics, closeLogging, err := newRouter(cfg.Logging.Router())
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Peer, error) {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := closeLogging(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
		return nil, err
	}

	id, err := loadOrGenerateIdentity(cfg.KeysDir, cfg.KeyName, logger)
	if err != nil {
		return fail(err)
	}
	signer, err := gate.NewSigner(id.Private)
	if err != nil {
		return fail(fmt.Errorf("app: build signer: %w", err))
	}

	relayKey, err := identity.LoadPublicKey(cfg.RelayKeyPath)
	if err != nil {
		return fail(fmt.Errorf("app: pin relay key: %w", err))
	}

	wrapped := telemetry.WrapMetrics(metrics)
	deps := sim.Deps{Publisher: router, Metrics: wrapped}

	var store *audit.Store
	var recorder *audit.Recorder
	if cfg.AuditPath != "" {
		store, err = audit.Open(cfg.AuditPath)
		if err != nil {
			return fail(fmt.Errorf("app: open audit trail: %w", err))
		}
		recorder = audit.NewRecorder(store, audit.DefaultQueueDepth, wrapped, logger)
		deps.Hooks = append(deps.Hooks, recorder.Hook())
	}

	engine, err := sim.New(sim.Config{RelayKey: relayKey}, deps)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return fail(fmt.Errorf("app: build engine: %w", err))
	}

	client, err := ws.Dial(ctx, cfg.RelayURL, logger, wrapped)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return fail(fmt.Errorf("app: dial relay: %w", err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		name:         cfg.Name,
		id:           id,
		signer:       signer,
		engine:       engine,
		client:       client,
		store:        store,
		logger:       logger,
		metrics:      metrics,
		closeLogging: closeLogging,
		cancel:       cancel,
		applyDone:    make(chan struct{}),
	}

	if recorder != nil {
		p.recorderDone = make(chan struct{})
		go func() {
			defer close(p.recorderDone)
			recorder.Run(runCtx)
		}()
	}
	go func() {
		defer close(p.applyDone)
		for wrapper := range client.Batches() {
			// Rejected batches are counted and published inside the engine.
			_ = engine.ApplyBatch(runCtx, wrapper)
		}
	}()

	logger.Printf("peer %s connected to %s", identity.Fingerprint(id.Public), cfg.RelayURL)
	return p, nil
}

// ID returns the peer's player identity, the fingerprint of its public key.
func (p *Peer) ID() string {
	return identity.Fingerprint(p.id.Public)
}

// Name returns the configured display name.
func (p *Peer) Name() string {
	return p.name
}

// Snapshot returns a copy of the current replicated state.
func (p *Peer) Snapshot() sim.State {
	return p.engine.Snapshot()
}

// Telemetry returns a copy of the process metric counters.
func (p *Peer) Telemetry() map[string]uint64 {
	return p.metrics.Snapshot()
}

// Join announces this peer to the match under its configured name.
func (p *Peer) Join() error {
	return p.send(proto.Action{
		Kind: proto.ActionJoin,
		Join: &proto.JoinAction{Name: p.name},
	})
}

// Start requests the lobby-to-active transition.
func (p *Peer) Start() error {
	return p.send(proto.Action{Kind: proto.ActionStart})
}

// Move updates this peer's movement intent; dir is one of the proto.Dir
// tokens.
func (p *Peer) Move(dir string) error {
	return p.send(proto.Action{
		Kind: proto.ActionMove,
		Move: &proto.MoveAction{Dir: dir},
	})
}

// Shoot fires a projectile at the given angle in radians.
func (p *Peer) Shoot(angle float64) error {
	return p.send(proto.Action{
		Kind:  proto.ActionShoot,
		Shoot: &proto.ShootAction{Angle: angle},
	})
}

func (p *Peer) send(action proto.Action) error {
	action.ID = uuid.NewString()
	payload, err := proto.EncodeAction(action)
	if err != nil {
		return fmt.Errorf("app: encode %s intent: %w", action.Kind, err)
	}
	wrapper, err := p.signer.Wrap(json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("app: sign %s intent: %w", action.Kind, err)
	}
	return p.client.Send(wrapper)
}

// Close disconnects, drains the apply loop, flushes the audit trail, and
// shuts logging down. Safe to call more than once.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		err := p.client.Close()
		<-p.applyDone
		p.cancel()
		if p.recorderDone != nil {
			<-p.recorderDone
		}
		if p.store != nil {
			if cerr := p.store.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := p.closeLogging(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
		p.closeErr = err
	})
	return p.closeErr
}
