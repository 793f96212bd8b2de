// Package app wires configuration, logging, identity, and transport into
// runnable relay and peer processes. Core packages never import it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"sync"
	"time"

	"skirmish/internal/config"
	"skirmish/internal/gate"
	"skirmish/internal/identity"
	skirmishnet "skirmish/internal/net"
	"skirmish/internal/net/ws"
	"skirmish/internal/relay"
	"skirmish/internal/telemetry"
)

const shutdownGrace = 5 * time.Second

// RunRelay wires a relay process and serves until ctx is cancelled. It owns
// the full lifecycle: logging router, signing identity, event relay, the
// websocket hub, and the HTTP listener.
func RunRelay(ctx context.Context, cfg config.RelayConfig, logger telemetry.Logger) error {
	cfg = cfg.Normalized()
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	router, metrics, closeLogging, err := newRouter(cfg.Logging.Router())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := closeLogging(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	id, err := loadOrGenerateIdentity(cfg.KeysDir, cfg.KeyName, logger)
	if err != nil {
		return err
	}
	signer, err := gate.NewSigner(id.Private)
	if err != nil {
		return fmt.Errorf("app: build signer: %w", err)
	}
	logger.Printf("relay identity %s", identity.Fingerprint(id.Public))

	wrapped := telemetry.WrapMetrics(metrics)

	// The hub and the relay reference each other: inbound hub messages feed
	// the relay's intake, relay ticks broadcast through the hub. The hub is
	// built first against a late-bound relay pointer; nothing reaches the
	// intake before the HTTP server starts.
	var rel *relay.Relay
	hub := ws.NewHub(func(ctx context.Context, data []byte) bool {
		return rel.Receive(ctx, data)
	}, ws.HubDeps{
		Publisher: router,
		Metrics:   wrapped,
		Logger:    logger,
		Frame:     func() uint64 { return rel.Frame() },
	})

	rel, err = relay.New(relay.Config{
		TickRate:       cfg.TickRate,
		BufferCapacity: cfg.BufferCapacity,
		EventRate:      cfg.EventRate,
		EventBurst:     cfg.EventBurst,
	}, relay.Deps{
		Signer:      signer,
		Broadcaster: hub,
		Publisher:   router,
		Logger:      logger,
		Metrics:     wrapped,
	})
	if err != nil {
		return fmt.Errorf("app: build relay: %w", err)
	}

	handler := skirmishnet.NewHTTPHandler(skirmishnet.HTTPHandlerConfig{
		WSHandler:   hub.Handle,
		RelayKeyPEM: rel.PublicKeyPEM(),
		TickRate:    cfg.TickRate,
		Frame:       rel.Frame,
		Buffered:    rel.Buffered,
		Subscribers: hub.Subscribers,
		Telemetry: func() map[string]uint64 {
			snapshot := metrics.Snapshot()
			stats := router.Stats()
			snapshot["logging_events_total"] = stats.EventsTotal
			snapshot["logging_events_dropped_total"] = stats.DroppedTotal
			return snapshot
		},
		Logger: logger,
	})

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rel.Run(runCtx)
	}()

	srv := &nethttp.Server{Addr: cfg.Listen, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("relay listening on %s (tick rate %d)", cfg.Listen, cfg.TickRate)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
		hub.Close()
		cancelRun()
		wg.Wait()
		return nil
	case err := <-serveErr:
		hub.Close()
		cancelRun()
		wg.Wait()
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("app: relay server: %w", err)
		}
		return nil
	}
}
