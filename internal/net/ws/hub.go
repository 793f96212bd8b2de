// Package ws carries the transport between relay and peers: a hub that fans
// signed batches out to subscribers and forwards their signed action
// wrappers into the relay's intake, plus the peer-side client.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
	"skirmish/logging"
	"skirmish/logging/network"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 1 << 20
	sendBacklog  = 64

	subscribersMetricKey      = "ws_subscribers"
	broadcastBytesMetricKey   = "ws_broadcast_bytes"
	broadcastDroppedMetricKey = "ws_broadcast_dropped_total"
	inboundMalformedMetricKey = "ws_inbound_malformed_total"
)

// IntakeFunc admits one raw inbound message; the relay's intake pipeline
// provides the real implementation.
type IntakeFunc func(ctx context.Context, data []byte) bool

// HubDeps carries the hub's collaborators. Zero values are substituted with
// inert defaults.
type HubDeps struct {
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Logger    telemetry.Logger
	Frame     func() uint64
}

// Hub owns the relay side of the transport. Broadcast is best effort: a
// subscriber that cannot keep up is disconnected rather than allowed to
// stall the tick cadence, and lost batches are never retried.
type Hub struct {
	intake    IntakeFunc
	publisher logging.Publisher
	metrics   telemetry.Metrics
	logger    telemetry.Logger
	frame     func() uint64
	upgrader  websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewHub constructs a hub that forwards inbound messages to intake.
func NewHub(intake IntakeFunc, deps HubDeps) *Hub {
	if intake == nil {
		intake = func(context.Context, []byte) bool { return false }
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Frame == nil {
		deps.Frame = func() uint64 { return 0 }
	}
	return &Hub{
		intake:    intake,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		frame:     deps.Frame,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

type subscriber struct {
	remote string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Handle upgrades one HTTP request into a subscription and serves it until
// the connection drops.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[ws] upgrade failed for %s: %v", r.RemoteAddr, err)
		}
		return
	}
	conn.SetReadLimit(readLimit)

	sub := &subscriber{
		remote: conn.RemoteAddr().String(),
		conn:   conn,
		send:   make(chan []byte, sendBacklog),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.subscribers[sub] = struct{}{}
	h.storeSubscriberCountLocked()
	h.mu.Unlock()

	network.PeerConnected(r.Context(), h.publisher, h.frame(), peerRef(sub.remote))
	go sub.writePump()
	h.readPump(r.Context(), sub)
}

func (h *Hub) readPump(ctx context.Context, sub *subscriber) {
	defer h.unregister(ctx, sub)
	for {
		_, payload, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		h.intake(ctx, payload)
	}
}

func (s *subscriber) writePump() {
	for data := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.conn.Close()
}

// Broadcast delivers one signed batch to every subscriber. Implements the
// relay's Broadcaster contract.
func (h *Hub) Broadcast(ctx context.Context, batch proto.SignedWrapper) {
	data, err := proto.EncodeWrapper(batch)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[ws] encode batch failed: %v", err)
		}
		return
	}

	var dropped []*subscriber
	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(h.subscribers, sub)
		sub.close()
	}
	h.storeSubscriberCountLocked()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Store(broadcastBytesMetricKey, uint64(len(data)))
		if len(dropped) > 0 {
			h.metrics.Add(broadcastDroppedMetricKey, uint64(len(dropped)))
		}
	}
	for _, sub := range dropped {
		if h.logger != nil {
			h.logger.Printf("[ws] dropping slow subscriber %s", sub.remote)
		}
		network.PeerDisconnected(ctx, h.publisher, h.frame(), peerRef(sub.remote))
	}
}

// Subscribers reports the current subscription count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber and rejects future subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		sub.close()
	}
	h.storeSubscriberCountLocked()
	h.mu.Unlock()
}

func (h *Hub) unregister(ctx context.Context, sub *subscriber) {
	h.mu.Lock()
	_, present := h.subscribers[sub]
	if present {
		delete(h.subscribers, sub)
	}
	h.storeSubscriberCountLocked()
	h.mu.Unlock()
	sub.close()
	if present {
		network.PeerDisconnected(ctx, h.publisher, h.frame(), peerRef(sub.remote))
	}
}

func (h *Hub) storeSubscriberCountLocked() {
	if h.metrics == nil {
		return
	}
	h.metrics.Store(subscribersMetricKey, uint64(len(h.subscribers)))
}

func peerRef(remote string) logging.EntityRef {
	return logging.EntityRef{ID: remote, Kind: logging.EntityKindPeer}
}
