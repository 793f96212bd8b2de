package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skirmish/internal/proto"
	"skirmish/internal/telemetry"
)

// Client is the peer side of the transport: it receives the relay's signed
// batch stream and transmits the peer's signed action wrappers.
type Client struct {
	conn    *websocket.Conn
	batches chan proto.SignedWrapper
	done    chan struct{}
	logger  telemetry.Logger
	metrics telemetry.Metrics

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to a relay endpoint and starts the receive loop.
func Dial(ctx context.Context, url string, logger telemetry.Logger, metrics telemetry.Metrics) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)

	c := &Client{
		conn:    conn,
		batches: make(chan proto.SignedWrapper, sendBacklog),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
	go c.readLoop()
	return c, nil
}

// Batches streams inbound signed batches. The channel closes when the
// connection drops; verification stays with the consumer.
func (c *Client) Batches() <-chan proto.SignedWrapper {
	return c.batches
}

// Send transmits one already-signed wrapper to the relay.
func (c *Client) Send(wrapper proto.SignedWrapper) error {
	data, err := proto.EncodeWrapper(wrapper)
	if err != nil {
		return fmt.Errorf("ws: encode wrapper: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ws: send: %w", err)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.batches)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		wrapper, err := proto.DecodeWrapper(payload)
		if err != nil {
			if c.metrics != nil {
				c.metrics.Add(inboundMalformedMetricKey, 1)
			}
			if c.logger != nil {
				c.logger.Printf("[ws] discarding malformed batch: %v", err)
			}
			continue
		}
		select {
		case c.batches <- wrapper:
		case <-c.done:
			return
		}
	}
}
