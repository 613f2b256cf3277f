package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fsp-staking/internal/domain"
)

// ClientConfig configures subscriber behavior.
type ClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the capacity of the Events channel.
	Buffer int
}

// DefaultClientConfig returns default subscriber configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            1024,
	}
}

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("feed client closed")

// Client subscribes to a feed endpoint and reconnects with exponential
// backoff. The feed is live only: events committed while disconnected are
// not replayed.
type Client struct {
	endpoint string
	cfg      ClientConfig
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	poolsMu sync.RWMutex
	pools   []domain.Address

	events     chan Event
	reconnects atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to endpoint (ws:// or wss://) and subscribes to pools.
// Empty pools subscribes to every emitter.
func Dial(ctx context.Context, endpoint string, pools []domain.Address, config *ClientConfig, log zerolog.Logger) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultClientConfig().Buffer
	}

	c := &Client{
		endpoint: endpoint,
		cfg:      cfg,
		log:      log,
		pools:    append([]domain.Address(nil), pools...),
		events:   make(chan Event, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Events delivers received events in commit order. Closed by Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Reconnects returns how many times the connection was re-established.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// Subscribe replaces the pool filter on the live connection and for future reconnects.
func (c *Client) Subscribe(pools []domain.Address) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.poolsMu.Lock()
	c.pools = append([]domain.Address(nil), pools...)
	c.poolsMu.Unlock()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.writeSubscribe(c.conn)
}

// Close closes the connection and the Events channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.events)
	return nil
}

// connect dials and sends the current subscription.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed.Load() {
		conn.Close()
		return ErrClientClosed
	}
	if err := c.writeSubscribe(conn); err != nil {
		conn.Close()
		return err
	}
	c.conn = conn
	return nil
}

// writeSubscribe must be called with connMu held.
func (c *Client) writeSubscribe(conn *websocket.Conn) error {
	c.poolsMu.RLock()
	msg := Message{Type: TypeSubscribe, Pools: c.pools}
	c.poolsMu.RUnlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// readLoop reads frames and reconnects on failure.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Warn().Err(err).Msg("feed connection lost")

			c.connMu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()
			continue
		}

		if !c.handleMessage(data) {
			return
		}
	}
}

// reconnect retries with exponential backoff until connected or closed.
func (c *Client) reconnect() bool {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			c.reconnects.Add(1)
			c.log.Info().Uint64("reconnects", c.reconnects.Load()).Msg("feed reconnected")
			return true
		}

		c.log.Debug().Err(err).Dur("delay", delay).Msg("feed reconnect failed")
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// handleMessage reports false once the client is closed.
func (c *Client) handleMessage(data []byte) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("feed sent malformed frame")
		return true
	}

	switch msg.Type {
	case TypeEvent:
		if msg.Event == nil || !c.wants(msg.Event.Emitter) {
			return true
		}
		// Block until delivered - never drop events
		select {
		case c.events <- *msg.Event:
			return true
		case <-c.done:
			return false
		}
	case TypeError:
		c.log.Warn().Str("error", msg.Error).Msg("feed error frame")
	}
	return true
}

func (c *Client) wants(emitter domain.Address) bool {
	c.poolsMu.RLock()
	defer c.poolsMu.RUnlock()

	if len(c.pools) == 0 {
		return true
	}
	for _, p := range c.pools {
		if p == emitter {
			return true
		}
	}
	return false
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				// A dead connection surfaces as a read error.
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}
