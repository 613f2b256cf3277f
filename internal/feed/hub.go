package feed

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/observability"
)

// HubConfig configures server-side feed behavior.
type HubConfig struct {
	// PingInterval is the interval for sending ping frames to idle clients.
	PingInterval time.Duration
	// PongTimeout is how long a client may stay silent before it is dropped.
	PongTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue; a client that falls this far behind is disconnected.
	SendBuffer int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   256,
	}
}

// Hub fans committed events out to WebSocket clients.
type Hub struct {
	cfg      HubConfig
	log      zerolog.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	filterMu sync.RWMutex
	filter   map[domain.Address]bool // nil means every emitter
}

// NewHub creates a hub. metrics may be nil.
func NewHub(cfg HubConfig, log zerolog.Logger, metrics *observability.Metrics) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultHubConfig().SendBuffer
	}
	return &Hub{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
// The optional pool query parameter is a comma-separated emitter filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pools, err := parsePools(r.URL.Query().Get("pool"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("feed upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	c.setFilter(pools)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	count := len(h.clients)
	h.mu.Unlock()

	h.setGauge(count)
	h.log.Debug().Str("client", c.id).Int("pools", len(pools)).Msg("feed client connected")

	c.enqueue(mustJSON(Message{Type: TypeSubscribed, Pools: pools}))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish queues events for every interested client without blocking.
// A client whose queue is full is disconnected.
func (h *Hub) Publish(events []domain.Event) {
	if len(events) == 0 {
		return
	}

	frames := make([][]byte, len(events))
	for i, e := range events {
		ev := FromDomain(e)
		frames[i] = mustJSON(Message{Type: TypeEvent, Event: &ev})
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.isClosed() {
			continue
		}
		for i, e := range events {
			if !c.wants(e.Emitter) {
				continue
			}
			if !c.enqueue(frames[i]) {
				slow = append(slow, c)
				break
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		if h.metrics != nil {
			h.metrics.FeedDropped.Inc()
		}
		h.log.Warn().Str("client", c.id).Msg("feed client too slow, disconnecting")
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.setGauge(count)
	}
	c.close()
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.FeedClients.Set(float64(n))
	}
}

// writeLoop drains the client queue and pings idle connections.
func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()
	defer h.remove(c)

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.FeedMessagesSent.Inc()
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop handles subscribe frames and pong deadlines.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	defer h.remove(c)

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("client", c.id).Msg("feed client read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeSubscribe {
			c.enqueue(mustJSON(Message{Type: TypeError, Error: "expected subscribe message"}))
			continue
		}
		c.setFilter(msg.Pools)
		c.enqueue(mustJSON(Message{Type: TypeSubscribed, Pools: msg.Pools}))
	}
}

func (c *client) setFilter(pools []domain.Address) {
	var f map[domain.Address]bool
	if len(pools) > 0 {
		f = make(map[domain.Address]bool, len(pools))
		for _, p := range pools {
			f[p] = true
		}
	}
	c.filterMu.Lock()
	c.filter = f
	c.filterMu.Unlock()
}

func (c *client) wants(emitter domain.Address) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter == nil || c.filter[emitter]
}

// enqueue reports false when the client queue is full or closed.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		// unblock the reader; the writer sends the close frame
		c.conn.SetReadDeadline(time.Now())
	})
}

func parsePools(raw string) ([]domain.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var pools []domain.Address
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		a, err := domain.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		pools = append(pools, a)
	}
	return pools, nil
}

func mustJSON(m Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Message holds only strings, numbers and text-marshalled addresses.
		panic(err)
	}
	return data
}
