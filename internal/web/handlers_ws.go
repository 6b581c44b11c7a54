package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"zigbee-go-catalog/internal/coordinator"
)

// eventSnapshot is the type of the first message a client receives: every
// device with its definition.
const eventSnapshot = "devices"

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSHub fans coordinator events out to websocket clients. All membership
// changes go through Run's goroutine.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan coordinator.Event

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	// filter holds the event types the client asked for; nil or empty
	// means every type. Clients may replace it at any time.
	filter atomic.Pointer[[]string]
}

func newWSClient(conn *websocket.Conn, types []string) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	c.setTypes(types)
	return c
}

func (c *wsClient) setTypes(types []string) {
	c.filter.Store(&types)
}

func (c *wsClient) wants(eventType string) bool {
	types := c.filter.Load()
	return types == nil || len(*types) == 0 || slices.Contains(*types, eventType)
}

func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan coordinator.Event, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.drop(client, "disconnected")
		case event := <-h.broadcast:
			h.fanout(event)
		}
	}
}

func (h *WSHub) add(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("ws client connected", "total", total)
}

// drop removes client and closes its send queue, which ends its write pump.
func (h *WSHub) drop(client *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("ws client removed", "reason", reason, "total", total)
	}
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// fanout queues event for every interested client. A client whose queue is
// full is evicted.
func (h *WSHub) fanout(event coordinator.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("ws marshal", "type", event.Type, "err", err)
		return
	}

	h.mu.RLock()
	var slow []*wsClient
	for client := range h.clients {
		if !client.wants(event.Type) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("ws client too slow, evicting", "type", event.Type)
		h.drop(client, "slow")
	}
}

// Stop shuts the hub down and closes every client. It may be called more
// than once.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues event without blocking; it is dropped when the hub is
// backed up.
func (h *WSHub) Broadcast(event coordinator.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("ws broadcast queue full, dropping event", "type", event.Type)
	}
}

// wsControl is the only message clients may send: it replaces their event
// filter.
type wsControl struct {
	Types []string `json:"types"`
}

// parseEventTypes reads the ?types= filter, keeping only known types.
func parseEventTypes(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if slices.Contains(eventTypes, t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	// Without an allow list nhooyr enforces same-origin.

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	client := newWSClient(conn, parseEventTypes(r.URL.Query().Get("types")))
	if snapshot, err := s.deviceSnapshot(); err != nil {
		s.logger.Warn("ws snapshot", "err", err)
	} else {
		client.send <- snapshot
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				client.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ping.C:
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.logger.Debug("ws ping", "err", err)
				return
			}
		}
	}
}

func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		typ, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var ctl wsControl
		if err := json.Unmarshal(data, &ctl); err != nil {
			s.logger.Debug("ws bad control message", "err", err)
			continue
		}
		client.setTypes(parseEventTypes(strings.Join(ctl.Types, ",")))
	}
}

func (s *Server) deviceSnapshot() ([]byte, error) {
	devs, err := s.coord.Devices().ListDevices()
	if err != nil {
		return nil, err
	}
	views := make([]DeviceView, 0, len(devs))
	for _, dev := range devs {
		views = append(views, s.deviceView(dev))
	}
	return json.Marshal(coordinator.Event{Type: eventSnapshot, Data: views})
}
