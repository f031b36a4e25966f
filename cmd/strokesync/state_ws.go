package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"strokesync/limits"
	"strokesync/stroker"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Observers (a dashboard, a debugging tool) connect to /ws/state and receive
// JSON text frames with an envelope: {type, ts, data}.
//
//   - "state_init" is sent once on connect, built from a session snapshot
//     requested through the session loop.
//   - "positions" carries the latest bounded outputs. It is rate-limited to
//     one frame per wsPositionCoalesceWindow, latest wins.
//   - "axis_limits_changed" and "session_state" are sent as they happen.
//
// Slow clients are disconnected when their send buffer fills. The session
// never blocks on observers.
// ============================================================================

type wsSnapshotData struct {
	Connected    bool                     `json:"connected"`
	Paused       bool                     `json:"paused"`
	Device       string                   `json:"device"`
	PositionMs   int64                    `json:"position_ms"`
	Axes         []stroker.Axis           `json:"axes"`
	Outputs      map[string]float64       `json:"outputs"`
	Limits       map[string]limits.Config `json:"limits"`
	LoadedFrom   string                   `json:"loaded_from,omitempty"`
	Alternatives []string                 `json:"alternatives,omitempty"`
}

type wsPositionsData struct {
	PlayheadMs int64              `json:"playhead_ms"`
	Positions  map[string]float64 `json:"positions"`
}

type wsLimitsChangedData struct {
	Axis   stroker.Axis  `json:"axis"`
	Limits limits.Config `json:"limits"`
}

type wsSessionStateData struct {
	Connected  bool           `json:"connected"`
	Paused     bool           `json:"paused"`
	Device     string         `json:"device"`
	Axes       []stroker.Axis `json:"axes"`
	LoadedFrom string         `json:"loaded_from,omitempty"`
}

const (
	wsTypeStateInit     = "state_init"
	wsTypePositions     = "positions"
	wsTypeLimitsChanged = "axis_limits_changed"
	wsTypeSessionState  = "session_state"
)

// wsOutboundEvent is a typed event ready to be framed.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func (ev wsOutboundEvent) frame() ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping")
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				c.shutdown()
			}
			h.mu.Unlock()
			return

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// add registers c. The handler calls it before starting the pumps so the
// client is known before its state_init frame is queued.
func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)
}

// sendTo queues msg for one registered client without blocking. A client
// that was already removed is skipped.
func (h *Hub) sendTo(c *Client, msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.shutdown()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a framed message for every client. It never
// blocks; a full queue drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte
	once sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// shutdown closes the connection and the send queue exactly once.
func (c *Client) shutdown() {
	c.once.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
	})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and keepalive pings. It exits on write
// error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames are processed and
// disconnects are noticed, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Snapshot requests go through the session loop.
	events chan<- Event
}

// NewServer constructs the WS state server. Register it on a mux, then
// start Hub().Run and RunBroadcaster.
func NewServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// Observers are local tools; the listener is loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.add(client)

	// The pumps outlive the handler; net/http cancels r.Context() on return.
	go client.writePump()
	go client.readPump()

	snap, ok := s.requestSnapshot(r.Context())
	if !ok {
		return
	}

	msg, err := wsOutboundEvent{Type: wsTypeStateInit, Data: snapshotData(snap)}.frame()
	if err != nil {
		s.logger.Warn("ws snapshot marshal failed", "error", err)
		return
	}
	if !s.hub.sendTo(client, msg) {
		s.hub.unregister <- client
	}
}

func (s *Server) requestSnapshot(ctx context.Context) (SessionSnapshot, bool) {
	if s.events == nil {
		return SessionSnapshot{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	reply := make(chan SessionSnapshot, 1)
	select {
	case s.events <- RequestStateSnapshot{Reply: reply}:
	case <-ctx.Done():
		s.logger.Warn("ws snapshot request not queued", "error", ctx.Err())
		return SessionSnapshot{}, false
	}

	select {
	case snap := <-reply:
		return snap, true
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", ctx.Err())
		}
		return SessionSnapshot{}, false
	}
}

func snapshotData(snap SessionSnapshot) wsSnapshotData {
	lims := make(map[string]limits.Config, len(snap.Limits))
	for axis, cfg := range snap.Limits {
		lims[string(axis)] = cfg
	}
	return wsSnapshotData{
		Connected:    snap.Connected,
		Paused:       snap.Paused,
		Device:       snap.Device,
		PositionMs:   snap.Position.Milliseconds(),
		Axes:         snap.Axes,
		Outputs:      axisKeys(snap.Outputs),
		Limits:       lims,
		LoadedFrom:   snap.LoadedFrom,
		Alternatives: snap.Alternatives,
	}
}

func axisKeys(in map[stroker.Axis]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for axis, v := range in {
		out[string(axis)] = v
	}
	return out
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster frames session broadcasts and fans them out through hub.
// Position updates are flushed at most once per wsPositionCoalesceWindow;
// any other event flushes the pending positions first so ordering holds.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := ev.frame()
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flush := func() {
		if pending != nil {
			emit(*pending)
			pending = nil
		}
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerC:
			timer, timerC = nil, nil
			if pending != nil {
				flush()
				// Keep the window open while positions keep coming.
				timer = time.NewTimer(wsPositionCoalesceWindow)
				timerC = timer.C
			}

		case b, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == wsTypePositions {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsPositionCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flush()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastPositions:
		return wsOutboundEvent{
			Type: wsTypePositions,
			Data: wsPositionsData{PlayheadMs: ev.Playhead.Milliseconds(), Positions: axisKeys(ev.Positions)},
			At:   ev.At,
		}, true

	case BroadcastLimitsChanged:
		return wsOutboundEvent{
			Type: wsTypeLimitsChanged,
			Data: wsLimitsChangedData{Axis: ev.Axis, Limits: ev.Limits},
			At:   ev.At,
		}, true

	case BroadcastSessionState:
		return wsOutboundEvent{
			Type: wsTypeSessionState,
			Data: wsSessionStateData{
				Connected:  ev.Connected,
				Paused:     ev.Paused,
				Device:     ev.Device,
				Axes:       ev.Axes,
				LoadedFrom: ev.LoadedFrom,
			},
			At: ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
