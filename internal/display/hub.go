// Package display serves the race display to browser clients over a
// websocket. It renders frames, shows errors and the countdown, collects
// user intents and receives scenario selections.
package display

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"

	"github.com/tabletop-racing/racecontrol/internal/queue"
	"github.com/tabletop-racing/racecontrol/internal/timeutil"
	"github.com/tabletop-racing/racecontrol/internal/world"
	"github.com/tabletop-racing/racecontrol/pkg/core"
	"github.com/tabletop-racing/racecontrol/pkg/streaming"
)

const (
	clientSendSize = 64
	writeWait      = 5 * time.Second
)

// Config holds the display server settings.
type Config struct {
	Listen string
	Clock  timeutil.Clock
	// CountdownFrom is the first countdown value, shown for CountdownStep
	// each down to 1.
	CountdownFrom int
	CountdownStep time.Duration
}

// maxPendingIntents caps intents buffered while no frame is collecting them,
// e.g. while the menu is up.
const maxPendingIntents = 64

// Hub fans display messages out to every connected client.
type Hub struct {
	cfg    Config
	logger *slog.Logger
	router *mux.Router

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	menu    []byte
	server  *http.Server

	intents   *queue.Queue[core.Intent]
	scenarios chan core.Scenario
}

type client struct {
	id   uuid.UUID
	conn *ws.Conn
	send chan []byte
}

// New creates a hub. Call Start to serve it or mount Handler yourself.
func New(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.CountdownFrom <= 0 {
		cfg.CountdownFrom = 3
	}
	if cfg.CountdownStep <= 0 {
		cfg.CountdownStep = time.Second
	}

	h := &Hub{
		cfg:       cfg,
		logger:    logger,
		clients:   make(map[uuid.UUID]*client),
		intents:   queue.NewBounded[core.Intent](maxPendingIntents),
		scenarios: make(chan core.Scenario, 1),
	}

	h.router = mux.NewRouter()
	h.router.HandleFunc("/ws", h.serveWS)
	h.router.HandleFunc("/menu", h.serveMenu).Methods(http.MethodGet)
	return h
}

// Handler returns the HTTP routes of the hub.
func (h *Hub) Handler() http.Handler {
	return h.router
}

// Start listens on cfg.Listen and serves in the background.
func (h *Hub) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", h.cfg.Listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: h.router, ReadHeaderTimeout: 5 * time.Second}

	h.mu.Lock()
	h.server = srv
	h.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Display server stopped", "error", err)
		}
	}()
	h.logger.Info("Display listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops the server and disconnects every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	srv := h.server
	h.server = nil
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetMenu stores the menu sent to every client on connect, and to the ones
// already connected.
func (h *Hub) SetMenu(menu streaming.MenuPayload) {
	data, err := streaming.Encode(streaming.TypeMenu, 0, menu)
	if err != nil {
		h.logger.Error("Failed to encode menu", "error", err)
		return
	}
	h.mu.Lock()
	h.menu = data
	h.mu.Unlock()
	h.broadcast(data)
}

// Render sends a frame to every client. It never blocks; slow clients miss
// frames.
func (h *Hub) Render(s *world.Snapshot, laps []time.Duration) {
	raw, err := json.Marshal(s)
	if err != nil {
		h.logger.Error("Failed to encode snapshot", "error", err)
		return
	}
	secs := make([]float64, len(laps))
	for i, l := range laps {
		secs[i] = l.Seconds()
	}
	h.send(streaming.TypeFrame, streaming.FramePayload{World: raw, Laps: secs})
}

// Intents returns and clears the intents received since the last call.
func (h *Hub) Intents() []core.Intent {
	return h.intents.Drain()
}

// ShowError shows msg to the operator.
func (h *Hub) ShowError(msg string) {
	h.logger.Warn("Showing error", "message", msg)
	h.send(streaming.TypeError, streaming.ErrorPayload{Message: msg})
}

// Countdown counts down over the starting grid, one step per CountdownStep,
// and finishes with 0.
func (h *Hub) Countdown(ctx context.Context, s *world.Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	for v := h.cfg.CountdownFrom; v > 0; v-- {
		h.send(streaming.TypeCountdown, streaming.CountdownPayload{Value: v, World: raw})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.cfg.Clock.After(h.cfg.CountdownStep):
		}
	}
	h.send(streaming.TypeCountdown, streaming.CountdownPayload{Value: 0, World: raw})
	return nil
}

// NextScenario waits for a client to select a scenario.
func (h *Hub) NextScenario(ctx context.Context) (core.Scenario, error) {
	select {
	case s := <-h.scenarios:
		return s, nil
	case <-ctx.Done():
		return core.Scenario{}, ctx.Err()
	}
}

func (h *Hub) send(typ string, payload any) {
	data, err := streaming.Encode(typ, 0, payload)
	if err != nil {
		h.logger.Error("Failed to encode message", "type", typ, "error", err)
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("Display client slow, dropping message", "client", c.id)
		}
	}
}

func (h *Hub) serveMenu(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	menu := h.menu
	h.mu.RUnlock()
	if menu == nil {
		http.Error(w, "menu not set", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(menu)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := ws.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, clientSendSize)}
	h.mu.Lock()
	h.clients[c.id] = c
	if h.menu != nil {
		c.send <- h.menu
	}
	h.mu.Unlock()
	h.logger.Info("Display client connected", "client", c.id)

	go c.writeLoop()
	h.readLoop(c)
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Info("Display client disconnected", "client", c.id)
}

// readLoop handles intents and scenario selections until the client goes
// away.
func (h *Hub) readLoop(c *client) {
	defer h.removeClient(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.logger.Debug("Malformed message received", "client", c.id, "raw", string(message))
			continue
		}

		switch env.Type {
		case streaming.TypeIntent:
			var p streaming.IntentPayload
			if err := streaming.Decode(env, &p); err != nil {
				h.logger.Debug("Malformed intent", "error", err)
				continue
			}
			if n := h.intents.Push(core.Intent{Command: p.Command, Time: h.cfg.Clock.Now()}); n > 0 {
				h.logger.Warn("Discarded stale intents", "count", n)
			}
		case streaming.TypeSelectScenario:
			var s core.Scenario
			if err := streaming.Decode(env, &s); err != nil {
				h.logger.Debug("Malformed scenario", "error", err)
				continue
			}
			select {
			case h.scenarios <- s:
			default:
				h.logger.Warn("Scenario already pending, ignoring selection", "client", c.id)
			}
		default:
			h.logger.Debug("Unexpected message received", "type", env.Type)
		}
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
}
