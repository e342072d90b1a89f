package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tatami/internal/coordinator"
	"tatami/pkg/types"
)

// Core is what the transport needs from the coordination core.
type Core interface {
	Register(peer coordinator.Peer) error
	Deregister(peerID string) error
	Dispatch(peerID string, env *types.Envelope) error
}

// Options carries the transport tuning knobs.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions returns the production transport settings.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

var upgrader = websocket.Upgrader{
	// Browser clients connect from a separately hosted frontend.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests and pumps decoded events into the core.
type Handler struct {
	core   Core
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(core Core, opts Options, logger *slog.Logger) *Handler {
	if opts.PingInterval <= 0 || opts.ReadTimeout <= 0 {
		opts = DefaultOptions()
	}
	return &Handler{core: core, opts: opts, logger: logger}
}

// HandleWebSocket accepts a connection, registers it with the core (which
// pushes the initial presence snapshot), and runs the read pump until the
// client goes away. Disconnect, however it happens, runs full teardown.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConn(ws, h.opts.BufferSize, h.opts.WriteTimeout)
	if err := h.core.Register(conn); err != nil {
		h.logger.Error("register connection", "peer", conn.ID(), "error", err)
		_ = conn.Close()
		return
	}

	go h.readPump(conn)
}

func (h *Handler) readPump(conn *Conn) {
	defer func() {
		_ = h.core.Deregister(conn.ID())
		_ = conn.Close()
	}()

	if err := conn.ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "peer", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn("malformed event frame", "peer", conn.ID(), "error", err)
			continue
		}
		if env.Type == "" {
			continue
		}
		if err := h.core.Dispatch(conn.ID(), &env); err != nil {
			h.logger.Warn("dispatch failed", "peer", conn.ID(), "type", env.Type, "error", err)
			return
		}
	}
}

func (h *Handler) pingLoop(conn *Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.opts.WriteTimeout)
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}
