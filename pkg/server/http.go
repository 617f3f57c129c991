package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/gocollab/pkg/protocol"
)

// maxMessageSize bounds a single inbound websocket message.
const maxMessageSize = protocol.MaxFrameSize

// WSHandler upgrades HTTP requests to client connections.
type WSHandler struct {
	coord    *Coordinator
	bans     Banner
	metrics  *Metrics
	cfg      HTTPConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates the websocket endpoint handler. bans may be nil.
func NewWSHandler(coord *Coordinator, bans Banner, metrics *Metrics, cfg HTTPConfig) *WSHandler {
	h := &WSHandler{coord: coord, bans: bans, metrics: metrics, cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    []string{protocol.ProtocolText},
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(h.cfg.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, u.Hostname())
	})
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !slices.Contains(websocket.Subprotocols(r), protocol.ProtocolText) {
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return
	}
	ip := remoteIP(r)

	if h.bans != nil {
		banned, err := h.bans.IsBanned(r.Context(), ip)
		if err != nil {
			slog.Error("ban check failed", "ip", ip, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if banned {
			h.metrics.RejectedConnections.Add(1)
			http.Error(w, "banned", http.StatusForbidden)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "ip", ip, "err", err)
		return
	}
	conn := newWSConn(ws, ip, h.cfg.SendQueue)
	go conn.writeLoop()

	id, err := h.coord.Connect(conn)
	if err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			h.metrics.RejectedConnections.Add(1)
		}
		conn.Close(err.Error())
		return
	}
	defer h.coord.Disconnect(id)
	defer conn.Close("")

	h.readLoop(conn, id)
}

func (h *WSHandler) readLoop(conn *wsConn, id string) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("read error", "ip", conn.ip, "err", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			h.metrics.MalformedFrames.Add(1)
			return
		}
		msg, err := protocol.Parse(data)
		if err != nil {
			h.metrics.MalformedFrames.Add(1)
			slog.Debug("closing connection on bad frame", "ip", conn.ip, "err", err)
			return
		}
		h.coord.Deliver(id, msg)
	}
}

// remoteIP returns the client address without the port.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
