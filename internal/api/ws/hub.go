package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"

	"github.com/gosuda/plank/internal/auth"
	"github.com/gosuda/plank/internal/config"
	"github.com/gosuda/plank/internal/domain"
	"github.com/gosuda/plank/internal/realtime"
)

// Hub serves the board collaboration WebSocket. Each accepted socket becomes
// one realtime connection; frames are handed to the gateway and outbound
// envelopes are written in order.
type Hub struct {
	gateway *realtime.Gateway
	cfg     config.RealtimeConfig
}

// NewHub creates a new WebSocket hub.
func NewHub(gateway *realtime.Gateway, cfg config.RealtimeConfig) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Hub{gateway: gateway, cfg: cfg}
}

// ServeHTTP authenticates the upgrade request before accepting it. The
// credential comes from the Authorization header, the access_token query
// parameter or the session cookie.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.gateway.Connect(r.Context(), auth.CredentialFromRequest(r))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("websocket connect")
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.gateway.Disconnect(conn)

	// The server's read and write timeouts must not apply to a long-lived socket.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer sock.CloseNow()

	if h.cfg.MaxMessageBytes > 0 {
		sock.SetReadLimit(int64(h.cfg.MaxMessageBytes))
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(r.Context(), sock, conn)
	}()

	h.readPump(r.Context(), sock, conn)
	conn.Close(realtime.ReasonDisconnected)
	<-writerDone
}

// readPump dispatches text frames until the socket fails or closes.
func (h *Hub) readPump(ctx context.Context, sock *websocket.Conn, conn *realtime.Conn) {
	for {
		typ, data, err := sock.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !conn.Closed() {
				log.Debug().Err(err).Str("conn_id", conn.ID).Msg("websocket read")
			}
			return
		}
		if typ != websocket.MessageText {
			h.gateway.Reject(conn, "", fmt.Errorf("ws.Hub.readPump: binary frames are not supported: %w", domain.ErrBadRequest))
			continue
		}
		h.gateway.Dispatch(ctx, conn, data)
	}
}

// writePump drains the outbound queue and keeps the socket alive with pings.
// It owns the close handshake once the connection is closed.
func (h *Hub) writePump(ctx context.Context, sock *websocket.Conn, conn *realtime.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-conn.Outbound():
			if err := h.write(ctx, sock, data); err != nil {
				log.Debug().Err(err).Str("conn_id", conn.ID).Msg("websocket write")
				conn.Close(realtime.ReasonDisconnected)
				_ = sock.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := sock.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn_id", conn.ID).Msg("websocket ping")
				conn.Close(realtime.ReasonDisconnected)
				_ = sock.CloseNow()
				return
			}
		case <-conn.Done():
			reason := conn.CloseReason()
			_ = sock.Close(closeStatus(reason), reason)
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, sock *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	return sock.Write(ctx, websocket.MessageText, data)
}

func closeStatus(reason string) websocket.StatusCode {
	switch reason {
	case realtime.ReasonSlowConsumer:
		return websocket.StatusPolicyViolation
	case realtime.ReasonShutdown:
		return websocket.StatusGoingAway
	default:
		return websocket.StatusNormalClosure
	}
}
