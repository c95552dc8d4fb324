package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/plank/internal/domain"
)

// IdentityVerifier resolves a credential to a user. *auth.Verifier satisfies it.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*domain.Identity, error)
}

// GatewayConfig sizes per-connection resources.
type GatewayConfig struct {
	SendBuffer       int
	IntentsPerSecond float64
	IntentBurst      int
}

// Gateway is the transport-facing entry point: it authenticates connections,
// decodes their frames and hands intents to the Router.
type Gateway struct {
	verifier IdentityVerifier
	registry *Registry
	router   *Router
	cfg      GatewayConfig
}

func NewGateway(verifier IdentityVerifier, registry *Registry, router *Router, cfg GatewayConfig) *Gateway {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 256
	}
	return &Gateway{verifier: verifier, registry: registry, router: router, cfg: cfg}
}

// Connect authenticates credential and registers a new connection in no room.
func (g *Gateway) Connect(ctx context.Context, credential string) (*Conn, error) {
	identity, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, fmt.Errorf("realtime.Gateway.Connect: %w", err)
		}
		return nil, fmt.Errorf("realtime.Gateway.Connect: %w: %w", domain.ErrUnauthorized, err)
	}

	var limiter *rate.Limiter
	if g.cfg.IntentsPerSecond > 0 {
		burst := g.cfg.IntentBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(g.cfg.IntentsPerSecond), burst)
	}

	conn := NewConn(*identity, g.cfg.SendBuffer, limiter)
	if err := g.registry.Add(conn); err != nil {
		return nil, fmt.Errorf("realtime.Gateway.Connect: %w: %w", domain.ErrUnavailable, err)
	}

	log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", identity.UserID.String()).
		Str("username", identity.Username).
		Msg("connection opened")

	return conn, nil
}

// Dispatch handles one inbound frame. Decoding failures and throttling are
// reported to conn as error envelopes.
func (g *Gateway) Dispatch(ctx context.Context, conn *Conn, data []byte) {
	conn.Touch()

	frame, err := DecodeFrame(data)
	if err != nil {
		g.router.Reject(conn, "", err)
		return
	}
	if !conn.Allow() {
		g.router.Reject(conn, frame.RequestID, fmt.Errorf("realtime.Gateway.Dispatch: %w", domain.ErrRateLimited))
		return
	}

	intent, err := DecodeIntent(frame)
	if err != nil {
		g.router.Reject(conn, frame.RequestID, err)
		return
	}

	g.router.Handle(ctx, conn, frame.RequestID, intent)
}

// Reject reports err to conn without handling any intent.
func (g *Gateway) Reject(conn *Conn, requestID string, err error) {
	g.router.Reject(conn, requestID, err)
}

// Disconnect removes the connection, announcing presence changes, and closes it.
func (g *Gateway) Disconnect(conn *Conn) {
	g.router.Drop(conn.ID)
	conn.Close(ReasonDisconnected)

	log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", conn.Identity.UserID.String()).
		Str("reason", conn.CloseReason()).
		Msg("connection closed")
}
