package commands

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/plank/internal/auth"
	"github.com/gosuda/plank/internal/config"
	"github.com/gosuda/plank/internal/permission"
	"github.com/gosuda/plank/internal/realtime"
	"github.com/gosuda/plank/internal/server"
	"github.com/gosuda/plank/internal/store/postgres"
	redisstore "github.com/gosuda/plank/internal/store/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Long: `Run the board server until SIGINT or SIGTERM.

When PLANK_REDIS_ADDR is set, board events are relayed through Redis so that
several instances can share rooms. With PLANK_DB_MIGRATE=true pending schema
migrations are applied before serving.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	registry := realtime.NewRegistry()
	routerOpts := []realtime.RouterOption{
		realtime.WithIntentTimeout(cfg.Realtime.IntentTimeout),
		realtime.WithBoardLocker(store),
	}

	var relay *realtime.Relay
	if cfg.Redis.Enabled() {
		pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()

		relay = realtime.NewRelay(pubsub, cfg.Realtime.SendBuffer*4)
		routerOpts = append(routerOpts, realtime.WithRelay(relay))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis relay enabled")
	}

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	router := realtime.NewRouter(store, permission.NewGuard(store.Boards()), registry, routerOpts...)
	gateway := realtime.NewGateway(verifier, registry, router, realtime.GatewayConfig{
		SendBuffer:       cfg.Realtime.SendBuffer,
		IntentsPerSecond: cfg.Realtime.IntentsPerSecond,
		IntentBurst:      cfg.Realtime.IntentBurst,
	})
	srv := server.New(ctx, cfg, store, verifier, registry, gateway)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		return srv.Start(gctx)
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		// Close sockets first; net/http does not track hijacked connections.
		registry.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}
	return postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
}
