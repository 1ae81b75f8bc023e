// Command dkhp-proxy serves the DKHP portal proxy and its browser UI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/dkhp-proxy/internal/api"
	"github.com/Sternrassler/dkhp-proxy/internal/config"
	"github.com/Sternrassler/dkhp-proxy/internal/web"
	"github.com/Sternrassler/dkhp-proxy/pkg/batch"
	"github.com/Sternrassler/dkhp-proxy/pkg/health"
	"github.com/Sternrassler/dkhp-proxy/pkg/logging"
	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load the configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Proxy stopped with an error")
	}
	log.Info().Msg("Proxy stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var tracker *health.Tracker
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:                  cfg.Redis.Addr,
			Password:              cfg.Redis.Password,
			DB:                    cfg.Redis.DB,
			ContextTimeoutEnabled: true,
		})
		defer redisClient.Close()

		// Redis only backs /ready; the proxy serves without it.
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, readiness will report not ready")
		} else {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}

		tracker = health.NewTracker(redisClient, logging.NewLogger("health"))
		defer tracker.Close()
	}

	handler, err := newHandler(cfg, tracker)
	if err != nil {
		return err
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("portal", cfg.Portal.BaseURL).
		Int("chunk_size", cfg.Batch.ChunkSize).
		Bool("health_store", tracker != nil).
		Msg("Proxy configured")

	server := api.NewServer(cfg.ListenAddr, handler, logging.NewLogger("server"))
	return server.Run(ctx)
}

// newHandler wires the portal client, batch operations and optional health tracker
// into the HTTP handler. tracker may be nil.
func newHandler(cfg *config.Config, tracker *health.Tracker) (http.Handler, error) {
	portalCfg := cfg.PortalClient()
	if tracker != nil {
		portalCfg.Observer = tracker
	}

	client, err := portal.New(portalCfg)
	if err != nil {
		return nil, fmt.Errorf("create portal client: %w", err)
	}

	service := &api.Service{
		Portal:      client,
		Aggregator:  batch.NewAggregator(client, cfg.Aggregator()),
		Registrar:   batch.NewRegistrar(client, cfg.Batch.RegisterConcurrency),
		Static:      web.Handler(),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logging.NewLogger("api"),
	}
	if tracker != nil {
		service.Health = tracker
	}
	return service.Router(), nil
}
