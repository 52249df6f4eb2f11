package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/herdguard/herdguard-server/internal/config"
	"github.com/herdguard/herdguard-server/internal/engine"
	"github.com/herdguard/herdguard-server/internal/server"
	"github.com/herdguard/herdguard-server/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/tracking-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Connect to NATS
	log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("herdguard-tracking-server"),
		nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
		nats.ReconnectWait(cfg.NATS.ReconnectInterval),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()
	log.Info().Msg("Connected to NATS")

	engineCfg := engine.Config{
		ActivityTimeout: cfg.Engine.ActivityTimeout,
		SweepInterval:   cfg.Engine.SweepInterval,
		ClearHold:       cfg.Engine.ClearHold,
	}

	pipeline := engine.NewPipeline(store, nc, engineCfg)
	sweeper := engine.NewSweeper(store, nc, engineCfg)

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Start fix subscriber
	subscriber := server.NewFixSubscriber(nc, pipeline)
	if err := subscriber.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start fix subscriber")
	}
	defer subscriber.Stop()

	// Start sweeper
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")
	cancel()
	wg.Wait()

	log.Info().Msg("Shutdown complete")
}
