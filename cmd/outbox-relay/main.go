package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/events"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Startup(os.Stderr).Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, os.Stdout).With().Str("service", "outbox-relay").Logger()

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.RelayInterval).
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.KafkaTopic).
		Msg("outbox-relay starting up")

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, ApplicationName: "outbox-relay"})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka writer")
		}
	}()

	relay := events.NewRelay(pgPool, publisher, cfg.RelayBatchSize, log)
	relay.Run(rootCtx, cfg.RelayInterval)

	log.Info().Msg("outbox-relay stopped")
}
