package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-slot-booking/internal/api"
	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/capacity"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
	"github.com/hackgods/clinic-slot-booking/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Startup(os.Stderr).Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, os.Stdout).With().Str("service", "api-server").Logger()

	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  "api-server",
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup error")
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConns, ApplicationName: "api-server"})
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Int32("max_conns", cfg.PostgresMaxConns).Msg("connected to Postgres")

	// Redis only backs the capacity counters, so booking keeps working without it.
	var rdb *redis.Client
	rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		Timeout:  cfg.CapacityNotifyTimeout,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, capacity counters disabled")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []appointment.Option{
		appointment.WithLogger(log),
		appointment.WithMetrics(appointment.NewMetrics(reg)),
	}
	if rdb != nil {
		counters := capacity.NewRedisNotifier(rdb)
		opts = append(opts,
			appointment.WithCapacityNotifier(counters, cfg.CapacityNotifyTimeout),
			appointment.WithCapacityReader(counters),
		)
	}

	store := appointment.NewPgStore(pgPool, db.TxOptions{
		LockTimeout:      cfg.LockTimeout,
		StatementTimeout: cfg.StatementTimeout,
	})
	book := appointment.NewBook(store, opts...)

	deps := []api.Dependency{{Name: "postgres", Critical: true, Ping: pgPool.Ping}}
	if rdb != nil {
		deps = append(deps, api.Dependency{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	router := api.NewRouter(api.RouterConfig{
		Service:        book,
		Auth:           api.NewAuthenticator(cfg.JWTSecret),
		Limiter:        api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Health:         api.NewHealthHandler(cfg.Env, version, deps...),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := api.NewServer(rootCtx, ":"+cfg.HTTPPort, otelhttp.NewHandler(router, "api-server"))

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down api-server")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(ctx)
		book.Wait()
		if tErr := shutdownTracing(ctx); tErr != nil {
			log.Warn().Err(tErr).Msg("tracing shutdown error")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api-server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("api-server stopped")
}
