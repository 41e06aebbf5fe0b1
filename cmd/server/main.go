package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/cache"
	"github.com/pitchside/pitchside/config"
	"github.com/pitchside/pitchside/events"
	"github.com/pitchside/pitchside/match"
	"github.com/pitchside/pitchside/metrics"
	"github.com/pitchside/pitchside/persist"
	"github.com/pitchside/pitchside/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.PrettyLog {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if cfg.StatsdAddr != "" {
		if err := metrics.Init(cfg.StatsdAddr, nil); err != nil {
			log.Warn().Err(err).Msg("statsd disabled")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var positions *cache.PositionCache
	if !cfg.RedisDisabled && cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("redis unreachable, position sync disabled")
		} else {
			positions = cache.New(client, log)
			defer client.Close()
		}
	}

	var store persist.MatchStore
	if cfg.PostgresDSN != "" {
		pg, err := persist.OpenPostgres(cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		store = pg
	} else {
		log.Warn().Msg("no postgres dsn, match results will not be saved")
	}

	bus := events.NewBus(log)
	mgr := match.NewManager(bus, store, positions, log)
	sched := match.NewScheduler(mgr, cfg.TickInterval(), log)
	mgr.AttachScheduler(sched)
	hub := server.NewHub(bus, log)
	srv := server.New(mgr, hub, store, log)

	sched.Start(ctx)
	defer sched.Stop()

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	metrics.Close()
}
