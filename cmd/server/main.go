package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/owndc/internal/adapters/http"
	"github.com/dkeye/owndc/internal/adapters/rtc"
	wsignal "github.com/dkeye/owndc/internal/adapters/signal"
	"github.com/dkeye/owndc/internal/app"
	"github.com/dkeye/owndc/internal/app/orch"
	"github.com/dkeye/owndc/internal/config"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
	"github.com/dkeye/owndc/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	store, err := storage.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to open database")
	}
	defer store.Close()

	ice, err := rtc.ICEServers(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("bad ice server config")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(promReg)

	policy := app.SimplePolicy{}
	reg := app.NewRegistry()

	o := &orch.Orchestrator{
		Registry:     reg,
		Channels:     app.NewRoomManager(domain.RoomText),
		Voice:        app.NewRoomManager(domain.RoomVoice),
		Presence:     app.NewPresence(reg, store, policy, metrics, cfg.StoreTimeout),
		Store:        store,
		Policy:       policy,
		Metrics:      metrics,
		StoreTimeout: cfg.StoreTimeout,
	}

	ws := wsignal.NewSignalWSController(o,
		wsignal.NewRateLimiter(cfg.AuthAttempts, cfg.AuthWindow),
		metrics,
		wsignal.Settings{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			SendBuffer: cfg.SendBuffer,
		})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:       o,
		Store:      store,
		Signal:     ws,
		ICEServers: ice,
		Gatherer:   promReg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("owndc server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
