package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/swapnilraj/atomic-bundler/internal/chain"
	"github.com/swapnilraj/atomic-bundler/internal/config"
	"github.com/swapnilraj/atomic-bundler/internal/httpapi"
	"github.com/swapnilraj/atomic-bundler/internal/metrics"
	"github.com/swapnilraj/atomic-bundler/internal/orchestrator"
	"github.com/swapnilraj/atomic-bundler/internal/policy"
	"github.com/swapnilraj/atomic-bundler/internal/scheduler"
	"github.com/swapnilraj/atomic-bundler/internal/signerkey"
	"github.com/swapnilraj/atomic-bundler/internal/storage"
)

func main() {
	defaultConfigPath := os.Getenv("CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "path to the operator configuration file (default: $CONFIG_PATH, else config.yaml)")
	flag.Parse()

	log := newLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	snapshot := config.NewSnapshot(cfg)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	gateway, err := chain.Dial(dialCtx, cfg.Network.RPCURL)
	dialCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("dial chain RPC")
	}
	defer gateway.Close()

	signer := signerkey.NewProvider()

	gate := policy.NewGate(policy.Limits{
		PerBundleCapWei:           mustParseWei(cfg.Limits.PerBundleCapWei, log),
		DailyCapWei:               mustParseWei(cfg.Limits.DailyCapWei, log),
		EmergencyStopEnabled:      cfg.Limits.EmergencyStopEnabled,
		EmergencyStopThresholdWei: mustParseWei(cfg.Limits.EmergencyStopThresholdWei, log),
	})

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer store.Close()

	collectors := metrics.New(cfg.Metrics.Namespace)

	orch := orchestrator.New(snapshot, gateway, signer, gate, store, collectors, log)

	sched := scheduler.New(orch.EnabledRelays, store, collectors, log)
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	sched.Start(schedCtx)

	server := httpapi.NewServer(snapshot, orch, gate, store, collectors, sched, log, *configPath)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("atomic bundler listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func mustParseWei(s string, log zerolog.Logger) *uint256.Int {
	v, err := config.ParseWei(s)
	if err != nil {
		log.Fatal().Err(err).Str("value", s).Msg("invalid wei amount in configuration")
	}
	return v
}
