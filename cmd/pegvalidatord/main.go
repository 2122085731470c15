// Copyright 2025 Certen Protocol
//
// pegvalidatord is thin wiring only: it loads configuration, opens the
// on-disk CometBFT-backed KV store, builds the ABCI application, and serves
// it over the ABCI socket protocol for an external CometBFT process to
// dial into. No consensus logic lives here -- node startup, networking,
// and CLI parsing beyond reading the environment are explicitly out of the
// core's scope (spec.md §1).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	abciserver "github.com/cometbft/cometbft/abci/server"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btcpeg/validator/pkg/abciapp"
	"github.com/btcpeg/validator/pkg/config"
	"github.com/btcpeg/validator/pkg/spv"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 Starting peg validator ABCI application")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal("Failed to create data directory:", err)
	}

	db, err := dbm.NewGoLevelDB("pegvalidator", filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatal("Failed to open state database:", err)
	}
	defer db.Close()

	store := newCometStore(db)
	headerCache, err := spv.NewCacheWithStore(store)
	if err != nil {
		log.Fatal("Failed to restore header cache:", err)
	}
	registry := prometheus.NewRegistry()
	app := abciapp.NewApp(store, headerCache, registry)
	log.Printf("✅ State store opened at %s", filepath.Join(cfg.DataDir, "state"))

	srv := abciserver.NewSocketServer(cfg.ListenAddr, app)
	srv.SetLogger(cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "abci-server"))
	if err := srv.Start(); err != nil {
		log.Fatal("Failed to start ABCI server:", err)
	}
	defer srv.Stop()
	log.Printf("✅ ABCI server listening on %s for chain %s", cfg.ListenAddr, cfg.ChainID)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		log.Printf("🌐 Metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("🛑 Shutting down peg validator ABCI application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
	log.Printf("✅ Shutdown complete")
}
