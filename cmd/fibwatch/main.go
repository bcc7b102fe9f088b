// Command fibwatch runs the charting engine: per-symbol live bar feeds,
// Fibonacci level tracking, RSI-gated alerts, and the WebSocket gateway
// chart clients connect to.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"fibwatch/internal/config"
	"fibwatch/internal/dashboard"
	"fibwatch/internal/gateway"
	"fibwatch/internal/logger"
	"fibwatch/internal/metrics"
	"fibwatch/internal/sink"
	"fibwatch/internal/store"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	configPath := flag.String("config", "fibwatch.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[fibwatch] config: %v", err)
	}
	logger.Init("fibwatch", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting", "listen", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persisted config store: Redis when reachable, in-memory otherwise.
	var kv store.KV
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, state will not survive restarts", "addr", cfg.RedisAddr, "err", err)
		kv = store.NewMemoryKV()
	} else {
		slog.Info("redis connected", "addr", cfg.RedisAddr)
		kv = store.NewRedisKV(rdb)
	}
	pingCancel()

	st := store.New(kv)
	state := st.Load(ctx)

	var recorder *store.Recorder
	if cfg.SQLitePath != "" {
		recorder, err = store.NewRecorder(cfg.SQLitePath)
		if err != nil {
			slog.Warn("sqlite recorder disabled", "path", cfg.SQLitePath, "err", err)
			recorder = nil
		} else {
			defer recorder.Close()
		}
	}

	m := metrics.New()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr)
	metricsSrv.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		metricsSrv.Stop(stopCtx)
	}()

	speech := sink.NewSpeechSink(cfg.SpeechCommand, state.SpeechEnabled)
	var primary sink.Sink
	if cfg.RelayURL != "" {
		primary = sink.NewRelaySink(cfg.RelayURL)
	} else {
		slog.Info("no relay configured, alerts logged locally")
		primary = sink.NewLogSink()
	}

	d := dashboard.New(dashboard.Options{
		RESTBase:   cfg.RESTBase,
		StreamBase: cfg.StreamBase,
		Sink:       sink.NewMulti(primary, speech),
		Speech:     speech,
		Store:      st,
		Recorder:   recorder,
		Metrics:    m,
		ExportDir:  cfg.ExportDir,
	}, state)

	hub := gateway.NewHub(d, m)
	d.SetPublisher(hub)
	go d.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"clients": hub.ClientCount(),
		})
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		slog.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("gateway serve", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
