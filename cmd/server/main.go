package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexfirerain/chatwork/internal/chat"
	"github.com/alexfirerain/chatwork/internal/chatlog"
	"github.com/alexfirerain/chatwork/internal/config"
)

func main() {
	settings := flag.String("settings", "settings.ini", "settings file (key = value;)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	_ = godotenv.Load()
	cfg, err := config.Load(*settings, logger)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	fallback := slog.New(slog.NewTextHandler(os.Stderr, nil))
	writer := chatlog.NewWriter(cfg.LogFile, cfg.LogQueue, fallback)
	go writer.Run()
	journal := chatlog.New(chatlog.Categories{
		Inbound:     cfg.LogInbound,
		Outbound:    cfg.LogOutbound,
		Transferred: cfg.LogTransferred,
		Events:      cfg.LogEvents,
	}, writer, fallback)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	srv := chat.NewServer(cfg, journal, logger)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		srv.Stop()
	case <-srv.Done():
	}

	writer.Stop()
	writer.Wait()
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
