package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/Adeeb-7067/Simple-chat-app/internal/server"
)

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger, err := server.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	server.RegisterMetrics(prometheus.DefaultRegisterer)

	hub := server.NewHub(cfg, logger.Named("hub"))
	go hub.Run()

	handlers := server.NewHandlers(hub, cfg, logger.Named("http"))
	router := server.NewRouter(handlers, logger.Named("http"))
	srv := server.NewHTTPServer(cfg.Addr(), router)

	go func() {
		if err := server.StartServer(srv, logger); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// SIGINT and SIGTERM take the same graceful path.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	// Notify and drain the WebSocket clients first, then stop the listener.
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", zap.Error(err))
	}
	if err := server.ShutdownServer(srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
}
