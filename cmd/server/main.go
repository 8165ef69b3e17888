package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalroom/signalroom/internal/server"
)

func main() {
	// Load local .env (dev only)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	config := server.NewConfigFromEnv()
	server.SetConfig(config)
	setupLogger(config.LogLevel)

	server.StartHub()

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(config.Port, mux)

	go func() {
		if err := server.StartServer(httpServer); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutdown signal received")
	if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}
	if err := server.GetHub().Shutdown(10 * time.Second); err != nil {
		slog.Error("Hub shutdown error", "err", err)
	}
}

func setupLogger(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: server.ParseLogLevel(level),
	})))
}
