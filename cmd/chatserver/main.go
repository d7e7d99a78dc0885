package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luciancaetano/kephaschat/chat"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger := newLogger(os.Getenv("CHAT_LOG_FORMAT"), os.Getenv("CHAT_LOG_LEVEL"))
	slog.SetDefault(logger)

	cfg := chat.ServerConfigFromEnv()
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := chat.NewServer(cfg)

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	select {
	case err := <-done:
		// Start only returns early on a bind failure.
		if err != nil {
			logger.Error("chat server failed", "error", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown did not complete", "error", err)
		os.Exit(1)
	}
	if err := <-done; err != nil {
		logger.Error("chat server stopped with error", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. format is "json" or "text"; level
// is one of debug, info, warn or error.
func newLogger(format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
