// Command dexmail-dev runs the stub backend the client is developed
// against: auth, mail/transfer and embedded-provider endpoints on one
// port. With REDIS_URL set it also publishes session events to a
// Redis stream, the same wiring the client's event publisher reads.
package main

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	dexmail "github.com/dexmail/dexmail-go"
	"github.com/dexmail/dexmail-go/adapters/events"
	"github.com/dexmail/dexmail-go/internal/devstub"
	"github.com/dexmail/dexmail-go/ports"
)

func main() {
	cfg, err := dexmail.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var eventPub ports.EventPublisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse Redis URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			logger.Error("failed to create Redis publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		eventPub = events.NewWatermillPublisher(publisher)
		logger.Info("session events will be published to Redis stream")
	}

	server, err := devstub.New(cfg.PlatformDomain)
	if err != nil {
		logger.Error("failed to create stub server", "error", err)
		os.Exit(1)
	}
	if eventPub != nil {
		server.SetEventPublisher(eventPub)
	}

	logger.Info("dev backend listening", "addr", cfg.ListenAddr, "domain", cfg.PlatformDomain)
	if err := server.Router().Run(cfg.ListenAddr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
