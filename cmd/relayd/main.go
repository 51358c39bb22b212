package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/daehyun-ko/chessduo/internal/config"
	"github.com/daehyun-ko/chessduo/internal/obslog"
	"github.com/daehyun-ko/chessduo/internal/relay"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis ping error: %v", err)
	}
	cancel()

	hub := relay.NewHub(relay.NewStore(rdb, cfg.RoomTTL()), obslog.L())
	srv := relay.NewServer(cfg.ListenAddr, hub, obslog.L())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		obslog.L().Info("relayd_shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			obslog.L().Error("relayd_serve_error", zap.Error(err))
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		obslog.L().Warn("relayd_shutdown_error", zap.Error(err))
	}
}
