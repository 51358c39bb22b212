package main

import (
	"context"
	"log"
	"time"

	appcfg "github.com/daehyun-ko/chessduo/internal/config"
	"github.com/daehyun-ko/chessduo/internal/relayclient"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.RelayHTTPURL == "" {
		log.Fatal("RELAY_HTTP_URL is required")
	}

	probe := relayclient.NewProbe(cfg.RelayHTTPURL, relayclient.WithProbeTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	health, err := probe.Check(ctx)
	if err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Printf("/healthz ok: status=%s activeRooms=%d", health.Status, health.ActiveRooms)

	if cfg.RelayURL == "" {
		log.Println("RELAY_URL not set; skipping WS check")
		return
	}

	ws := relayclient.New(cfg.RelayURL, 0, nil)
	ws.OnStateChange(func(state relayclient.State) {
		log.Printf("ws state: %s", state)
	})
	if err := ws.Connect(ctx); err != nil {
		log.Fatalf("ws connect error: %v", err)
	}
	time.Sleep(time.Second)
	closeCtx, cancelClose := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelClose()
	if err := ws.Close(closeCtx); err != nil {
		log.Printf("ws close error: %v", err)
	}
	log.Println("ws check ok")
}
