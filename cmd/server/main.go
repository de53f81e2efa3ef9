package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"tenki/internal/api"
	"tenki/internal/area"
	"tenki/internal/cache"
	"tenki/internal/config"
	"tenki/internal/database"
	"tenki/internal/server"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewJMAClientFromConfig(cfg)

	// without area metadata there is nothing to select, so this is fatal
	raw, err := client.GetAreaDocument(ctx)
	if err != nil {
		log.Fatalf("Failed to load area metadata: %v", err)
	}
	doc, err := area.Parse(raw)
	if errors.Is(err, area.ErrEmptyMetadata) {
		log.Printf("Warning: %v", err)
	}

	store, err := database.Open(ctx, cfg.Store.Driver)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	opts := []cache.Option{}
	if cfg.Lock.Backend == "redis" {
		redisClient, err := config.NewRedisClient()
		if err != nil {
			log.Fatalf("Failed to configure Redis: %v", err)
		}
		defer redisClient.Close()
		opts = append(opts, cache.WithLocker(cache.NewRedisLocker(redisClient, cfg.Lock.TTL, cfg.Lock.Poll)))
	}

	coordinator := cache.NewCoordinator(store, client, opts...)
	srv := server.NewServer(cfg.Server.Addr, doc, coordinator)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
