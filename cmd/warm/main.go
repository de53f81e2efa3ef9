package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tenki/internal/api"
	"tenki/internal/cache"
	"tenki/internal/config"
	"tenki/internal/database"
	"tenki/internal/prefetch"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("Failed to configure Redis: %v", err)
	}
	defer redisClient.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signal
	go func() {
		<-quit
		log.Println("Shutting down warm service...")
		cancel()
	}()

	store, err := database.Open(ctx, cfg.Store.Driver)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// several warmers may run, so region locks always go through Redis here
	coordinator := cache.NewCoordinator(store, api.NewJMAClientFromConfig(cfg),
		cache.WithLocker(cache.NewRedisLocker(redisClient, cfg.Lock.TTL, cfg.Lock.Poll)))

	consumer := prefetch.NewConsumer(redisClient, coordinator, prefetch.ConsumerConfig{
		Stream:   cfg.Prefetch.Stream,
		Group:    cfg.Prefetch.Group,
		Consumer: cfg.Prefetch.Consumer,
		Batch:    cfg.Prefetch.Batch,
	})

	log.Printf("Warm service started, reading from %s as %s. Press Ctrl+C to stop...", cfg.Prefetch.Stream, cfg.Prefetch.Consumer)

	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("Consumer error: %v", err)
	}

	log.Println("Warm service stopped")
}
