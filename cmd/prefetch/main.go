package main

import (
	"context"
	"flag"
	"log"

	"tenki/internal/api"
	"tenki/internal/area"
	"tenki/internal/config"
	"tenki/internal/database"
	"tenki/internal/prefetch"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	all := flag.Bool("all", false, "queue regions that already have data too")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()

	// Initialize Redis client
	redisClient, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("Failed to configure Redis: %v", err)
	}
	defer redisClient.Close()

	client := api.NewJMAClientFromConfig(cfg)
	raw, err := client.GetAreaDocument(ctx)
	if err != nil {
		log.Fatalf("Failed to load area metadata: %v", err)
	}
	doc, err := area.Parse(raw)
	if err != nil {
		log.Fatalf("Failed to parse area metadata: %v", err)
	}
	nodes := area.Nodes(doc, area.BuildIndex(doc))

	// Regions with any stored row are warm for good
	skip := map[string]bool{}
	if !*all {
		store, err := database.Open(ctx, cfg.Store.Driver)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		skip, err = store.WarmRegions(ctx)
		store.Close()
		if err != nil {
			log.Fatalf("Failed to get regions with data: %v", err)
		}
	}

	publisher := prefetch.NewPublisher(redisClient, cfg.Prefetch.Stream)
	queued, err := publisher.PublishAll(ctx, nodes, skip)
	if err != nil {
		log.Fatalf("Failed to publish regions after %d: %v", queued, err)
	}

	log.Printf("Queued %d of %d regions on %s. Exiting", queued, len(nodes), cfg.Prefetch.Stream)
}
