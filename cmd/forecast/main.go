package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tenki/internal/api"
	"tenki/internal/area"
	"tenki/internal/cache"
	"tenki/internal/config"
	"tenki/internal/database"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	code := flag.String("code", "", "region code to show, e.g. 130000")
	list := flag.Bool("list", false, "list selectable regions")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := api.NewJMAClientFromConfig(cfg)

	raw, err := client.GetAreaDocument(ctx)
	if err != nil {
		log.Fatalf("エリアデータの読み込みに失敗しました: %v", err)
	}
	doc, err := area.Parse(raw)
	if errors.Is(err, area.ErrEmptyMetadata) {
		log.Printf("Warning: %v", err)
	}
	idx := area.BuildIndex(doc)

	if *list {
		printGroups(os.Stdout, area.Groups(doc, idx))
		return
	}

	if *code == "" {
		fmt.Fprintln(os.Stderr, "地域を選択すると天気データが表示されます (-code or -list)")
		os.Exit(2)
	}

	store, err := database.Open(ctx, cfg.Store.Driver)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	coordinator := cache.NewCoordinator(store, client)
	records, err := coordinator.Forecast(ctx, *code)
	if err != nil {
		log.Printf("Forecast for %s failed: %v", *code, err)
		fmt.Println("天気データの取得に失敗しました")
		return
	}

	printCards(os.Stdout, *code, idx.Name(*code), records)
}
