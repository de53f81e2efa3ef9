// Package prefetch queues region codes on a Redis stream so that a pool of
// warmers can populate the forecast cache ahead of user requests.
package prefetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"tenki/internal/cache"
	"tenki/internal/models"
)

// Message is the JSON body stored under the "data" field of a stream entry
type Message struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Publisher appends region codes to the prefetch stream
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Publish serializes one region and adds it to the stream
func (p *Publisher) Publish(ctx context.Context, node models.RegionNode) error {
	data, err := json.Marshal(Message{Code: node.Code, Name: node.DisplayName})
	if err != nil {
		return fmt.Errorf("failed to serialize region %s: %w", node.Code, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish region %s: %w", node.Code, err)
	}
	return nil
}

// PublishAll publishes every node not in skip and returns how many were queued
func (p *Publisher) PublishAll(ctx context.Context, nodes []models.RegionNode, skip map[string]bool) (int, error) {
	queued := 0
	for _, node := range nodes {
		if skip[node.Code] {
			continue
		}
		if err := p.Publish(ctx, node); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// Warmer populates the cache for one region
type Warmer interface {
	Forecast(ctx context.Context, code string) ([]models.ForecastRecord, error)
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int64
	// Block is how long a read waits for new entries. Negative means no wait.
	Block    time.Duration
}

// Consumer reads region codes from the stream through a consumer group
type Consumer struct {
	client *redis.Client
	warmer Warmer
	cfg    ConsumerConfig
}

func NewConsumer(client *redis.Client, warmer Warmer, cfg ConsumerConfig) *Consumer {
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{client: client, warmer: warmer, cfg: cfg}
}

// EnsureGroup creates the stream and consumer group if they do not exist
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Run retries this consumer's pending entries once, then reads new entries
// until ctx is canceled
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	if n, err := c.readBatch(ctx, "0"); err != nil {
		log.Printf("Error reading pending entries: %v", err)
	} else if n > 0 {
		log.Printf("Retried %d pending regions", n)
	}

	for ctx.Err() == nil {
		if _, err := c.readBatch(ctx, ">"); err != nil && ctx.Err() == nil {
			log.Printf("Error reading from Redis: %v", err)
			time.Sleep(time.Second)
		}
	}
	return nil
}

// readBatch handles up to Batch entries starting at id and returns how many
// were acknowledged
func (c *Consumer) readBatch(ctx context.Context, id string) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, id},
		Count:    c.cfg.Batch,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, m := range stream.Messages {
			if ctx.Err() != nil {
				return acked, nil
			}
			if !c.handle(ctx, m) {
				continue
			}
			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, m.ID).Err(); err != nil {
				log.Printf("Failed to ack %s: %v", m.ID, err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

// handle warms one region and reports whether the entry is done. Fetch and
// store failures stay pending so a later run retries them.
func (c *Consumer) handle(ctx context.Context, m redis.XMessage) bool {
	raw, ok := m.Values["data"].(string)
	if !ok {
		log.Printf("Dropping entry %s without data field", m.ID)
		return true
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg.Code == "" {
		log.Printf("Dropping malformed entry %s: %v", m.ID, err)
		return true
	}

	records, err := c.warmer.Forecast(ctx, msg.Code)
	switch {
	case err == nil:
		log.Printf("Warmed %s (%s): %d records", msg.Code, msg.Name, len(records))
		return true
	case errors.Is(err, cache.ErrNoForecastData):
		log.Printf("No forecast data for %s, skipping", msg.Code)
		return true
	default:
		log.Printf("Failed to warm %s: %v", msg.Code, err)
		return false
	}
}
