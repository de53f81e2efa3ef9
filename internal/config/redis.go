package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisConfig is the connection shared by the region lock and the prefetch
// stream. The stream and consumer group names live in Config.Prefetch.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// GetRedisConfig reads REDIS_URL, or REDIS_ADDR/REDIS_PASSWORD/REDIS_DB when no URL is set
func GetRedisConfig() RedisConfig {
	db := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			db = parsed
		}
	}

	return RedisConfig{
		URL:      os.Getenv("REDIS_URL"),
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

// Options converts the config into go-redis client options; a URL wins over the discrete fields
func (r RedisConfig) Options() (*redis.Options, error) {
	if r.URL != "" {
		opts, err := redis.ParseURL(r.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}, nil
}

// NewRedisClient builds a client from the environment
func NewRedisClient() (*redis.Client, error) {
	opts, err := GetRedisConfig().Options()
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
