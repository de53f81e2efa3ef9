package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAreaURL     = "https://www.jma.go.jp/bosai/common/const/area.json"
	DefaultForecastURL = "https://www.jma.go.jp/bosai/forecast/data/forecast/%s.json"
)

var (
	instance *Config
	once     sync.Once
)

// Config - loaded once per process from a yaml file
type Config struct {
	JMA struct {
		AreaURL        string        `yaml:"area_url"`
		ForecastURL    string        `yaml:"forecast_url"` // printf template, %s is the region code
		RequestTimeout time.Duration `yaml:"request_timeout"`
		RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables limiting
		Burst          int           `yaml:"burst"`
	} `yaml:"jma"`
	Store struct {
		Driver string `yaml:"driver"` // mysql, postgres or memory
	} `yaml:"store"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Lock struct {
		Backend string        `yaml:"backend"` // local or redis
		TTL     time.Duration `yaml:"ttl"`
		Poll    time.Duration `yaml:"poll"`
	} `yaml:"lock"`
	Prefetch struct {
		Stream   string `yaml:"stream"`
		Group    string `yaml:"group"`
		Consumer string `yaml:"consumer"`
		Batch    int64  `yaml:"batch"`
	} `yaml:"prefetch"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		_ = godotenv.Load(".env")

		instance = &Config{}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		instance.applyDefaults()

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

func (c *Config) applyDefaults() {
	if c.JMA.AreaURL == "" {
		c.JMA.AreaURL = DefaultAreaURL
	}
	if c.JMA.ForecastURL == "" {
		c.JMA.ForecastURL = DefaultForecastURL
	}
	if c.JMA.RequestTimeout == 0 {
		c.JMA.RequestTimeout = 10 * time.Second
	}
	if c.JMA.RateLimit > 0 && c.JMA.Burst <= 0 {
		c.JMA.Burst = 1
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "mysql"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = "local"
	}
	if c.Lock.TTL <= 0 {
		c.Lock.TTL = 30 * time.Second
	}
	if c.Lock.Poll <= 0 {
		c.Lock.Poll = 100 * time.Millisecond
	}
	if c.Prefetch.Stream == "" {
		c.Prefetch.Stream = "forecast_prefetch"
	}
	if c.Prefetch.Group == "" {
		c.Prefetch.Group = "forecast_warmers"
	}
	if c.Prefetch.Consumer == "" {
		c.Prefetch.Consumer = "warmer-1"
	}
	if c.Prefetch.Batch <= 0 {
		c.Prefetch.Batch = 10
	}
}

func (c *Config) validate() error {
	if !strings.Contains(c.JMA.ForecastURL, "%s") {
		return fmt.Errorf("jma.forecast_url must contain %%s for the region code")
	}
	switch c.Store.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("store.driver must be one of mysql, postgres, memory: got %q", c.Store.Driver)
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("lock.backend must be local or redis: got %q", c.Lock.Backend)
	}
	if c.JMA.RateLimit < 0 {
		return fmt.Errorf("jma.rate_limit cannot be negative")
	}
	if c.JMA.RequestTimeout <= 0 {
		return fmt.Errorf("jma.request_timeout must be positive")
	}
	// a region lock must outlive the fetch it guards
	if c.JMA.RequestTimeout >= c.Lock.TTL {
		return fmt.Errorf("jma.request_timeout (%v) must be shorter than lock.ttl (%v)", c.JMA.RequestTimeout, c.Lock.TTL)
	}
	return nil
}
