// Package config holds the order service settings.
package config

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RosanaConstantin/cna-introspect/internal/config"
)

// Config is loaded once at startup and handed to each component.
type Config struct {
	Port           string `yaml:"port" env:"PORT" env-default:"3001"`
	ServiceName    string `yaml:"service_name" env:"SERVICE_NAME" env-default:"order-service"`
	ServiceVersion string `yaml:"service_version" env:"SERVICE_VERSION" env-default:"1.0.0"`

	PubSubName string `yaml:"pubsub_name" env:"PUBSUB_NAME" env-default:"pubsub"`
	Topic      string `yaml:"topic" env:"PUBSUB_TOPIC" env-default:"product-events"`
	Route      string `yaml:"route" env:"SUBSCRIPTION_ROUTE" env-default:"/api/orders/product-event"`

	ProcessingDelay time.Duration `yaml:"processing_delay" env:"PROCESSING_DELAY" env-default:"100ms"`
	OrdersTable     string        `yaml:"orders_table" env:"ORDERS_TABLE"`

	Redis Redis `yaml:"redis"`
	Queue Queue `yaml:"queue"`

	config.Logging `yaml:"logging"`
	config.Storage `yaml:"storage"`
}

// Redis configures the shared idempotency ledger and order cache.
type Redis struct {
	URL            string        `yaml:"url" env:"REDIS_URL"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL" env-default:"24h"`
	CacheTTL       time.Duration `yaml:"cache_ttl" env:"ORDER_CACHE_TTL" env-default:"5m"`
}

// Queue tunes the pull-mode poller.
type Queue struct {
	PollInterval      time.Duration `yaml:"poll_interval" env:"QUEUE_POLL_INTERVAL" env-default:"1s"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" env:"QUEUE_VISIBILITY_TIMEOUT" env-default:"30s"`
	BatchSize         int32         `yaml:"batch_size" env:"QUEUE_BATCH_SIZE" env-default:"16"`
	MaxDequeueCount   int64         `yaml:"max_dequeue_count" env:"QUEUE_MAX_DEQUEUE_COUNT" env-default:"5"`
}

// Load reads the configuration and rejects values the service cannot use.
func Load() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.ProcessingDelay < 0 {
		return Config{}, fmt.Errorf("invalid PROCESSING_DELAY: must not be negative")
	}
	if cfg.Redis.IdempotencyTTL <= 0 {
		return Config{}, fmt.Errorf("invalid IDEMPOTENCY_TTL: must be greater than zero")
	}
	if cfg.Queue.BatchSize < 1 || cfg.Queue.BatchSize > 32 {
		return Config{}, fmt.Errorf("invalid QUEUE_BATCH_SIZE: must be between 1 and 32")
	}
	if !strings.HasPrefix(cfg.Route, "/") {
		cfg.Route = "/" + cfg.Route
	}
	return cfg, nil
}

// TableEnabled reports whether orders are persisted to Azure Tables.
func (c Config) TableEnabled() bool {
	return c.ConnectionString != "" && c.OrdersTable != ""
}

// RedisOptions parses REDIS_URL. Both redis:// URLs and the
// "host:port,password=...,ssl=True" form are accepted.
func (r Redis) RedisOptions() (*redis.Options, error) {
	if r.URL == "" {
		return nil, fmt.Errorf("missing redis config")
	}
	if opts, err := redis.ParseURL(r.URL); err == nil {
		return opts, nil
	}
	parts := strings.Split(r.URL, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
