// Package config holds the product service settings.
package config

import (
	"fmt"
	"time"

	"github.com/RosanaConstantin/cna-introspect/internal/config"
)

// Config is loaded once at startup and handed to each component.
type Config struct {
	Port           string `yaml:"port" env:"PORT" env-default:"3000"`
	ServiceName    string `yaml:"service_name" env:"SERVICE_NAME" env-default:"product-service"`
	ServiceVersion string `yaml:"service_version" env:"SERVICE_VERSION" env-default:"1.0.0"`

	DaprHost     string `yaml:"dapr_host" env:"DAPR_HOST" env-default:"localhost"`
	DaprHTTPPort string `yaml:"dapr_http_port" env:"DAPR_HTTP_PORT" env-default:"3500"`
	PubSubName   string `yaml:"pubsub_name" env:"PUBSUB_NAME" env-default:"pubsub"`
	Topic        string `yaml:"topic" env:"PUBSUB_TOPIC" env-default:"product-events"`

	Publish Publish `yaml:"publish"`

	config.Logging `yaml:"logging"`
	config.Storage `yaml:"storage"`
}

// Publish tunes the publisher's retry loop.
type Publish struct {
	MaxAttempts int           `yaml:"max_attempts" env:"PUBLISH_MAX_ATTEMPTS" env-default:"3"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"PUBLISH_BASE_DELAY" env-default:"1s"`
	Timeout     time.Duration `yaml:"timeout" env:"PUBLISH_TIMEOUT" env-default:"5s"`
	RetryAfter  time.Duration `yaml:"retry_after" env:"PUBLISH_RETRY_AFTER" env-default:"30s"`
}

const maxPublishAttempts = 10

// Load reads the configuration and rejects values the publisher cannot use.
func Load() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Publish.MaxAttempts <= 0 || c.Publish.MaxAttempts > maxPublishAttempts {
		return fmt.Errorf("invalid PUBLISH_MAX_ATTEMPTS: must be between 1 and %d", maxPublishAttempts)
	}
	if c.Publish.BaseDelay < 0 {
		return fmt.Errorf("invalid PUBLISH_BASE_DELAY: must not be negative")
	}
	if c.Publish.Timeout <= 0 {
		return fmt.Errorf("invalid PUBLISH_TIMEOUT: must be greater than zero")
	}
	return nil
}

// DaprURL is the sidecar's HTTP base address.
func (c Config) DaprURL() string {
	return fmt.Sprintf("http://%s:%s", c.DaprHost, c.DaprHTTPPort)
}

// RetryAfterSeconds is the hint sent with 503 responses.
func (c Config) RetryAfterSeconds() int {
	s := int(c.Publish.RetryAfter / time.Second)
	if s <= 0 {
		return 30
	}
	return s
}
