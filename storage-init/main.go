package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/config"
	"github.com/RosanaConstantin/cna-introspect/internal/logging"
)

type initConfig struct {
	OrdersTable string        `yaml:"orders_table" env:"ORDERS_TABLE"`
	Timeout     time.Duration `yaml:"timeout" env:"STORAGE_INIT_TIMEOUT" env-default:"1m"`

	config.Logging `yaml:"logging"`
	config.Storage `yaml:"storage"`
}

func main() {
	var cfg initConfig
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Options{Service: "storage-init", Level: cfg.Level, Debug: cfg.Debug})
	logger.Info("storage init starting")

	if cfg.ConnectionString == "" {
		logger.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	p, err := newAzureProvisioner(cfg.ConnectionString)
	if err != nil {
		logger.Fatalf("storage clients: %v", err)
	}
	if err := provision(ctx, p, logger, []string{cfg.OrdersTable}, []string{cfg.EventsQueue}); err != nil {
		logger.Fatalf("provision: %v", err)
	}

	logger.Info("storage init complete")
}
