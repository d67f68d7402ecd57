package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/internal/server"
	"github.com/RosanaConstantin/cna-introspect/product-service/api"
	"github.com/RosanaConstantin/cna-introspect/product-service/config"
	"github.com/RosanaConstantin/cna-introspect/product-service/publish"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(logging.Options{
		Service: cfg.ServiceName,
		Level:   cfg.Level,
		Debug:   cfg.Debug,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var substrate publish.Substrate
	if cfg.QueueEnabled() {
		q, err := publish.NewQueueClient(cfg.ConnectionString, cfg.EventsQueue, cfg.PubSubName, cfg.ServiceName)
		if err != nil {
			logger.Fatalf("queue: %v", err)
		}
		substrate = q
		logger.WithField("queue", cfg.EventsQueue).Info("Publishing through storage queue")
	} else {
		substrate = publish.NewDaprClient(cfg.DaprURL(), cfg.PubSubName, cfg.Publish.Timeout)
		logger.WithField("daprUrl", cfg.DaprURL()).Info("Publishing through Dapr sidecar")
	}

	publisher := publish.NewPublisher(substrate, cfg.Topic, publish.RetryConfig{
		MaxAttempts:    cfg.Publish.MaxAttempts,
		BaseDelay:      cfg.Publish.BaseDelay,
		AttemptTimeout: cfg.Publish.Timeout,
	}, logger, reg)

	e := server.New(server.Options{
		Service:  cfg.ServiceName,
		Version:  cfg.ServiceVersion,
		Logger:   logger,
		Registry: reg,
	})
	api.Register(e, api.Options{
		Publisher:  publisher,
		Logger:     logger,
		RetryAfter: cfg.RetryAfterSeconds(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithField("port", cfg.Port).Info("Product Service started")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
	logger.Info("Product Service stopped")
}
