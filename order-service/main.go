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
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/internal/server"
	"github.com/RosanaConstantin/cna-introspect/order-service/api"
	"github.com/RosanaConstantin/cna-introspect/order-service/config"
	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
	"github.com/RosanaConstantin/cna-introspect/order-service/queue"
	"github.com/RosanaConstantin/cna-introspect/order-service/storage"
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

	var store domain.OrderStore = storage.NewMemoryStore()
	if cfg.TableEnabled() {
		ts, err := storage.NewTableStore(cfg.ConnectionString, cfg.OrdersTable)
		if err != nil {
			logger.Fatalf("table storage: %v", err)
		}
		store = ts
		logger.WithField("table", cfg.OrdersTable).Info("Storing orders in table storage")
	}

	var ledger domain.Ledger = storage.NewMemoryLedger(cfg.Redis.IdempotencyTTL)
	if cfg.Redis.URL != "" {
		redisOpts, err := cfg.Redis.RedisOptions()
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		ledger = storage.NewRedisLedger(rc, cfg.Redis.IdempotencyTTL)
		store = storage.NewCache(store, rc, cfg.Redis.CacheTTL, logger)
		logger.Info("Using redis idempotency ledger")
	}

	proc := domain.NewProcessor(store, ledger, domain.ProcessorConfig{Delay: cfg.ProcessingDelay}, logger, reg)

	e := server.New(server.Options{
		Service:   cfg.ServiceName,
		Version:   cfg.ServiceVersion,
		Logger:    logger,
		Registry:  reg,
		ErrorBody: func(body map[string]any) { body["success"] = false },
	})
	api.Register(e, api.Options{
		Handler: proc,
		Orders:  store,
		Subscription: api.Subscription{
			PubSubName: cfg.PubSubName,
			Topic:      cfg.Topic,
			Route:      cfg.Route,
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollerDone := make(chan struct{})
	if cfg.QueueEnabled() {
		poller, err := queue.NewPoller(cfg.ConnectionString, cfg.EventsQueue, proc, queue.Config{
			PollInterval:      cfg.Queue.PollInterval,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			BatchSize:         cfg.Queue.BatchSize,
			MaxDequeueCount:   cfg.Queue.MaxDequeueCount,
		}, logger)
		if err != nil {
			logger.Fatalf("queue: %v", err)
		}
		go func() {
			defer close(pollerDone)
			_ = poller.Run(ctx)
		}()
	} else {
		close(pollerDone)
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Order Service started")
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
	<-pollerDone
	logger.Info("Order Service stopped")
}
