package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/RosanaConstantin/cna-introspect/internal/logging"
	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
)

type orderBackend interface {
	Save(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
}

// Cache wraps an order store with Redis-backed read caching. Redis failures
// fall back to the backing store and are logged at warn.
type Cache struct {
	base   orderBackend
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache creates a caching wrapper around base.
func NewCache(base orderBackend, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *Cache) Save(ctx context.Context, o domain.Order) error {
	if err := c.base.Save(ctx, o); err != nil {
		return err
	}
	c.store(ctx, o)
	return nil
}

func (c *Cache) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if o, ok := c.load(ctx, orderID); ok {
		return o, nil
	}
	o, err := c.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	c.store(ctx, o)
	return o, nil
}

func (c *Cache) load(ctx context.Context, orderID string) (domain.Order, bool) {
	if c.redis == nil {
		return domain.Order{}, false
	}
	data, err := c.redis.Get(ctx, orderCacheKey(orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(err, orderID, "Order cache read failed")
			c.evict(ctx, orderID)
		}
		return domain.Order{}, false
	}
	var o domain.Order
	if err := sonic.Unmarshal(data, &o); err != nil {
		c.warn(err, orderID, "Corrupt order cache entry")
		c.evict(ctx, orderID)
		return domain.Order{}, false
	}
	return o, true
}

func (c *Cache) store(ctx context.Context, o domain.Order) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(o)
	if err != nil {
		c.warn(err, o.OrderID, "Order cache encode failed")
		return
	}
	if err := c.redis.Set(ctx, orderCacheKey(o.OrderID), data, c.ttl).Err(); err != nil {
		c.warn(err, o.OrderID, "Order cache write failed")
	}
}

func (c *Cache) evict(ctx context.Context, orderID string) {
	if err := c.redis.Del(ctx, orderCacheKey(orderID)).Err(); err != nil {
		c.warn(err, orderID, "Order cache evict failed")
	}
}

func (c *Cache) warn(err error, orderID, msg string) {
	c.logger.WithFields(log.Fields{
		logging.FieldError: err.Error(),
		"orderId":          orderID,
	}).Warn(msg)
}

func orderCacheKey(orderID string) string {
	return "orders:" + orderID
}
