package rdx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carsucart/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OrderEventsChannel carries order status changes between API instances.
const OrderEventsChannel = "order-events"

// Connect returns a client after a successful PING.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password, // Empty if no password
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Cache stores rendered listing pages.
type Cache struct {
	conn   *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCache(conn *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{conn: conn, prefix: prefix, ttl: ttl}
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.conn.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, val []byte) error {
	return c.conn.Set(ctx, c.prefix+key, val, c.ttl).Err()
}

// Invalidate drops every key under the cache prefix.
func (c *Cache) Invalidate(ctx context.Context) error {
	iter := c.conn.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.conn.Del(ctx, keys...).Err()
}

// Bridge fans order events out through Redis so every instance's
// websocket hub sees them.
type Bridge struct {
	conn *redis.Client
	log  *zap.Logger
}

func NewBridge(conn *redis.Client, log *zap.Logger) *Bridge {
	return &Bridge{conn: conn, log: log}
}

func (b *Bridge) PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(ctx, OrderEventsChannel, data).Err()
}

// Subscribe delivers events to deliver until ctx is cancelled.
func (b *Bridge) Subscribe(ctx context.Context, deliver func(models.OrderEvent)) error {
	sub := b.conn.Subscribe(ctx, OrderEventsChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", OrderEventsChannel, err)
	}
	b.log.Info("listening for order events", zap.String("channel", OrderEventsChannel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("order event subscription closed")
			}
			var ev models.OrderEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("bad order event payload", zap.Error(err))
				continue
			}
			deliver(ev)
		}
	}
}
