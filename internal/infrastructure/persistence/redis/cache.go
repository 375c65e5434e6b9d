package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// Cache JSON 值缓存，承载任务进度与套餐读缓存
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// GetJSON 读取并反序列化，未命中返回 (false, nil)
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	ctx, span := tracer.Start(ctx, "cache.Get")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	raw, err := c.client.rdb.Get(ctx, key).Bytes()
	if IsNil(err) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set 序列化写入；ttl 为 0 表示不过期
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "cache.Set")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key), attribute.Int64("cache.ttl_ms", ttl.Milliseconds()))

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.client.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Delete 删除键
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := tracer.Start(ctx, "cache.Delete")
	defer span.End()
	return c.client.rdb.Del(ctx, keys...).Err()
}

// LoadThrough 读缓存，未命中时经 singleflight 回源并回填
// load 返回 nil 表示记录不存在，不做负缓存；缓存读写失败返回 error，由调用方决定是否直接回源
func LoadThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, error) {
	var cached T
	hit, err := c.GetJSON(ctx, key, &cached)
	if err != nil {
		return nil, err
	}
	if hit {
		return &cached, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil || loaded == nil {
			return loaded, err
		}
		if err := c.Set(ctx, key, loaded, ttl); err != nil {
			return nil, err
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}
