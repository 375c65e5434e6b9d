// Package redis 提供 Redis 缓存、任务进度与限流实现
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tenant-provisioner/internal/config"
)

var tracer = otel.Tracer("redis")

// connectAttempts 启动时等待 Redis 就绪的次数（容器编排下 worker 可能先于 Redis 启动）
const connectAttempts = 5

// Client 进度、去重键、限流与任务流共用的 Redis 客户端
type Client struct {
	rdb *redis.Client
}

// NewClient 创建客户端并等待 Redis 可用
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	var err error
	wait := 200 * time.Millisecond
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			return &Client{rdb: rdb}, nil
		}
		if attempt < connectAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", connectAttempts, err)
}

// NewClientFrom 包装已有连接
func NewClientFrom(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Redis 底层客户端，供 Streams 生产者/消费者使用
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close 关闭连接池
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck 就绪探针与平台探测共用
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	stats := c.rdb.PoolStats()
	span.SetAttributes(
		attribute.Int64("pool.total_conns", int64(stats.TotalConns)),
		attribute.Int64("pool.idle_conns", int64(stats.IdleConns)),
		attribute.Int64("pool.timeouts", int64(stats.Timeouts)),
	)

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

// IsNil 键不存在
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
