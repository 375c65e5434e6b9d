// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tenant-provisioner/internal/domain/service"
)

const dedupPrefix = "jobdedup:"

// Queue 基于 Redis Stream 的异步任务队列，去重键用 SET NX 实现
type Queue struct {
	client   *redis.Client
	producer *Producer
	slack    time.Duration
}

// NewQueue 创建任务队列
// slack 为去重键在任务超时之外额外保留的时间，覆盖排队与重试等待
func NewQueue(client *redis.Client, producer *Producer, slack time.Duration) *Queue {
	if slack <= 0 {
		slack = 15 * time.Minute
	}
	return &Queue{client: client, producer: producer, slack: slack}
}

// StreamFor 任务类型对应的流
func StreamFor(jobType string) Stream {
	if jobType == service.JobProvision {
		return StreamProvisioning
	}
	return StreamSiteOps
}

func redisDedupKey(key string) string {
	return dedupPrefix + key
}

// Enqueue 入队
func (q *Queue) Enqueue(ctx context.Context, job service.Job) (string, error) {
	jobID := job.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	if job.DedupKey != "" {
		ok, err := q.client.SetNX(ctx, redisDedupKey(job.DedupKey), jobID, job.Timeout+q.slack).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire dedup key: %w", err)
		}
		if !ok {
			return "", service.ErrDuplicateJob
		}
	}

	msg, err := NewMessage(jobID, job.Type, job.TenantID, job.Payload)
	if err != nil {
		q.releaseQuietly(ctx, job.DedupKey)
		return "", fmt.Errorf("failed to build message: %w", err)
	}
	if job.DedupKey != "" {
		msg.SetMetadata(MetaDedupKey, job.DedupKey)
	}
	if job.Timeout > 0 {
		msg.SetMetadata(MetaTimeout, job.Timeout.String())
	}

	if _, err := q.producer.Publish(ctx, StreamFor(job.Type), msg); err != nil {
		q.releaseQuietly(ctx, job.DedupKey)
		return "", err
	}
	return jobID, nil
}

// Release 释放去重键
func (q *Queue) Release(ctx context.Context, dedupKey string) error {
	if dedupKey == "" {
		return nil
	}
	if err := q.client.Del(ctx, redisDedupKey(dedupKey)).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}

// Held 去重键是否被占用
func (q *Queue) Held(ctx context.Context, dedupKey string) (bool, error) {
	n, err := q.client.Exists(ctx, redisDedupKey(dedupKey)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return n > 0, nil
}

func (q *Queue) releaseQuietly(ctx context.Context, dedupKey string) {
	_ = q.Release(ctx, dedupKey)
}
