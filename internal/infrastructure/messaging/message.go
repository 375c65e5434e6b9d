// Package messaging 提供消息队列实现
package messaging

import (
	"encoding/json"
	"time"
)

// Message 流中的任务、通知或审计记录；ID 对任务而言即 job id
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	TenantID  string            `json:"tenant_id"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 序列化载荷并生成消息
func NewMessage(id, msgType, tenantID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		TenantID:  tenantID,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 写入元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string, 4)
	}
	m.Metadata[key] = value
}

// GetMetadata 读取元数据，不存在返回空串
func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

// UnmarshalPayload 解析载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Age 自入队起经过的时间；重投的消息包含此前的重试等待
func (m *Message) Age(now time.Time) time.Duration {
	if m.CreatedAt.IsZero() || now.Before(m.CreatedAt) {
		return 0
	}
	return now.Sub(m.CreatedAt)
}

// 元数据键
const (
	MetaDedupKey  = "dedup_key"
	MetaRequestID = "request_id"
	MetaTraceID   = "trace_id"
	MetaTimeout   = "timeout"
)

// Stream 流名称
type Stream string

const (
	// StreamProvisioning 站点开通，长任务单独一个流，避免阻塞备份与模块任务
	StreamProvisioning Stream = "stream:tenant:provisioning"
	// StreamSiteOps 备份、恢复与模块安装
	StreamSiteOps       Stream = "stream:tenant:site-ops"
	StreamNotifications Stream = "stream:notifications"
	StreamAuditLog      Stream = "stream:audit:log"
)

// DLQStream 对应死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组
type ConsumerGroup string

const (
	ConsumerGroupProvisioner ConsumerGroup = "cg-provisioner"
	ConsumerGroupSiteOps     ConsumerGroup = "cg-site-ops"
)

// BackoffConfig 重投退避
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 10s 起步，翻倍，封顶 5m
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: 10 * time.Second, Max: 5 * time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 retryCount 次重投前的等待时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	wait := c.Initial
	for i := 0; i < retryCount && wait < c.Max; i++ {
		wait = time.Duration(float64(wait) * c.Multiplier)
	}
	if wait > c.Max {
		return c.Max
	}
	return wait
}
