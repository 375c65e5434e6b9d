package messaging

import (
	"context"

	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/pkg/logger"
)

// notificationPublisher 便于测试替换
type notificationPublisher interface {
	PublishNotification(ctx context.Context, n service.Notification) (string, error)
}

// StreamNotifier 将通知写入通知流，由下游服务投递邮件/站内信
type StreamNotifier struct {
	publisher notificationPublisher
}

// NewStreamNotifier 创建通知发送器
func NewStreamNotifier(producer *Producer) *StreamNotifier {
	return &StreamNotifier{publisher: producer}
}

// Notify 发布通知
func (n *StreamNotifier) Notify(ctx context.Context, note service.Notification) error {
	if note.CustomerID == "" && note.Recipient == "" {
		logger.Debug(ctx, "notification skipped, no recipient", "event", note.Event)
		return nil
	}
	if _, err := n.publisher.PublishNotification(ctx, note); err != nil {
		logger.Warn(ctx, "failed to publish notification", "event", note.Event, "error", err.Error())
		return err
	}
	return nil
}
