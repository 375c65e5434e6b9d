// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tenant-provisioner/internal/domain/entity"
)

// activeSubdomainIndex 子域名在“占用”状态下唯一
const activeSubdomainIndex = "uniq_tenants_active_subdomain"

// Migrate 同步表结构并创建部分唯一索引
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Migrate")
	defer span.End()

	db := c.db.WithContext(ctx)
	if err := db.AutoMigrate(&entity.Plan{}, &entity.Subscription{}, &entity.Tenant{}, &entity.Backup{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := db.Exec(activeSubdomainIndexDDL()).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create subdomain index: %w", err)
	}
	return nil
}

// activeSubdomainIndexDDL 生成部分唯一索引语句
func activeSubdomainIndexDDL() string {
	released := make([]string, len(entity.ReleasedStatuses))
	for i, s := range entity.ReleasedStatuses {
		released[i] = pq.QuoteLiteral(string(s))
	}
	return fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (subdomain) WHERE status NOT IN (%s)",
		pq.QuoteIdentifier(activeSubdomainIndex),
		pq.QuoteIdentifier(entity.Tenant{}.TableName()),
		strings.Join(released, ", "),
	)
}
