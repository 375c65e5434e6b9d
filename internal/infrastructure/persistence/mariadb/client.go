// Package mariadb 提供实例数据库服务器（MariaDB）的只读探测
package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tenant-provisioner/internal/config"
)

var tracer = otel.Tracer("mariadb")

// sizeQuery 统计 schema 的数据与索引占用（MB）
const sizeQuery = `SELECT COALESCE(ROUND(SUM(data_length + index_length) / 1024 / 1024, 2), 0)
FROM information_schema.tables WHERE table_schema = ?`

// Client MariaDB 客户端
type Client struct {
	db *sql.DB
}

// BuildDSN 根据配置生成 DSN
func BuildDSN(cfg *config.MariaDBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.RootUser
	mc.Passwd = cfg.RootPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = "information_schema"
	mc.ParseTime = true
	if cfg.DialTimeout > 0 {
		mc.Timeout = cfg.DialTimeout
	}
	return mc.FormatDSN()
}

// NewClient 创建 MariaDB 客户端
// 连接是惰性的，启动时不要求实例数据库可达
func NewClient(cfg *config.MariaDBConfig) (*Client, error) {
	db, err := sql.Open("mysql", BuildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open mariadb: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// NewClientWithDB 使用现有连接创建客户端
func NewClientWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "mariadb.Ping")
	defer span.End()

	if err := c.db.PingContext(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to ping mariadb: %w", err)
	}
	return nil
}

// SizeMB 返回 schema 占用（MB）
func (c *Client) SizeMB(ctx context.Context, schema string) (float64, error) {
	ctx, span := tracer.Start(ctx, "mariadb.SizeMB")
	defer span.End()
	span.SetAttributes(attribute.String("db.schema", schema))

	var size sql.NullFloat64
	if err := c.db.QueryRowContext(ctx, sizeQuery, schema).Scan(&size); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to query schema size: %w", err)
	}
	if !size.Valid {
		return 0, nil
	}
	return math.Round(size.Float64*100) / 100, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.db.Close()
}
