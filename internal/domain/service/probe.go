package service

import "context"

// SiteDatabase 实例数据库服务器访问
type SiteDatabase interface {
	Ping(ctx context.Context) error
	// SizeMB 返回 schema 占用（MB），schema 不存在时为 0
	SizeMB(ctx context.Context, schema string) (float64, error)
}

// Resolver DNS 解析（net.Resolver 满足该接口）
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}
