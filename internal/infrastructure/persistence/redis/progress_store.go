package redis

import (
	"context"
	"time"

	"tenant-provisioner/internal/domain/entity"
)

// 缓存键前缀
const (
	provisioningKeyPrefix = "saas_provisioning:"
	moduleJobKeyPrefix    = "app_install:"
)

// DefaultProgressTTL 进度快照默认存活时间
const DefaultProgressTTL = 30 * time.Minute

// ProgressStore 任务进度存储
type ProgressStore struct {
	cache *Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewProgressStore 创建进度存储
func NewProgressStore(cache *Cache, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressStore{cache: cache, ttl: ttl, now: time.Now}
}

// ProvisioningKey 开通进度键
func ProvisioningKey(tenantID string) string {
	return provisioningKeyPrefix + tenantID
}

// ModuleJobKey 模块任务进度键
func ModuleJobKey(jobID string) string {
	return moduleJobKeyPrefix + jobID
}

// SetProvisioning 写入开通进度
func (s *ProgressStore) SetProvisioning(ctx context.Context, p *entity.ProvisioningProgress) error {
	p.UpdatedAt = s.now()
	return s.cache.Set(ctx, ProvisioningKey(p.TenantID), p, s.ttl)
}

// GetProvisioning 读取开通进度，不存在返回 nil
func (s *ProgressStore) GetProvisioning(ctx context.Context, tenantID string) (*entity.ProvisioningProgress, error) {
	var p entity.ProvisioningProgress
	found, err := s.cache.GetJSON(ctx, ProvisioningKey(tenantID), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SetModuleJob 写入模块任务进度
func (s *ProgressStore) SetModuleJob(ctx context.Context, p *entity.ModuleJobProgress) error {
	p.UpdatedAt = s.now()
	return s.cache.Set(ctx, ModuleJobKey(p.JobID), p, s.ttl)
}

// GetModuleJob 读取模块任务进度，不存在返回 nil
func (s *ProgressStore) GetModuleJob(ctx context.Context, jobID string) (*entity.ModuleJobProgress, error) {
	var p entity.ModuleJobProgress
	found, err := s.cache.GetJSON(ctx, ModuleJobKey(jobID), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}
