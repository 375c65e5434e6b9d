package lifecycle

import (
	"context"
	"strconv"
	"strings"
	"time"

	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/logger"
)

// SiteHealth 站点健康检查结果
type SiteHealth struct {
	SiteName     string `json:"site_name"`
	Status       string `json:"status"`
	SiteExists   bool   `json:"site_exists"`
	IsHealthy    bool   `json:"is_healthy"`
	DoctorOutput string `json:"doctor_output,omitempty"`
}

// SiteMetrics 站点资源占用
type SiteMetrics struct {
	TenantID  string  `json:"company_id"`
	SiteName  string  `json:"site_name"`
	DBName    string  `json:"db_name"`
	DBSizeMB  float64 `json:"db_size_mb"`
	StorageMB float64 `json:"storage_mb"`
}

// SiteInspector 站点健康与资源查询
type SiteInspector struct {
	runner       service.CommandRunner
	workspace    service.SiteWorkspace
	db           service.SiteDatabase
	cmds         bench.Commands
	probeTimeout time.Duration
}

// NewSiteInspector 创建站点检查器
func NewSiteInspector(runner service.CommandRunner, workspace service.SiteWorkspace, db service.SiteDatabase, binary string, probeTimeout time.Duration) *SiteInspector {
	return &SiteInspector{
		runner:       runner,
		workspace:    workspace,
		db:           db,
		cmds:         bench.NewCommands(binary),
		probeTimeout: probeTimeout,
	}
}

// Health 站点目录存在时运行 doctor
func (i *SiteInspector) Health(ctx context.Context, tenant *entity.Tenant) (*SiteHealth, error) {
	if tenant.SiteName == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("no site configured")
	}
	h := &SiteHealth{
		SiteName:   tenant.SiteName,
		Status:     string(tenant.Status),
		SiteExists: i.workspace.SiteExists(tenant.SiteName),
	}
	if !h.SiteExists {
		return h, nil
	}
	res := i.runner.Run(ctx, i.cmds.Doctor(tenant.SiteName), i.probeTimeout)
	h.DoctorOutput = res.Stdout
	h.IsHealthy = res.OK()
	return h, nil
}

// Metrics 数据库大小与文件占用，查询失败按 0 处理
func (i *SiteInspector) Metrics(ctx context.Context, tenant *entity.Tenant) (*SiteMetrics, error) {
	if tenant.SiteName == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("no site configured")
	}
	m := &SiteMetrics{
		TenantID: tenant.ID,
		SiteName: tenant.SiteName,
		DBName:   tenant.DBName,
	}
	if m.DBName == "" {
		m.DBName = entity.SiteDBName(tenant.SiteName)
	}

	if size, err := i.db.SizeMB(ctx, m.DBName); err != nil {
		logger.Warn(ctx, "failed to read site database size", "db_name", m.DBName, "error", err.Error())
	} else {
		m.DBSizeMB = size
	}

	if i.workspace.SiteExists(tenant.SiteName) {
		res := i.runner.Run(ctx, bench.DiskUsage(i.workspace.SiteDir(tenant.SiteName)), i.probeTimeout)
		if res.OK() {
			m.StorageMB = parseDiskUsage(res.Stdout)
		}
	}
	return m, nil
}

// parseDiskUsage 解析 du -sm 输出的第一列
func parseDiskUsage(out string) float64 {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}
