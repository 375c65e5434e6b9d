package provisioning

import (
	"context"
	"errors"
	"strings"
	"time"

	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
)

// ErrLockConflict 站点创建锁被正在运行的进程持有
var ErrLockConflict = errors.New("site creation lock conflict")

// lockConflictMarker bench 输出中表示锁冲突的片段
const lockConflictMarker = "could not be acquired"

// LockState 锁检查结果
type LockState int

const (
	LockAbsent LockState = iota
	LockCleared
	LockHeld
)

func (s LockState) String() string {
	switch s {
	case LockCleared:
		return "cleared"
	case LockHeld:
		return "held"
	default:
		return "absent"
	}
}

// LockManager 清理遗留的站点创建锁
type LockManager struct {
	workspace    service.SiteWorkspace
	runner       service.CommandRunner
	probeTimeout time.Duration
}

// NewLockManager 创建锁管理器
func NewLockManager(workspace service.SiteWorkspace, runner service.CommandRunner, probeTimeout time.Duration) *LockManager {
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	return &LockManager{workspace: workspace, runner: runner, probeTimeout: probeTimeout}
}

// Clear 锁文件存在且没有 new-site 进程时删除锁文件
// 有进程持有时返回 LockHeld 与 ErrLockConflict，锁文件保持不动
func (m *LockManager) Clear(ctx context.Context, siteName string) (LockState, error) {
	path, exists := m.workspace.LockFile(siteName)
	if !exists {
		return LockAbsent, nil
	}

	res := m.runner.Run(ctx, bench.FindNewSiteProcesses(), m.probeTimeout)
	if strings.TrimSpace(res.Stdout) != "" {
		metrics.LockConflicts.WithLabelValues(LockHeld.String()).Inc()
		logger.Warn(ctx, "site creation lock held by running process", "lock_file", path)
		return LockHeld, ErrLockConflict
	}

	if err := m.workspace.RemoveLock(siteName); err != nil {
		logger.Warn(ctx, "failed to remove stale lock", "lock_file", path, "error", err.Error())
	} else {
		logger.Info(ctx, "stale site lock removed", "lock_file", path)
	}
	metrics.LockConflicts.WithLabelValues(LockCleared.String()).Inc()
	return LockCleared, nil
}

// IsLockConflictOutput 命令输出是否表示锁冲突
func IsLockConflictOutput(output string) bool {
	return strings.Contains(strings.ToLower(output), lockConflictMarker)
}
