// Package service 定义领域层依赖的外部能力契约（port）
package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CommandResult 外部命令执行结果
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// OK 命令是否成功退出
func (r CommandResult) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Output 合并 stdout 与 stderr，便于记录错误
func (r CommandResult) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// ErrorText 失败原因，优先 stderr
func (r CommandResult) ErrorText() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// CommandRunner 在 bench 工作目录下执行外部命令。
// 约定：args[0] 为可执行程序；超时视为失败，不返回 error。
type CommandRunner interface {
	Run(ctx context.Context, args []string, timeout time.Duration) CommandResult
}

// SiteWorkspace 访问 bench 的 sites 目录
type SiteWorkspace interface {
	// SiteExists 站点目录是否存在
	SiteExists(siteName string) bool
	// LockFile 返回站点创建锁文件路径及其是否存在
	LockFile(siteName string) (path string, exists bool)
	// RemoveLock 删除站点创建锁文件
	RemoveLock(siteName string) error
	// MoveSite 重命名站点目录
	MoveSite(oldName, newName string) error
	// FileSizeMB 返回文件大小（MB，保留两位小数），文件不存在时为 0
	FileSizeMB(path string) float64
	// SiteDir 站点目录的绝对路径
	SiteDir(siteName string) string
}
