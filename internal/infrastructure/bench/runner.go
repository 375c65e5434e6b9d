// Package bench 封装实例管理 CLI（bench）的命令执行与站点目录访问
package bench

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
)

var tracer = otel.Tracer("bench")

// DefaultTimeout 未指定超时时使用
const DefaultTimeout = 600 * time.Second

// Runner 在 bench 目录下执行命令
type Runner struct {
	path string
}

// NewRunner 创建命令执行器
func NewRunner(path string) *Runner {
	return &Runner{path: path}
}

// Run 执行命令，args[0] 为可执行程序
func (r *Runner) Run(ctx context.Context, args []string, timeout time.Duration) service.CommandResult {
	if len(args) == 0 {
		return service.CommandResult{ExitCode: 1, Stderr: "empty command"}
	}
	if info, err := os.Stat(r.path); err != nil || !info.IsDir() {
		return service.CommandResult{ExitCode: 1, Stderr: "path not found"}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	label := CommandLabel(args)
	ctx, span := tracer.Start(ctx, "bench."+label)
	defer span.End()
	span.SetAttributes(attribute.String("bench.command", label))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = r.path
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	result := service.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
		if result.Stderr == "" {
			result.Stderr = "command timed out after " + timeout.String()
		}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
		}
	}

	outcome := "ok"
	switch {
	case result.TimedOut:
		outcome = "timeout"
	case result.ExitCode != 0:
		outcome = "error"
	}
	metrics.BenchCommandsTotal.WithLabelValues(label, outcome).Inc()
	metrics.BenchCommandDuration.WithLabelValues(label).Observe(result.Duration.Seconds())

	if !result.OK() {
		span.SetAttributes(attribute.Int("bench.exit_code", result.ExitCode))
		logger.Warn(ctx, "bench command failed",
			"command", label,
			"exit_code", result.ExitCode,
			"timed_out", result.TimedOut,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return result
}

// CommandLabel 提取子命令名，用于指标与追踪
// bench --site x install-app erpnext -> install-app
func CommandLabel(args []string) string {
	if len(args) == 0 {
		return "unknown"
	}
	for i := 1; i < len(args); i++ {
		a := args[i]
		if a == "--site" {
			i++
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		return a
	}
	return args[0]
}
