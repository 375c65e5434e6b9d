// Package scheduler 定时清理与巡检
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/metrics"
)

// NoteTimedOut 开通超时备注
const NoteTimedOut = "provisioning timed out"

// provisionSlack 开通时限之外的余量，覆盖探测命令与落库
const provisionSlack = 10 * time.Minute

const (
	defaultStaleSweepSpec  = "@every 5m"
	defaultPlanEnforceSpec = "@every 15m"
	defaultHealthProbeSpec = "@every 1m"
)

// TenantStore 停滞租户查询与更新
type TenantStore interface {
	ListStale(ctx context.Context, status entity.TenantStatus, before time.Time) ([]*entity.Tenant, error)
	UpdateColumns(ctx context.Context, tenant *entity.Tenant, columns ...string) error
}

// SubscriptionLister 按变更时间列出订阅
type SubscriptionLister interface {
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*entity.Subscription, error)
}

// Reconciler 按订阅状态调整租户
type Reconciler interface {
	Reconcile(ctx context.Context, sub *entity.Subscription) (suspended, reactivated []string, err error)
}

// Resubmitter 重新投递开通任务
type Resubmitter interface {
	Resubmit(ctx context.Context, tenantID string) error
}

// Probe 平台组件探测
type Probe struct {
	Component string
	Check     func(ctx context.Context) error
}

// Scheduler 定时任务
type Scheduler struct {
	cron       *cron.Cron
	tenants    TenantStore
	subs       SubscriptionLister
	guard      Reconciler
	resubmit   Resubmitter
	queue      service.JobQueue
	probes     []Probe
	cfg        config.SchedulerConfig
	staleAfter time.Duration
	longLimit  time.Duration
	probeLimit time.Duration
	now        func() time.Time

	mu        sync.Mutex
	watermark time.Time
}

// New 创建调度器
func New(
	tenants TenantStore,
	subs SubscriptionLister,
	guard Reconciler,
	resubmit Resubmitter,
	queue service.JobQueue,
	probes []Probe,
	cfg *config.Config,
) *Scheduler {
	staleAfter := cfg.Provisioning.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	probeLimit := cfg.Bench.ProbeTimeout
	if probeLimit <= 0 {
		probeLimit = 5 * time.Second
	}
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{}), cron.Recover(cronLogger{}))),
		tenants:    tenants,
		subs:       subs,
		guard:      guard,
		resubmit:   resubmit,
		queue:      queue,
		probes:     probes,
		cfg:        cfg.Scheduler,
		staleAfter: staleAfter,
		longLimit:  cfg.Bench.LongTimeout,
		probeLimit: probeLimit,
		now:        time.Now,
	}
}

// Start 注册并启动定时任务，ctx 取消后各任务不再执行新的轮次
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		{orDefault(s.cfg.StaleSweepSpec, defaultStaleSweepSpec), "stale_sweep", s.SweepStale},
		{orDefault(s.cfg.PlanEnforceSpec, defaultPlanEnforceSpec), "plan_enforce", s.EnforcePlans},
		{orDefault(s.cfg.HealthProbeSpec, defaultHealthProbeSpec), "health_probe", s.ProbePlatform},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			if ctx.Err() != nil {
				return
			}
			if err := j.run(ctx); err != nil {
				logger.Error(ctx, "scheduled job failed", err, "job", j.name)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}
	s.cron.Start()
	logger.Info(ctx, "scheduler started", "jobs", len(jobs))
	return nil
}

// Stop 停止调度并等待进行中的任务
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// SweepStale 处理停滞的开通任务
// Provisioning 超过自身任务时限标记失败；Queued 且去重键已释放的重新投递
func (s *Scheduler) SweepStale(ctx context.Context) error {
	now := s.now()
	before := now.Add(-s.staleAfter)

	stuck, err := s.tenants.ListStale(ctx, entity.TenantStatusProvisioning, before)
	if err != nil {
		return err
	}
	for _, t := range stuck {
		if t.ProvisioningStartedAt != nil && now.Sub(*t.ProvisioningStartedAt) < s.Deadline(t) {
			continue
		}
		s.expire(ctx, t)
	}

	queued, err := s.tenants.ListStale(ctx, entity.TenantStatusQueued, before)
	if err != nil {
		return err
	}
	for _, t := range queued {
		key := service.DedupKey(service.DedupProvision, t.ID)
		held, err := s.queue.Held(ctx, key)
		if err != nil {
			logger.Warn(ctx, "failed to check dedup key", "tenant_id", t.ID, "error", err.Error())
			continue
		}
		if held {
			continue
		}
		if err := s.resubmit.Resubmit(ctx, t.ID); err != nil {
			logger.Warn(ctx, "failed to resubmit provisioning", "tenant_id", t.ID, "error", err.Error())
		}
	}
	return nil
}

// Deadline 开通中的租户被判定超时前允许运行的时长，不短于 stale_after
func (s *Scheduler) Deadline(t *entity.Tenant) time.Duration {
	return max(s.staleAfter, service.ProvisionTimeout(s.longLimit, len(t.Modules))+provisionSlack)
}

func (s *Scheduler) expire(ctx context.Context, t *entity.Tenant) {
	ctx = logger.WithTenant(ctx, t.ID, t.SiteName)
	done := s.now()
	t.Status = entity.TenantStatusFailed
	t.ProvisioningCompletedAt = &done
	t.AppendNote("Error: " + NoteTimedOut)
	if err := s.tenants.UpdateColumns(ctx, t, "status", "provisioning_notes", "provisioning_completed_at"); err != nil {
		logger.Error(ctx, "failed to expire stale provisioning", err)
		return
	}
	if err := s.queue.Release(ctx, service.DedupKey(service.DedupProvision, t.ID)); err != nil {
		logger.Warn(ctx, "failed to release dedup key", "error", err.Error())
	}
	metrics.ProvisioningTotal.WithLabelValues("timed_out").Inc()
	logger.Warn(ctx, "stale provisioning marked failed")
}

// EnforcePlans 对上次运行后变更过的订阅执行配额调整
func (s *Scheduler) EnforcePlans(ctx context.Context) error {
	s.mu.Lock()
	since := s.watermark
	s.mu.Unlock()

	started := s.now()
	subs, err := s.subs.ListUpdatedSince(ctx, since)
	if err != nil {
		return err
	}
	var failed int
	for _, sub := range subs {
		suspended, reactivated, err := s.guard.Reconcile(ctx, sub)
		if err != nil {
			failed++
			logger.Warn(ctx, "failed to reconcile subscription", "subscription_id", sub.ID, "error", err.Error())
			continue
		}
		if len(suspended)+len(reactivated) > 0 {
			logger.Info(ctx, "subscription reconciled", "subscription_id", sub.ID,
				"suspended", len(suspended), "reactivated", len(reactivated))
		}
	}
	// 有失败时保留水位，下次重试
	if failed == 0 {
		s.mu.Lock()
		s.watermark = started
		s.mu.Unlock()
	}
	return nil
}

// ProbePlatform 并发探测平台组件并更新健康指标
func (s *Scheduler) ProbePlatform(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range s.probes {
		p := p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.probeLimit)
			defer cancel()
			up := 1.0
			if err := p.Check(pctx); err != nil {
				up = 0
				logger.Warn(ctx, "platform component down", "component", p.Component, "error", err.Error())
			}
			metrics.PlatformUp.WithLabelValues(p.Component).Set(up)
			return nil
		})
	}
	return g.Wait()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// cronLogger 将 cron 内部日志接入 slog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Default().Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Default().Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
