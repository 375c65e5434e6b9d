// Package worker 将队列消息分发到各应用服务
package worker

import (
	"context"
	"errors"

	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/messaging"
	"tenant-provisioner/pkg/logger"
)

// Provisioner 开通流水线
type Provisioner interface {
	Run(ctx context.Context, job service.ProvisionPayload) error
	Abandon(ctx context.Context, tenantID string, cause error) error
}

// BackupRunner 备份/恢复执行
type BackupRunner interface {
	RunBackup(ctx context.Context, payload service.BackupPayload) error
	RunRestore(ctx context.Context, payload service.BackupPayload) error
}

// ModuleRunner 模块任务执行
type ModuleRunner interface {
	Run(ctx context.Context, job service.ModulePayload) error
}

// Registrar 消费者的处理器注册
type Registrar interface {
	RegisterHandler(msgType string, handler messaging.MessageHandler)
}

// Handlers 任务处理器集合
type Handlers struct {
	provisioner Provisioner
	backups     BackupRunner
	modules     ModuleRunner
	queue       service.JobQueue
}

// NewHandlers 创建任务处理器
func NewHandlers(provisioner Provisioner, backups BackupRunner, modules ModuleRunner, queue service.JobQueue) *Handlers {
	return &Handlers{provisioner: provisioner, backups: backups, modules: modules, queue: queue}
}

// Register 注册开通流与站点操作流的处理器
func (h *Handlers) Register(provisioning, siteOps Registrar) {
	provisioning.RegisterHandler(service.JobProvision, h.wrap(h.provision))

	siteOps.RegisterHandler(service.JobBackup, h.wrap(func(ctx context.Context, msg *messaging.Message) error {
		var p service.BackupPayload
		if err := msg.UnmarshalPayload(&p); err != nil {
			return errBadPayload
		}
		return h.backups.RunBackup(ctx, p)
	}))
	siteOps.RegisterHandler(service.JobRestore, h.wrap(func(ctx context.Context, msg *messaging.Message) error {
		var p service.BackupPayload
		if err := msg.UnmarshalPayload(&p); err != nil {
			return errBadPayload
		}
		return h.backups.RunRestore(ctx, p)
	}))
	for _, op := range []string{service.JobInstallApp, service.JobUninstallApp, service.JobUpdateApp} {
		siteOps.RegisterHandler(op, h.wrap(h.module))
	}
}

var errBadPayload = errors.New("malformed job payload")

func (h *Handlers) provision(ctx context.Context, msg *messaging.Message) error {
	var p service.ProvisionPayload
	if err := msg.UnmarshalPayload(&p); err != nil {
		return errBadPayload
	}
	if p.TenantID == "" {
		p.TenantID = msg.TenantID
	}
	return h.provisioner.Run(ctx, p)
}

func (h *Handlers) module(ctx context.Context, msg *messaging.Message) error {
	var p service.ModulePayload
	if err := msg.UnmarshalPayload(&p); err != nil {
		return errBadPayload
	}
	if p.Op == "" {
		p.Op = msg.Type
	}
	if p.JobID == "" {
		p.JobID = msg.ID
	}
	return h.modules.Run(ctx, p)
}

// wrap 处理完成（含业务失败）后释放去重键；返回 error 时保留，等待重投
func (h *Handlers) wrap(run messaging.MessageHandler) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		err := run(ctx, msg)
		if errors.Is(err, errBadPayload) {
			logger.Error(ctx, "dropping job with malformed payload", err, "type", msg.Type)
			h.release(ctx, msg)
			return nil
		}
		if err != nil {
			return err
		}
		h.release(ctx, msg)
		return nil
	}
}

// OnDeadLetter 重试耗尽：开通任务标记失败，并释放去重键
func (h *Handlers) OnDeadLetter(ctx context.Context, msg *messaging.Message, cause error) {
	if msg.Type == service.JobProvision {
		if err := h.provisioner.Abandon(ctx, msg.TenantID, cause); err != nil {
			logger.Error(ctx, "failed to abandon provisioning", err)
		}
	}
	h.release(ctx, msg)
}

func (h *Handlers) release(ctx context.Context, msg *messaging.Message) {
	key := msg.GetMetadata(messaging.MetaDedupKey)
	if key == "" {
		return
	}
	if err := h.queue.Release(ctx, key); err != nil {
		logger.Warn(ctx, "failed to release dedup key", "dedup_key", key, "error", err.Error())
	}
}
