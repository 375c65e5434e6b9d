//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"tenant-provisioner/internal/application/backup"
	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/application/modules"
	"tenant-provisioner/internal/application/namespace"
	"tenant-provisioner/internal/application/provisioning"
	"tenant-provisioner/internal/application/quota"
	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	"tenant-provisioner/internal/infrastructure/messaging"
	"tenant-provisioner/internal/infrastructure/persistence/postgres"
	"tenant-provisioner/internal/infrastructure/persistence/redis"
	"tenant-provisioner/internal/interfaces/http/handler"
	"tenant-provisioner/internal/interfaces/http/router"
	"tenant-provisioner/internal/interfaces/worker"
)

// InitializeBootstrap 仅初始化 PostgreSQL 数据层（用于 bootstrap）
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*BootstrapLayer, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		postgres.NewTxManager,
		postgres.NewPlanRepository,
		postgres.NewSubscriptionRepository,
		wire.Struct(new(BootstrapLayer), "*"),
	)
	return nil, nil, nil
}

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		InstanceSet,
		ServiceSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化任务执行器
func InitializeWorker(ctx context.Context, cfg *config.Config) (*WorkerApp, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		InstanceSet,
		ServiceSet,
		WorkerSet,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewTenantRepository,
	postgres.NewSubscriptionRepository,
	postgres.NewPlanRepository,
	postgres.NewBackupRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	// 接口绑定
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.TenantRepository), new(*postgres.TenantRepository)),
	wire.Bind(new(repository.SubscriptionRepository), new(*postgres.SubscriptionRepository)),
	wire.Bind(new(repository.BackupRepository), new(*postgres.BackupRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	ProvideProgressStore,
	ProvidePlanReader,
	wire.Bind(new(service.ProgressStore), new(*redis.ProgressStore)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideQueue,
	messaging.NewStreamNotifier,
	wire.Bind(new(service.JobQueue), new(*messaging.Queue)),
	wire.Bind(new(service.Notifier), new(*messaging.StreamNotifier)),
)

// InstanceSet bench 与实例数据库提供者集合
var InstanceSet = wire.NewSet(
	ProvideRunner,
	ProvideWorkspace,
	ProvideMariaDBClient,
	wire.Bind(new(service.CommandRunner), new(*bench.Runner)),
	wire.Bind(new(service.SiteWorkspace), new(*bench.Workspace)),
)

// ServiceSet 应用服务提供者集合
var ServiceSet = wire.NewSet(
	ProvideAllocator,
	ProvideGuard,
	lifecycle.NewService,
	ProvideBackupOrchestrator,
	ProvideModuleManager,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	redis.NewRateLimiter,
	ProvideDomainManager,
	ProvideSiteInspector,
	ProvideHealthHandler,
	handler.NewDomainHandler,
	handler.NewTenantHandler,
	handler.NewSiteHandler,
	handler.NewBackupHandler,
	handler.NewModuleHandler,
	handler.NewAdminHandler,
	wire.Bind(new(handler.SubdomainAllocator), new(*namespace.Allocator)),
	wire.Bind(new(handler.TenantService), new(*lifecycle.Service)),
	wire.Bind(new(handler.CustomDomains), new(*lifecycle.DomainManager)),
	wire.Bind(new(handler.SiteInspector), new(*lifecycle.SiteInspector)),
	wire.Bind(new(handler.BackupService), new(*backup.Orchestrator)),
	wire.Bind(new(handler.ModuleService), new(*modules.Manager)),
	wire.Bind(new(handler.SubscriptionReader), new(*postgres.SubscriptionRepository)),
	wire.Bind(new(handler.PlanEnforcer), new(*quota.Guard)),
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)

// WorkerSet 任务执行器提供者集合
var WorkerSet = wire.NewSet(
	ProvidePipeline,
	worker.NewHandlers,
	wire.Bind(new(worker.Provisioner), new(*provisioning.Pipeline)),
	wire.Bind(new(worker.BackupRunner), new(*backup.Orchestrator)),
	wire.Bind(new(worker.ModuleRunner), new(*modules.Manager)),
	ProvideConsumers,
	ProvideScheduler,
	wire.Struct(new(WorkerApp), "*"),
)
