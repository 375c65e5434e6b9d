// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"net"
	"os"

	"tenant-provisioner/internal/application/backup"
	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/application/modules"
	"tenant-provisioner/internal/application/namespace"
	"tenant-provisioner/internal/application/provisioning"
	"tenant-provisioner/internal/application/quota"
	"tenant-provisioner/internal/application/scheduler"
	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/domain/service"
	"tenant-provisioner/internal/infrastructure/bench"
	"tenant-provisioner/internal/infrastructure/messaging"
	"tenant-provisioner/internal/infrastructure/persistence/mariadb"
	"tenant-provisioner/internal/infrastructure/persistence/postgres"
	"tenant-provisioner/internal/infrastructure/persistence/redis"
	"tenant-provisioner/internal/interfaces/http/handler"
	"tenant-provisioner/internal/interfaces/http/router"
	"tenant-provisioner/internal/interfaces/worker"
)

// BootstrapLayer bootstrap 使用的数据层
type BootstrapLayer struct {
	PgClient         *postgres.Client
	TxManager        *postgres.TxManager
	PlanRepo         *postgres.PlanRepository
	SubscriptionRepo *postgres.SubscriptionRepository
}

// Consumers 两条任务流的消费者
type Consumers struct {
	Provisioning *messaging.Consumer
	SiteOps      *messaging.Consumer
}

// WorkerApp 任务执行器依赖容器
type WorkerApp struct {
	Handlers  *worker.Handlers
	Consumers *Consumers
	Scheduler *scheduler.Scheduler
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideMariaDBClient 提供实例数据库客户端
func ProvideMariaDBClient(cfg *config.Config) (*mariadb.Client, func(), error) {
	client, err := mariadb.NewClient(&cfg.Database.MariaDB)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideQueue 提供任务队列
func ProvideQueue(redisClient *redis.Client, producer *messaging.Producer, cfg *config.Config) *messaging.Queue {
	return messaging.NewQueue(redisClient.Redis(), producer, cfg.Provisioning.DedupTTL)
}

// ProvideProgressStore 提供进度存储
func ProvideProgressStore(cache *redis.Cache, cfg *config.Config) *redis.ProgressStore {
	return redis.NewProgressStore(cache, cfg.Provisioning.ProgressTTL)
}

// ProvidePlanReader 套餐查询走缓存
func ProvidePlanReader(plans *postgres.PlanRepository, cache *redis.Cache) *redis.CachedPlanRepository {
	return redis.NewCachedPlanRepository(plans, cache)
}

// ProvideRunner 提供 bench 命令执行器
func ProvideRunner(cfg *config.Config) *bench.Runner {
	return bench.NewRunner(cfg.Bench.Path)
}

// ProvideWorkspace 提供 bench 站点目录访问
func ProvideWorkspace(cfg *config.Config) *bench.Workspace {
	return bench.NewWorkspace(cfg.Bench.Path)
}

// ProvideAllocator 提供子域名分配器
func ProvideAllocator(tenants *postgres.TenantRepository, cfg *config.Config) *namespace.Allocator {
	return namespace.NewAllocator(tenants, &cfg.Namespace)
}

// ProvideGuard 提供配额守卫
func ProvideGuard(subs *postgres.SubscriptionRepository, plans *redis.CachedPlanRepository, tenants *postgres.TenantRepository, notifier service.Notifier) *quota.Guard {
	return quota.NewGuard(subs, plans, tenants, notifier)
}

// ProvideDomainManager 提供自定义域名管理
func ProvideDomainManager(tenants repository.TenantRepository, cfg *config.Config) *lifecycle.DomainManager {
	return lifecycle.NewDomainManager(tenants, net.DefaultResolver, cfg.Bench.ServerIP)
}

// ProvideSiteInspector 提供站点健康检查
func ProvideSiteInspector(runner service.CommandRunner, workspace service.SiteWorkspace, db *mariadb.Client, cfg *config.Config) *lifecycle.SiteInspector {
	return lifecycle.NewSiteInspector(runner, workspace, db, cfg.Bench.Binary, cfg.Bench.ProbeTimeout)
}

// ProvideBackupOrchestrator 提供备份编排器
func ProvideBackupOrchestrator(
	tenants *postgres.TenantRepository,
	backups repository.BackupRepository,
	queue service.JobQueue,
	runner service.CommandRunner,
	workspace service.SiteWorkspace,
	notifier service.Notifier,
	cfg *config.Config,
) *backup.Orchestrator {
	return backup.NewOrchestrator(tenants, backups, queue, runner, workspace, notifier, cfg.Bench.Binary, cfg.Bench.LongTimeout)
}

// ProvideModuleManager 提供应用模块管理器
func ProvideModuleManager(
	tenants *postgres.TenantRepository,
	queue service.JobQueue,
	progress service.ProgressStore,
	runner service.CommandRunner,
	cfg *config.Config,
) *modules.Manager {
	return modules.NewManager(tenants, queue, progress, runner, cfg.Bench.Binary, cfg.Bench.LongTimeout, cfg.Bench.ProbeTimeout)
}

// ProvidePipeline 提供开通流水线
func ProvidePipeline(
	tenants *postgres.TenantRepository,
	runner service.CommandRunner,
	workspace service.SiteWorkspace,
	progress service.ProgressStore,
	notifier service.Notifier,
	cfg *config.Config,
) *provisioning.Pipeline {
	return provisioning.NewPipeline(tenants, runner, workspace, progress, notifier, cfg)
}

// ProvideHealthHandler 就绪检查覆盖控制面数据库、Redis 与实例数据库
func ProvideHealthHandler(pg *postgres.Client, redisClient *redis.Client, db *mariadb.Client, cfg *config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version,
		handler.Dependency{Name: "postgres", Required: true, Check: pg.HealthCheck},
		handler.Dependency{Name: "redis", Required: true, Check: redisClient.HealthCheck},
		handler.Dependency{Name: "mariadb", Check: db.Ping},
	)
}

// ProvideRouter 提供路由器
func ProvideRouter(cfg *config.Config, handlers *router.Handlers, limiter *redis.RateLimiter, producer *messaging.Producer) *router.Router {
	return router.New(cfg, handlers, limiter, producer)
}

// ProvideConsumers 创建开通与站点运维两个消费者，死信回调统一交给 Handlers
func ProvideConsumers(redisClient *redis.Client, handlers *worker.Handlers, cfg *config.Config) *Consumers {
	rs := cfg.Messaging.RedisStream
	backoff := messaging.BackoffConfig{
		Initial:    rs.RetryBackoff.Initial,
		Max:        rs.RetryBackoff.Max,
		Multiplier: rs.RetryBackoff.Multiplier,
	}
	// 处理中的消息由消费者续租，接管只发生在消费者退出之后
	reclaimIdle := cfg.Bench.LongTimeout * 4

	name := consumerName()
	consumers := &Consumers{
		Provisioning: messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
			Stream:        messaging.StreamProvisioning,
			Group:         messaging.ConsumerGroupProvisioner,
			ConsumerName:  name,
			BlockTimeout:  rs.BlockTimeout,
			ClaimInterval: rs.ClaimInterval,
			ReclaimIdle:   reclaimIdle,
			RetryLimit:    rs.RetryLimit,
			Backoff:       backoff,
			OnDeadLetter:  handlers.OnDeadLetter,
		}),
		SiteOps: messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
			Stream:        messaging.StreamSiteOps,
			Group:         messaging.ConsumerGroupSiteOps,
			ConsumerName:  name,
			BlockTimeout:  rs.BlockTimeout,
			ClaimInterval: rs.ClaimInterval,
			ReclaimIdle:   reclaimIdle,
			RetryLimit:    rs.RetryLimit,
			Backoff:       backoff,
			OnDeadLetter:  handlers.OnDeadLetter,
		}),
	}
	handlers.Register(consumers.Provisioning, consumers.SiteOps)
	return consumers
}

// ProvideScheduler 提供定时任务，平台探测覆盖各基础组件
func ProvideScheduler(
	tenants *postgres.TenantRepository,
	subs *postgres.SubscriptionRepository,
	guard *quota.Guard,
	lifecycleSvc *lifecycle.Service,
	queue service.JobQueue,
	pg *postgres.Client,
	redisClient *redis.Client,
	db *mariadb.Client,
	runner service.CommandRunner,
	cfg *config.Config,
) *scheduler.Scheduler {
	probes := []scheduler.Probe{
		{Component: "postgres", Check: pg.HealthCheck},
		{Component: "redis", Check: redisClient.HealthCheck},
		{Component: "mariadb", Check: db.Ping},
		{Component: "bench", Check: benchProbe(runner, cfg)},
	}
	return scheduler.New(tenants, subs, guard, lifecycleSvc, queue, probes, cfg)
}

// benchProbe bench 可执行
func benchProbe(runner service.CommandRunner, cfg *config.Config) func(ctx context.Context) error {
	cmds := bench.NewCommands(cfg.Bench.Binary)
	return func(ctx context.Context) error {
		res := runner.Run(ctx, cmds.Version(), cfg.Bench.ProbeTimeout)
		if !res.OK() {
			return fmt.Errorf("bench unavailable: %s", res.ErrorText())
		}
		return nil
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
