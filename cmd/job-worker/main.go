// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenant-provisioner/internal/config"
	"tenant-provisioner/internal/wire"
	"tenant-provisioner/pkg/logger"
	"tenant-provisioner/pkg/tracer"
)

// dlqAlertThreshold 死信数量告警阈值
const dlqAlertThreshold = 10

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	app, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	if err := app.Consumers.Provisioning.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start provisioning consumer", err)
	}
	if err := app.Consumers.SiteOps.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start site-ops consumer", err)
	}
	go app.Consumers.Provisioning.MonitorDLQ(ctx, dlqAlertThreshold)
	go app.Consumers.SiteOps.MonitorDLQ(ctx, dlqAlertThreshold)

	if cfg.Scheduler.Enabled {
		if err := app.Scheduler.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start scheduler", err)
		}
	}

	var metricsSrv *http.Server
	if cfg.Observability.Metrics.Enabled && cfg.Observability.Metrics.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Observability.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "metrics server error", err)
			}
		}()
	}

	logger.Info(ctx, "job-worker started", "scheduler", cfg.Scheduler.Enabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down job-worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if cfg.Scheduler.Enabled {
		app.Scheduler.Stop(shutdownCtx)
	}
	// 等待正在执行的任务结束，未确认的消息由其他实例接管
	app.Consumers.Provisioning.Stop()
	app.Consumers.SiteOps.Stop()
	cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info(ctx, "job-worker exited")
}
