// cmd/server — 消息运行时门面主入口。
//
// 结构是 "加载配置 → 初始化日志 → 装配依赖 → signal.NotifyContext 优雅退出"
// 的标准骨架。
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/multi-agent/messaging-runtime/internal/agentmanager"
	"github.com/multi-agent/messaging-runtime/internal/config"
	"github.com/multi-agent/messaging-runtime/internal/database"
	"github.com/multi-agent/messaging-runtime/internal/httpapi"
	"github.com/multi-agent/messaging-runtime/internal/idgen"
	"github.com/multi-agent/messaging-runtime/internal/metrics"
	"github.com/multi-agent/messaging-runtime/internal/securitylog"
	"github.com/multi-agent/messaging-runtime/pkg/logger"
	"github.com/multi-agent/messaging-runtime/pkg/util"
)

// migrationsDir 审计事件表迁移脚本所在目录，相对于进程工作目录。
const migrationsDir = "./migrations"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.NewAdapter(logger.Get())

	security := securitylog.NewRing(securitylog.DefaultRingSize)
	if cfg.PostgresConnStr != "" {
		pool, err := database.NewPool(ctx, cfg, log)
		if err != nil {
			logger.Fatal("postgres pool init failed", logger.Any(logger.FieldError, err))
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool, migrationsDir, log); err != nil {
			logger.Fatal("postgres migration failed", logger.Any(logger.FieldError, err))
		}
		security.SetSink(securitylog.NewPostgresSink(pool, log))
	}

	mx := metrics.NewPrometheus(log)
	manager := agentmanager.New(log, mx, idgen.UUIDSource{}, security, nil)

	srv := httpapi.NewServer(manager, log, cfg.GinMode)

	logger.Infow("messaging runtime starting", "addr", cfg.HTTPAddr)
	util.SafeGo(func() {
		if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
			logger.Error("server stopped with error", logger.Any(logger.FieldError, err))
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")
	manager.DestroyAll()
}
