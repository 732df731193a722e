// cmd/migrate — 独立的迁移命令行工具，供部署脚本在启动 cmd/server 之前
// 预先跑一遍 migrations/ 目录，不依赖消息运行时本身。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/multi-agent/messaging-runtime/internal/config"
	"github.com/multi-agent/messaging-runtime/internal/database"
	"github.com/multi-agent/messaging-runtime/pkg/logger"
)

func main() {
	cfg := config.Load()
	if cfg.PostgresConnStr == "" {
		fmt.Println("POSTGRES_CONNECTION_STRING not set")
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Init(cfg.LogLevel)
	log := logger.NewAdapter(logger.Get())

	pool, err := database.NewPool(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, "./migrations", log); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("migration complete")
}
