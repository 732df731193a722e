// Package database 提供 PostgreSQL 连接池管理，供可选的审计持久化使用。
//
// 裸写 SQL (不使用 ORM)，走 pgxpool.ParseConfig + AfterConnect(search_path)
// + Ping 的引导方式。
package database

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multi-agent/messaging-runtime/internal/config"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
)

// NewPool 创建 PostgreSQL 连接池。
func NewPool(ctx context.Context, cfg *config.Config, log hostapi.Logger) (*pgxpool.Pool, error) {
	if cfg.PostgresConnStr == "" {
		return nil, fmt.Errorf("POSTGRES_CONNECTION_STRING is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MinConns = safeInt32(cfg.PostgresPoolMinSize, "PostgresPoolMinSize", log)
	poolCfg.MaxConns = safeInt32(cfg.PostgresPoolMaxSize, "PostgresPoolMaxSize", log)

	schema := cfg.PostgresSchema
	if schema != "" && schema != "public" {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if log != nil {
		log.Info("postgres pool created",
			"min_conns", cfg.PostgresPoolMinSize,
			"max_conns", cfg.PostgresPoolMaxSize,
			"schema", schema,
		)
	}
	return pool, nil
}

// safeInt32 将 int 安全转为 int32，超出范围时 clamp 并记录警告。
func safeInt32(v int, name string, log hostapi.Logger) int32 {
	if v > math.MaxInt32 {
		if log != nil {
			log.Warn("pool config overflow, clamped to MaxInt32", "field", name, "value", v)
		}
		return math.MaxInt32
	}
	if v < 0 {
		if log != nil {
			log.Warn("pool config negative, clamped to 0", "field", name, "value", v)
		}
		return 0
	}
	return int32(v)
}
