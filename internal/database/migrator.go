package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
)

// Migrate 执行 migrations 目录下的 SQL 迁移脚本 (按文件名排序)。
// 使用 schema_version 表追踪已执行版本。
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrationsDir string, log hostapi.Logger) error {
	if pool == nil {
		return fmt.Errorf("nil pool")
	}

	// 确保 schema_version 表存在
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	// 读取迁移文件
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			if log != nil {
				log.Info("no migrations directory found, skipping")
			}
			return nil
		}
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// 过滤并排序 .sql 文件
	var sqlFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			sqlFiles = append(sqlFiles, e.Name())
		}
	}
	sort.Strings(sqlFiles)

	applied, err := loadAppliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	// 执行未应用的迁移
	for _, name := range sqlFiles {
		if applied[name] {
			continue
		}

		if err := applyOneMigration(ctx, pool, migrationsDir, name); err != nil {
			return err
		}

		if log != nil {
			log.Info("migration applied", "version", name)
		}
	}

	return nil
}

// loadAppliedVersions 查询 schema_version 表，返回已执行的迁移文件名集合。
func loadAppliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	if pool == nil {
		return nil, fmt.Errorf("nil pool")
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_version: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyOneMigration 在单个事务中执行一个迁移文件并记录其版本号。
func applyOneMigration(ctx context.Context, pool *pgxpool.Pool, dir, filename string) error {
	if pool == nil {
		return fmt.Errorf("nil pool")
	}

	sqlBytes, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filename, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", filename, err)
	}

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("exec migration %s: %w", filename, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, filename); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", filename, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", filename, err)
	}

	return nil
}
