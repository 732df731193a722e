// config_test.go — 配置加载默认值 + 环境变量覆盖测试。
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("MAX_CONCURRENT_DELIVERIES")
	os.Unsetenv("POSTGRES_SCHEMA")

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "INFO"},
		{"GinMode", cfg.GinMode, "release"},
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"MaxConcurrentDeliveries", cfg.MaxConcurrentDeliveries, 1000},
		{"DefaultRequestTimeoutMs", cfg.DefaultRequestTimeoutMs, 5000},
		{"CircuitBreakerThreshold", cfg.CircuitBreakerThreshold, 10},
		{"PatternCacheSize", cfg.PatternCacheSize, 1000},
		{"SubscriptionLimit", cfg.SubscriptionLimit, 100},
		{"EnablePerformanceLogging", cfg.EnablePerformanceLogging, true},
		{"PostgresSchema", cfg.PostgresSchema, "public"},
		{"PostgresPoolMinSize", cfg.PostgresPoolMinSize, 1},
		{"PostgresPoolMaxSize", cfg.PostgresPoolMaxSize, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MAX_CONCURRENT_DELIVERIES", "50")
	t.Setenv("POSTGRES_SCHEMA", "test_schema")

	cfg := Load()

	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want 'DEBUG'", cfg.LogLevel)
	}
	if cfg.MaxConcurrentDeliveries != 50 {
		t.Errorf("MaxConcurrentDeliveries = %d, want 50", cfg.MaxConcurrentDeliveries)
	}
	if cfg.PostgresSchema != "test_schema" {
		t.Errorf("PostgresSchema = %q, want 'test_schema'", cfg.PostgresSchema)
	}
}

func TestLoadReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
}
