// Package config 提供消息运行时的进程级配置。
//
// 字段通过 struct tag 声明环境变量映射并由 util.LoadFromEnv 反射填充，
// 遵循 "env + default + min tag" 惯例。
package config

import (
	"github.com/multi-agent/messaging-runtime/pkg/util"
)

// Config 消息运行时门面进程的配置。
type Config struct {
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
	GinMode  string `env:"GIN_MODE" default:"release"`
	HTTPAddr string `env:"HTTP_ADDR" default:":8080"`

	MaxConcurrentDeliveries int `env:"MAX_CONCURRENT_DELIVERIES" default:"1000" min:"1"`
	DefaultRequestTimeoutMs int `env:"DEFAULT_REQUEST_TIMEOUT_MS" default:"5000" min:"1"`
	CircuitBreakerThreshold int `env:"CIRCUIT_BREAKER_THRESHOLD" default:"10" min:"1"`
	PatternCacheSize        int `env:"PATTERN_CACHE_SIZE" default:"1000" min:"1"`
	SubscriptionLimit       int `env:"SUBSCRIPTION_LIMIT" default:"100" min:"1"`

	EnablePerformanceLogging bool `env:"ENABLE_PERFORMANCE_LOGGING" default:"true"`

	// 可选的审计持久化; PostgresConnStr 留空则只用内存环形缓冲区。
	PostgresConnStr     string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema      string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`
}

// Load 从环境变量加载配置。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
