// Package container 是消息系统的依赖注入工厂。
//
// 按 leaf→root 顺序 (PatternMatcher → SubscriptionRegistry → HealthMonitor
// → DeliveryEngine → CorrelationManager → MessageRouter) 组装六个协作
// 组件，没有循环依赖；构造函数之间直接传参注入，没有容器框架。
package container

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/multi-agent/messaging-runtime/internal/correlation"
	"github.com/multi-agent/messaging-runtime/internal/delivery"
	"github.com/multi-agent/messaging-runtime/internal/health"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/patternmatch"
	"github.com/multi-agent/messaging-runtime/internal/router"
	"github.com/multi-agent/messaging-runtime/internal/subscription"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// MessagingConfig 唯一可调参数集合。
type MessagingConfig struct {
	MaxConcurrentDeliveries  int  `validate:"gt=0"`
	DefaultRequestTimeoutMs  int  `validate:"gt=0"`
	CircuitBreakerThreshold  int  `validate:"gt=0"`
	PatternCacheSize         int  `validate:"gt=0"`
	SubscriptionLimit        int  `validate:"gt=0"`
	EnablePerformanceLogging bool
}

// DefaultConfig 返回文档化的默认配置。
func DefaultConfig() MessagingConfig {
	return MessagingConfig{
		MaxConcurrentDeliveries:  delivery.DefaultMaxConcurrentDeliveries,
		DefaultRequestTimeoutMs:  5000,
		CircuitBreakerThreshold:  health.DefaultThreshold,
		PatternCacheSize:         patternmatch.DefaultCacheSize,
		SubscriptionLimit:        subscription.DefaultSubscriptionLimit,
		EnablePerformanceLogging: true,
	}
}

var validate = validator.New()

// Validate 校验配置，拒绝任一数值字段 ≤ 0。
func (c MessagingConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.New("container.MessagingConfig.Validate", apperrors.CodeInvalidConfiguration,
			"invalid messaging configuration", apperrors.ErrInvalidConfiguration).
			WithContext(map[string]any{"config": c, "cause": err.Error()})
	}
	return nil
}

// Container 一套完全独立的已连线消息系统。
//
// 每次 New 调用都产生全新实例，容器间互不共享状态。
type Container struct {
	cfg MessagingConfig

	patternMatcher *patternmatch.Matcher
	subscriptions  *subscription.Registry
	healthMonitor  *health.Monitor
	deliveryEngine *delivery.Engine
	correlations   *correlation.Manager
	router         *router.Router
}

// New 按文档化顺序装配六个子组件并返回容器。
//
// resolver 把 AgentId 解析为投递目标；通常是持有代理注册表的 AgentManager。
func New(ctx context.Context, cfg MessagingConfig, resolver router.RecipientResolver, log hostapi.Logger, clock hostapi.Clock) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = hostapi.SystemClock{}
	}

	patternMatcher := patternmatch.New(cfg.PatternCacheSize, log, clock)
	subscriptions := subscription.New(patternMatcher, cfg.SubscriptionLimit, log)
	healthMonitor := health.New(log, clock)
	if err := healthMonitor.SetCircuitBreakerThreshold(router.HealthComponentID, cfg.CircuitBreakerThreshold); err != nil {
		return nil, err
	}
	deliveryEngine := delivery.New(cfg.MaxConcurrentDeliveries, log, clock)
	correlations := correlation.New(ctx, log, clock)
	messageRouter := router.New(subscriptions, resolver, deliveryEngine, healthMonitor, log, clock)

	return &Container{
		cfg:            cfg,
		patternMatcher: patternMatcher,
		subscriptions:  subscriptions,
		healthMonitor:  healthMonitor,
		deliveryEngine: deliveryEngine,
		correlations:   correlations,
		router:         messageRouter,
	}, nil
}

// Config 返回容器构造时使用的配置。
func (c *Container) Config() MessagingConfig { return c.cfg }

// PatternMatcher 返回本容器的模式匹配器 (accessor 在容器生命周期内稳定)。
func (c *Container) PatternMatcher() *patternmatch.Matcher { return c.patternMatcher }

// SubscriptionRegistry 返回本容器的订阅注册表。
func (c *Container) SubscriptionRegistry() *subscription.Registry { return c.subscriptions }

// HealthMonitor 返回本容器的健康监控器。
func (c *Container) HealthMonitor() *health.Monitor { return c.healthMonitor }

// DeliveryEngine 返回本容器的投递引擎。
func (c *Container) DeliveryEngine() *delivery.Engine { return c.deliveryEngine }

// CorrelationManager 返回本容器的关联管理器。
func (c *Container) CorrelationManager() *correlation.Manager { return c.correlations }

// Router 返回本容器的消息路由器。
func (c *Container) Router() *router.Router { return c.router }

// Close 停止容器拥有的后台 goroutine (关联管理器清扫)，供优雅关闭使用。
func (c *Container) Close() {
	c.correlations.Stop()
}
