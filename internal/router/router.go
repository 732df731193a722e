// Package router 查找订阅者并委托投递，记录健康与统计。
//
// 三段式结构: lookup → deliver → record。
package router

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/delivery"
	"github.com/multi-agent/messaging-runtime/internal/health"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
)

// HealthComponentID Router 在 HealthMonitor 中注册的组件名。
const HealthComponentID = "message_router"

// routingTimeWarnThreshold 路由耗时告警阈值。
const routingTimeWarnThreshold = 30 * time.Millisecond

// SubscriberLookup 订阅查找协作接口，由 internal/subscription.Registry 实现。
type SubscriberLookup interface {
	GetSubscribers(messageType ids.ValidatedMessageType) []ids.AgentId
}

// RecipientResolver 把 AgentId 解析为可投递目标，由持有 Agent 注册表的
// 调用方 (通常是 internal/agentmanager.Manager) 实现。
type RecipientResolver interface {
	ResolveRecipients(agentIDs []ids.AgentId) []delivery.Recipient
}

// Result 一次 route 调用的结果。
type Result struct {
	Success             bool
	RoutedTo            []ids.AgentId
	SubscriberCount     int
	NoSubscribersFound  bool
	RoutingTimeMs       int64
	LookupTimeMs        int64
	DeliveryTimeMs      int64
	PatternMatchesFound int
	DeliveryFailures    int
	Error               error
}

// Router 消息路由器。
type Router struct {
	registry SubscriberLookup
	resolver RecipientResolver
	eng      *delivery.Engine
	health   *health.Monitor
	log      hostapi.Logger
	clock    hostapi.Clock

	routed int64
}

// New 创建消息路由器。
func New(registry SubscriberLookup, resolver RecipientResolver, eng *delivery.Engine, healthMon *health.Monitor, log hostapi.Logger, clock hostapi.Clock) *Router {
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	return &Router{registry: registry, resolver: resolver, eng: eng, health: healthMon, log: log, clock: clock}
}

// Route 查找订阅者、投递消息并记录健康/统计。
func (r *Router) Route(ctx context.Context, m msg.Message) Result {
	t0 := r.clock.Now()

	subs, lookupErr := r.lookup(m)
	lookupTime := r.clock.Since(t0)
	if lookupErr != nil {
		r.health.RecordFailure(HealthComponentID, lookupErr)
		return Result{Success: false, Error: lookupErr, LookupTimeMs: lookupTime.Milliseconds()}
	}

	if len(subs) == 0 {
		return Result{
			Success:            true,
			NoSubscribersFound: true,
			LookupTimeMs:       lookupTime.Milliseconds(),
			RoutingTimeMs:      r.clock.Since(t0).Milliseconds(),
		}
	}

	recipients := r.resolver.ResolveRecipients(subs)

	deliveryStart := r.clock.Now()
	deliveryResult := r.eng.Deliver(ctx, m, recipients)
	deliveryTime := r.clock.Since(deliveryStart)

	routingTime := r.clock.Since(t0)
	if routingTime > routingTimeWarnThreshold && r.log != nil {
		r.log.Warn("routing exceeded warn threshold", "type", string(m.Type), "routingTimeMs", routingTime.Milliseconds())
	}

	healthy := len(deliveryResult.Failed) == 0
	if healthy {
		r.health.RecordHealth(HealthComponentID, true, "route ok")
	} else {
		r.health.RecordFailure(HealthComponentID, deliveryResult.Failed[0].Err)
	}

	atomic.AddInt64(&r.routed, int64(len(deliveryResult.Delivered)))

	return Result{
		Success:             true,
		RoutedTo:            deliveryResult.Delivered,
		SubscriberCount:     len(subs),
		LookupTimeMs:        lookupTime.Milliseconds(),
		DeliveryTimeMs:      deliveryTime.Milliseconds(),
		RoutingTimeMs:       routingTime.Milliseconds(),
		PatternMatchesFound: len(subs),
		DeliveryFailures:    len(deliveryResult.Failed),
	}
}

func (r *Router) lookup(m msg.Message) (subs []ids.AgentId, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recoverToError(rec)
		}
	}()
	subs = r.registry.GetSubscribers(m.Type)
	return subs, nil
}

// Stats 路由器累计统计。
type Stats struct {
	Routed int64
}

// GetStats 返回累计成功投递的接收者次数 (每次路由按实际送达的接收者数计入)。
func (r *Router) GetStats() Stats {
	return Stats{Routed: atomic.LoadInt64(&r.routed)}
}

// GetHealth 返回路由器自身的健康快照。
func (r *Router) GetHealth() (health.ComponentHealth, bool) {
	return r.health.GetComponentHealth(HealthComponentID)
}
