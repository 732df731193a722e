// Package agent 实现隔离的有状态单元: 私有内存 + 消息处理器 + 可选的
// 消息能力 facet。
//
// 能力集合通过组合建模 (基础结构体 + 可选 *messagingFacet 字段)，不使用
// 运行时动态探测 (如判断对象是否长出某个可选方法) 来决定消息能力是否启用。
// 结构形状贯穿"每实体一个结构体 + 互斥锁"的惯例。
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/container"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// Handler 消息处理回调，多个处理器并行调用并等待全部完成。
type Handler func(ctx context.Context, m msg.Message) error

// messagingFacet 可选的消息能力，仅在消息功能启用时非 nil。
type messagingFacet struct {
	container *container.Container
	factory   *msg.Factory
	enabled   bool
}

// Agent 隔离的有状态单元。
type Agent struct {
	id       ids.AgentId
	log      hostapi.Logger
	metrics  hostapi.Metrics
	security hostapi.SecurityMonitor
	clock    hostapi.Clock
	idSource hostapi.IDSource

	mu        sync.RWMutex
	memory    map[string]any
	handlers  []Handler
	destroyed bool
	messaging *messagingFacet
}

// New 创建一个新代理，消息能力默认关闭。
func New(id ids.AgentId, log hostapi.Logger, metrics hostapi.Metrics, security hostapi.SecurityMonitor, clock hostapi.Clock, idSource hostapi.IDSource) *Agent {
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	a := &Agent{
		id:       id,
		log:      log,
		metrics:  metrics,
		security: security,
		clock:    clock,
		idSource: idSource,
		memory:   make(map[string]any),
	}
	if security != nil {
		security.RegisterAgent(string(id))
	}
	return a
}

// ID 返回代理的不可变标识。
func (a *Agent) ID() ids.AgentId { return a.id }

// IsActive 代理是否尚未被销毁。
func (a *Agent) IsActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.destroyed
}

// GetMemory 读取私有内存中的一个键。
func (a *Agent) GetMemory(key string) (any, error) {
	return a.GetMemoryAs(key, "")
}

// SetMemory 写入私有内存中的一个键。
func (a *Agent) SetMemory(key string, value any) error {
	return a.SetMemoryAs(key, value, "")
}

// GetMemoryAs 读取内存，附带显式调用方身份用于可疑访问检测。
func (a *Agent) GetMemoryAs(key string, callerAgentID ids.AgentId) (any, error) {
	a.mu.RLock()
	if a.destroyed {
		a.mu.RUnlock()
		return nil, apperrors.New("agent.Agent.GetMemory", apperrors.CodeAgentDestroyed, "agent is destroyed", apperrors.ErrAgentDestroyed)
	}
	v := a.memory[key]
	a.mu.RUnlock()

	a.logMemoryAccess("read", key, callerAgentID)
	return v, nil
}

// SetMemoryAs 写入内存，附带显式调用方身份用于可疑访问检测。
func (a *Agent) SetMemoryAs(key string, value any, callerAgentID ids.AgentId) error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return apperrors.New("agent.Agent.SetMemory", apperrors.CodeAgentDestroyed, "agent is destroyed", apperrors.ErrAgentDestroyed)
	}
	a.memory[key] = value
	a.mu.Unlock()

	a.logMemoryAccess("write", key, callerAgentID)
	return nil
}

func (a *Agent) logMemoryAccess(op, key string, callerAgentID ids.AgentId) {
	if a.security == nil {
		return
	}
	suspicious := callerAgentID != "" && callerAgentID != a.id
	a.security.LogMemoryAccess(hostapi.MemoryAccessEvent{
		AgentID:    string(a.id),
		Operation:  op,
		Key:        key,
		Timestamp:  a.clock.Now(),
		CallerID:   string(callerAgentID),
		Suspicious: suspicious,
	})
	if suspicious && a.log != nil {
		a.log.Warn("suspicious memory access", "agent", string(a.id), "caller", string(callerAgentID), "key", key, "op", op)
	}
}

// OnMessage 注册一个消息处理器。
func (a *Agent) OnMessage(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, h)
}

// ReceiveMessage 并行调用全部处理器；若该消息是某个待处理请求的响应，
// 优先交给关联管理器处理而不触发普通处理器。
func (a *Agent) ReceiveMessage(ctx context.Context, m msg.Message) error {
	start := a.clock.Now()

	a.mu.RLock()
	destroyed := a.destroyed
	facet := a.messaging
	handlers := append([]Handler(nil), a.handlers...)
	a.mu.RUnlock()

	if destroyed {
		return apperrors.New("agent.Agent.ReceiveMessage", apperrors.CodeAgentDestroyed, "agent is destroyed", apperrors.ErrAgentDestroyed)
	}

	if facet != nil && facet.enabled && facet.container.CorrelationManager().HasPendingRequest(m.ID) {
		facet.container.CorrelationManager().HandleResponse(m)
		a.observeDelivery(start)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, h := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			errs[i] = h(ctx, m)
		}(i, h)
	}
	wg.Wait()

	a.observeDelivery(start)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) observeDelivery(start time.Time) {
	if a.metrics == nil {
		return
	}
	elapsed := a.clock.Since(start).Seconds() * 1000
	a.metrics.MessageDelivery().Labels(map[string]string{"agent": string(a.id)}).Observe(elapsed)
}

// Destroy 幂等地销毁代理: 标记 destroyed、注销安全监控、清空内存与处理器。
func (a *Agent) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	facet := a.messaging
	a.memory = nil
	a.handlers = nil
	a.mu.Unlock()

	if a.security != nil {
		a.security.UnregisterAgent(string(a.id))
	}
	if facet != nil && facet.enabled {
		facet.container.SubscriptionRegistry().Cleanup(a.id)
		facet.container.CorrelationManager().CancelPendingRequests(a.id)
		// 本实现为每个启用消息的代理分配专属容器 (1:1)，因此本代理即
		// "持有该容器引用的最后一个代理"，销毁即可安全关闭容器的后台
		// goroutine；若未来改为多代理共享一个容器，这里需要引用计数。
		facet.container.Close()
	}
}
