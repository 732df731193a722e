// Package agentmanager 是单例作用域的代理生命周期协调器。
//
// 建模为带显式 init/teardown 的进程作用域服务: 没有包级全局状态，所有
// 协作方 (Logger/Metrics/IDSource/SecurityMonitor) 都通过构造函数注入。
package agentmanager

import (
	"context"
	"sync"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/agent"
	"github.com/multi-agent/messaging-runtime/internal/container"
	"github.com/multi-agent/messaging-runtime/internal/delivery"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// MaxAgents 单个 AgentManager 持有的最大代理数。
const MaxAgents = 10

// deliveryWarnThreshold sendMessage 直接投递耗时告警阈值。
const deliveryWarnThreshold = 10 * time.Millisecond

// CreateOptions 创建代理时的可选参数。
type CreateOptions struct {
	EnableMessaging bool
	MessagingConfig container.MessagingConfig
}

// Manager 单例作用域的生命周期协调器。
type Manager struct {
	log      hostapi.Logger
	metrics  hostapi.Metrics
	idSource hostapi.IDSource
	security hostapi.SecurityMonitor
	clock    hostapi.Clock
	factory  *msg.Factory

	mu     sync.RWMutex
	agents map[ids.AgentId]*agent.Agent
}

// New 创建代理管理器，所有协作方在构造时显式注入。
func New(log hostapi.Logger, metrics hostapi.Metrics, idSource hostapi.IDSource, security hostapi.SecurityMonitor, clock hostapi.Clock) *Manager {
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	return &Manager{
		log:      log,
		metrics:  metrics,
		idSource: idSource,
		security: security,
		clock:    clock,
		factory:  msg.NewFactory(idSource, clock),
		agents:   make(map[ids.AgentId]*agent.Agent),
	}
}

// ResolveRecipients 实现 router.RecipientResolver，把代理注册表暴露给
// 各代理的消息路由器，而无需每个容器各自持有一份代理目录的副本。
func (m *Manager) ResolveRecipients(agentIDs []ids.AgentId) []delivery.Recipient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]delivery.Recipient, 0, len(agentIDs))
	for _, id := range agentIDs {
		if a, ok := m.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// CreateAgent 创建并注册一个新代理。
func (m *Manager) CreateAgent(ctx context.Context, id ids.AgentId, opts CreateOptions) (*agent.Agent, error) {
	start := m.clock.Now()

	if id == "" {
		id = ids.AgentId(m.idSource.NewV4())
	}

	m.mu.Lock()
	if len(m.agents) >= MaxAgents {
		m.mu.Unlock()
		return nil, apperrors.Newf("agentmanager.Manager.CreateAgent", apperrors.CodeAgentLimitExceeded,
			apperrors.ErrAgentLimitExceeded, "agent count already at limit %d", MaxAgents)
	}
	if _, exists := m.agents[id]; exists {
		m.mu.Unlock()
		return nil, apperrors.Newf("agentmanager.Manager.CreateAgent", apperrors.CodeDuplicateAgentID,
			apperrors.ErrDuplicateAgentID, "agent id %s already exists", id)
	}

	a := agent.New(id, m.log, m.metrics, m.security, m.clock, m.idSource)
	m.agents[id] = a
	m.mu.Unlock()

	if opts.EnableMessaging {
		cfg := opts.MessagingConfig
		if (cfg == container.MessagingConfig{}) {
			cfg = container.DefaultConfig()
		}
		c, err := container.New(ctx, cfg, m, m.log, m.clock)
		if err != nil {
			if m.log != nil {
				m.log.Error("failed to attach messaging to new agent, continuing without it", "agent", string(id), "err", err)
			}
		} else if err := a.EnableMessaging(c); err != nil {
			if m.log != nil {
				m.log.Error("failed to enable messaging on new agent, continuing without it", "agent", string(id), "err", err)
			}
		}
	}

	m.observeCreation(start)
	return a, nil
}

func (m *Manager) observeCreation(start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.AgentCreation().Labels(nil).Observe(m.clock.Since(start).Seconds() * 1000)
}

// GetAgent 返回已注册代理；不存在时返回 false。
func (m *Manager) GetAgent(id ids.AgentId) (*agent.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// HasAgent 判定代理是否已注册。
func (m *Manager) HasAgent(id ids.AgentId) bool {
	_, ok := m.GetAgent(id)
	return ok
}

// ListAgents 返回当前已注册的全部代理。
func (m *Manager) ListAgents() []*agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*agent.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	return out
}

// GetAgentCount 返回当前已注册的代理数。
func (m *Manager) GetAgentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// DestroyAgent 先从注册表移除 (阻止新的发送)，再销毁代理。
func (m *Manager) DestroyAgent(id ids.AgentId) {
	m.mu.Lock()
	a, ok := m.agents[id]
	if ok {
		delete(m.agents, id)
	}
	m.mu.Unlock()

	start := m.clock.Now()
	if !ok {
		if m.log != nil {
			m.log.Warn("destroyAgent: no such agent, no-op", "agent", string(id))
		}
		return
	}
	a.Destroy()
	if m.metrics != nil {
		m.metrics.AgentDestruction().Labels(nil).Observe(m.clock.Since(start).Seconds() * 1000)
	}
}

// DestroyAll 清空注册表并销毁全部代理；个体失败只记录日志。
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	all := m.agents
	m.agents = make(map[ids.AgentId]*agent.Agent)
	m.mu.Unlock()

	for id, a := range all {
		func() {
			defer func() {
				if r := recover(); r != nil && m.log != nil {
					m.log.Error("destroyAll: panic destroying agent", "agent", string(id), "recover", r)
				}
			}()
			a.Destroy()
		}()
	}
}

// SendMessage 构造消息并绕过路由/订阅直接投递给收件人。
func (m *Manager) SendMessage(ctx context.Context, from, to ids.AgentId, msgType string, payload any) error {
	m.mu.RLock()
	_, fromOK := m.agents[from]
	recipient, toOK := m.agents[to]
	m.mu.RUnlock()

	if !fromOK {
		return apperrors.Newf("agentmanager.Manager.SendMessage", apperrors.CodeAgentNotFound, apperrors.ErrAgentNotFound, "sender %s not found", from)
	}
	if !toOK {
		return apperrors.Newf("agentmanager.Manager.SendMessage", apperrors.CodeAgentNotFound, apperrors.ErrAgentNotFound, "recipient %s not found", to)
	}

	m2, err := m.factory.New(from, to, msgType, payload)
	if err != nil {
		return err
	}

	start := m.clock.Now()
	err = recipient.ReceiveMessage(ctx, m2)
	if elapsed := m.clock.Since(start); elapsed > deliveryWarnThreshold && m.log != nil {
		m.log.Warn("direct send exceeded warn threshold", "from", string(from), "to", string(to), "elapsedMs", elapsed.Milliseconds())
	}
	return err
}

// BroadcastMessage 向除发送方外的全部代理并行投递；单个失败只记录日志。
func (m *Manager) BroadcastMessage(ctx context.Context, from ids.AgentId, msgType string, payload any) error {
	m.mu.RLock()
	_, fromOK := m.agents[from]
	recipients := make([]*agent.Agent, 0, len(m.agents))
	for id, a := range m.agents {
		if id != from {
			recipients = append(recipients, a)
		}
	}
	m.mu.RUnlock()

	if !fromOK {
		return apperrors.Newf("agentmanager.Manager.BroadcastMessage", apperrors.CodeAgentNotFound, apperrors.ErrAgentNotFound, "sender %s not found", from)
	}

	var wg sync.WaitGroup
	for _, r := range recipients {
		wg.Add(1)
		go func(r *agent.Agent) {
			defer wg.Done()
			m3, err := m.factory.New(from, r.ID(), msgType, payload)
			if err != nil {
				if m.log != nil {
					m.log.Error("broadcast: failed to build message", "to", string(r.ID()), "err", err)
				}
				return
			}
			if err := r.ReceiveMessage(ctx, m3); err != nil && m.log != nil {
				m.log.Error("broadcast: recipient delivery failed", "to", string(r.ID()), "err", err)
			}
		}(r)
	}
	wg.Wait()
	return nil
}

// EnableAgentMessaging 为已存在的代理附加消息能力。
func (m *Manager) EnableAgentMessaging(ctx context.Context, id ids.AgentId, cfg container.MessagingConfig) error {
	a, ok := m.GetAgent(id)
	if !ok {
		return apperrors.Newf("agentmanager.Manager.EnableAgentMessaging", apperrors.CodeAgentNotFound, apperrors.ErrAgentNotFound, "agent %s not found", id)
	}
	c, err := container.New(ctx, cfg, m, m.log, m.clock)
	if err != nil {
		return err
	}
	return a.EnableMessaging(c)
}

// MessagingStats 跨代理的消息能力统计摘要。
type MessagingStats struct {
	TotalAgents           int
	MessagingEnabledCount int
}

// GetMessagingStats 返回聚合统计。
func (m *Manager) GetMessagingStats() MessagingStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := MessagingStats{TotalAgents: len(m.agents)}
	for _, a := range m.agents {
		if a.IsMessagingEnabled() {
			stats.MessagingEnabledCount++
		}
	}
	return stats
}
