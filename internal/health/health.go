// Package health 维护每个组件的健康状态与 3 态熔断器。
//
// 状态分类逻辑是简单的阈值判定: 失败计数达到阈值即跳闸。
package health

import (
	"sync"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// State 熔断器状态机。
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// DefaultThreshold 默认熔断阈值。
const DefaultThreshold = 10

// checkBudget 健康检查操作预算。
const checkBudget = 1 * time.Millisecond

// ComponentHealth 单个组件的健康快照。
type ComponentHealth struct {
	ComponentID   string
	Healthy       bool
	FailureCount  int
	LastMessage   string
	LastError     string
	LastCheckTime time.Time
	State         State
	Threshold     int
}

// Monitor 健康监控器。
type Monitor struct {
	log   hostapi.Logger
	clock hostapi.Clock

	mu         sync.Mutex
	components map[string]*ComponentHealth
}

// New 创建健康监控器。
func New(log hostapi.Logger, clock hostapi.Clock) *Monitor {
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	return &Monitor{log: log, clock: clock, components: make(map[string]*ComponentHealth)}
}

func (m *Monitor) getOrCreateLocked(componentID string) *ComponentHealth {
	c, ok := m.components[componentID]
	if !ok {
		c = &ComponentHealth{
			ComponentID: componentID,
			Healthy:     true,
			State:       Closed,
			Threshold:   DefaultThreshold,
		}
		m.components[componentID] = c
	}
	return c
}

// RecordHealth 标记一次健康检查结果。
func (m *Monitor) RecordHealth(componentID string, healthy bool, message string) {
	start := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.getOrCreateLocked(componentID)
	c.LastMessage = message
	c.LastCheckTime = m.clock.Now()
	if healthy {
		c.FailureCount = 0
		c.State = Closed
		c.Healthy = true
	}
	m.warnIfSlow(start)
}

// RecordFailure 记录一次失败，驱动熔断状态机前进。
func (m *Monitor) RecordFailure(componentID string, err error) {
	start := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.getOrCreateLocked(componentID)
	c.FailureCount++
	if err != nil {
		c.LastError = err.Error()
	}
	c.LastCheckTime = m.clock.Now()

	switch c.State {
	case Closed:
		if c.FailureCount >= c.Threshold {
			c.State = Open
			c.Healthy = false
			if m.log != nil {
				m.log.Warn("circuit breaker opened", "component", componentID, "failureCount", c.FailureCount)
			}
		}
	case HalfOpen:
		c.State = Open
		c.Healthy = false
		if m.log != nil {
			m.log.Warn("circuit breaker recovery failed, reopening", "component", componentID)
		}
	}
	m.warnIfSlow(start)
}

// AttemptRecovery 仅允许 Open → HalfOpen。
func (m *Monitor) AttemptRecovery(componentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.components[componentID]
	if !ok || c.State != Open {
		return apperrors.Newf("health.Monitor.AttemptRecovery", apperrors.CodeInvalidConfiguration,
			apperrors.ErrInvalidConfiguration, "component %s is not in Open state", componentID)
	}
	c.State = HalfOpen
	if m.log != nil {
		m.log.Info("circuit breaker attempting recovery", "component", componentID)
	}
	return nil
}

// SetCircuitBreakerThreshold 设置组件的熔断阈值，必须 ≥ 1。
func (m *Monitor) SetCircuitBreakerThreshold(componentID string, threshold int) error {
	if threshold < 1 {
		return apperrors.New("health.Monitor.SetCircuitBreakerThreshold", apperrors.CodeInvalidConfiguration,
			"threshold must be >= 1", apperrors.ErrInvalidConfiguration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.getOrCreateLocked(componentID)
	c.Threshold = threshold
	return nil
}

// RemoveComponent 移除一个组件的健康记录。
func (m *Monitor) RemoveComponent(componentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.components, componentID)
}

// GetComponentHealth 返回单个组件的健康快照副本。
func (m *Monitor) GetComponentHealth(componentID string) (ComponentHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.components[componentID]
	if !ok {
		return ComponentHealth{}, false
	}
	return *c, true
}

// GetHealthReport 返回全部组件的健康快照。
func (m *Monitor) GetHealthReport() map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ComponentHealth, len(m.components))
	for k, v := range m.components {
		out[k] = *v
	}
	return out
}

// Stats 汇总健康状态统计。
type Stats struct {
	Total, Healthy, Open, HalfOpen int
}

// GetStats 返回汇总统计。
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, c := range m.components {
		s.Total++
		if c.Healthy {
			s.Healthy++
		}
		switch c.State {
		case Open:
			s.Open++
		case HalfOpen:
			s.HalfOpen++
		}
	}
	return s
}

func (m *Monitor) warnIfSlow(start time.Time) {
	if m.log == nil {
		return
	}
	if elapsed := m.clock.Since(start); elapsed > checkBudget {
		m.log.Warn("health check exceeded execution budget", "elapsed_ms", elapsed.Milliseconds())
	}
}
