// Package correlation 追踪请求/响应配对及超时。
//
// 后台清扫走 `for { select { case <-ctx.Done(): ...; case <-ticker.C:
// ...} }` 的习惯用法，通过 pkg/util.SafeGo 启动以保证 panic 不会杀死
// 整个进程。
package correlation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
	"github.com/multi-agent/messaging-runtime/pkg/util"
)

// MaxPending CorrelationManager 同时持有的最大待处理请求数。
const MaxPending = 10000

// sweepInterval 后台清扫周期。
const sweepInterval = 30 * time.Second

// staleAfter 超过此年龄的悬挂条目被强制清除，防御性措施。
const staleAfter = 5 * time.Minute

// Waiter 请求方等待的结果句柄。
type Waiter struct {
	done    chan struct{}
	payload any
	err     error
}

// Wait 阻塞直至响应到达、超时、取消或 ctx 被取消。
func (w *Waiter) Wait(ctx context.Context) (any, error) {
	select {
	case <-w.done:
		return w.payload, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingEntry struct {
	correlationID   ids.MessageId
	requesterID     ids.AgentId
	originalMessage msg.Message
	createdAt       time.Time
	timer           *time.Timer
	waiter          *Waiter
	resolved        bool
}

// Manager 追踪待处理请求并在超时/取消时解除等待。
type Manager struct {
	log   hostapi.Logger
	clock hostapi.Clock

	mu      sync.Mutex
	pending map[ids.MessageId]*pendingEntry

	stopOnce sync.Once
	cancel   context.CancelFunc
	stopped  chan struct{}
}

// New 创建关联管理器并启动后台清扫 goroutine。
func New(ctx context.Context, log hostapi.Logger, clock hostapi.Clock) *Manager {
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		log:     log,
		clock:   clock,
		pending: make(map[ids.MessageId]*pendingEntry),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	util.SafeGo(func() { m.sweepLoop(sweepCtx) })
	return m
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepStale()
		}
	}
}

func (m *Manager) sweepStale() {
	now := m.clock.Now()
	m.mu.Lock()
	var stale []*pendingEntry
	for id, e := range m.pending {
		if now.Sub(e.createdAt) > staleAfter {
			stale = append(stale, e)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		if m.log != nil {
			m.log.Warn("force-removing stale pending request", "correlationId", string(e.correlationID), "age", now.Sub(e.createdAt).String())
		}
		e.timer.Stop()
		resolveOnce(e, nil, apperrors.New("correlation.Manager.sweep", apperrors.CodeRequestTimeout, "stale pending request force-removed", apperrors.ErrRequestTimeout))
	}
}

// Stop 停止后台清扫，供优雅关闭使用。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		<-m.stopped
	})
}

// RegisterRequest 登记一个待处理请求并返回可等待的句柄。
func (m *Manager) RegisterRequest(correlationID ids.MessageId, original msg.Message, timeoutMs int, requesterID ids.AgentId) (*Waiter, error) {
	m.mu.Lock()
	if len(m.pending) >= MaxPending {
		m.mu.Unlock()
		return nil, apperrors.New("correlation.Manager.RegisterRequest", apperrors.CodeResourceExhausted,
			"pending request slots exhausted", apperrors.ErrResourceExhausted)
	}

	w := &Waiter{done: make(chan struct{})}
	e := &pendingEntry{
		correlationID:   correlationID,
		requesterID:     requesterID,
		originalMessage: original,
		createdAt:       m.clock.Now(),
		waiter:          w,
	}
	e.timer = time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		m.onTimeout(correlationID)
	})
	m.pending[correlationID] = e
	m.mu.Unlock()
	return w, nil
}

func (m *Manager) onTimeout(correlationID ids.MessageId) {
	m.mu.Lock()
	e, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	resolveOnce(e, nil, apperrors.New("correlation.Manager.onTimeout", apperrors.CodeRequestTimeout,
		"request timed out", apperrors.ErrRequestTimeout).WithContext(map[string]any{
		"correlationId": string(e.correlationID),
		"requesterId":   string(e.requesterID),
	}))
}

// HandleResponse 按 response.ID 查找待处理请求并解除等待。
func (m *Manager) HandleResponse(response msg.Message) {
	correlationID := response.ID
	m.mu.Lock()
	e, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
	}
	m.mu.Unlock()

	if !ok {
		if m.log != nil {
			m.log.Warn("received response for unknown correlation id, dropping", "correlationId", string(correlationID))
		}
		return
	}
	e.timer.Stop()

	if strings.Contains(string(response.Type), "error") {
		// 子串匹配是有意为之，已知会对形如 "error-count.update" 的类型
		// 产生误判；不在此处"修正"。
		resolveOnce(e, nil, apperrors.New("correlation.Manager.HandleResponse", apperrors.CodeRequestFailed,
			"response carried an error type", apperrors.ErrRequestFailed).WithContext(map[string]any{"payload": response.Payload}))
		return
	}
	resolveOnce(e, response.Payload, nil)
}

// CancelRequest 以 RequestCancelled 拒绝并释放槽位。
func (m *Manager) CancelRequest(correlationID ids.MessageId) {
	m.mu.Lock()
	e, ok := m.pending[correlationID]
	if ok {
		delete(m.pending, correlationID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	e.timer.Stop()
	resolveOnce(e, nil, apperrors.New("correlation.Manager.CancelRequest", apperrors.CodeRequestCancelled,
		"request cancelled", apperrors.ErrRequestCancelled))
}

// CancelPendingRequests 拒绝指定请求方的全部待处理请求。
func (m *Manager) CancelPendingRequests(agentID ids.AgentId) {
	m.mu.Lock()
	var toCancel []*pendingEntry
	for id, e := range m.pending {
		if e.requesterID == agentID {
			toCancel = append(toCancel, e)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, e := range toCancel {
		e.timer.Stop()
		resolveOnce(e, nil, apperrors.New("correlation.Manager.CancelPendingRequests", apperrors.CodeRequestCancelled,
			"request cancelled: agent destroyed", apperrors.ErrRequestCancelled))
	}
}

// HasPendingRequest 判定某关联 id 是否仍处于待处理状态。
func (m *Manager) HasPendingRequest(correlationID ids.MessageId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[correlationID]
	return ok
}

// GetPendingRequestCount 返回当前待处理请求总数。
func (m *Manager) GetPendingRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// GetRequestAge 返回待处理请求已存在的时长；不存在时返回 false。
func (m *Manager) GetRequestAge(correlationID ids.MessageId) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[correlationID]
	if !ok {
		return 0, false
	}
	return m.clock.Since(e.createdAt), true
}

// Stats 关联管理器汇总统计。
type Stats struct {
	Pending int
	Max     int
}

// GetStats 返回汇总统计。
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Pending: len(m.pending), Max: MaxPending}
}

// resolveOnce 忽略对同一 id 的后续响应。
func resolveOnce(e *pendingEntry, payload any, err error) {
	if e.resolved {
		return
	}
	e.resolved = true
	e.waiter.payload = payload
	e.waiter.err = err
	close(e.waiter.done)
}
