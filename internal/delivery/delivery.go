// Package delivery 将一条消息投递给一组接收者。
//
// 并发上限采用带缓冲信号量 channel 的经典 Go 写法；重试退避用
// time.After 依次等待固定序列 10ms、40ms。
package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// DefaultMaxConcurrentDeliveries 默认并发投递上限。
const DefaultMaxConcurrentDeliveries = 1000

// retryBackoffs 重试退避序列。
var retryBackoffs = []time.Duration{10 * time.Millisecond, 40 * time.Millisecond}

// Recipient 可接收消息的投递目标；通常由 internal/agent.Agent 实现。
type Recipient interface {
	ID() ids.AgentId
	ReceiveMessage(ctx context.Context, m msg.Message) error
}

// FailedDelivery 单个接收者的投递失败记录。
type FailedDelivery struct {
	AgentID ids.AgentId
	Err     error
}

// Result 一次 deliver 调用的结果。
type Result struct {
	Delivered  []ids.AgentId
	Failed     []FailedDelivery
	DurationMs int64
}

// Engine 投递引擎: 并发上限 + 重试。
type Engine struct {
	log   hostapi.Logger
	clock hostapi.Clock
	sem   chan struct{}

	delivered int64
	failed    int64
}

// New 创建投递引擎；maxConcurrent ≤ 0 时使用默认值。
func New(maxConcurrent int, log hostapi.Logger, clock hostapi.Clock) *Engine {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDeliveries
	}
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	return &Engine{log: log, clock: clock, sem: make(chan struct{}, maxConcurrent)}
}

// Deliver 并发地把消息投递给每个接收者，捕获并隔离单个接收者的失败。
func (e *Engine) Deliver(ctx context.Context, message msg.Message, recipients []Recipient) Result {
	start := e.clock.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	result := Result{}

	for _, r := range recipients {
		wg.Add(1)
		go func(r Recipient) {
			defer wg.Done()

			select {
			case e.sem <- struct{}{}:
				defer func() { <-e.sem }()
			case <-ctx.Done():
				mu.Lock()
				result.Failed = append(result.Failed, FailedDelivery{AgentID: r.ID(), Err: ctx.Err()})
				mu.Unlock()
				return
			}

			err := e.deliverWithRetry(ctx, r, message)

			mu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, FailedDelivery{AgentID: r.ID(), Err: err})
			} else {
				result.Delivered = append(result.Delivered, r.ID())
			}
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	result.DurationMs = e.clock.Since(start).Milliseconds()

	atomic.AddInt64(&e.delivered, int64(len(result.Delivered)))
	atomic.AddInt64(&e.failed, int64(len(result.Failed)))

	return result
}

// deliverWithRetry 对瞬时错误重试 2 次 (10ms,40ms 退避)，AgentDestroyed 不重试。
func (e *Engine) deliverWithRetry(ctx context.Context, r Recipient, message msg.Message) error {
	var lastErr error
	for attempt := 0; attempt <= len(retryBackoffs); attempt++ {
		lastErr = r.ReceiveMessage(ctx, message)
		if lastErr == nil {
			return nil
		}
		if apperrors.Code(lastErr) == apperrors.CodeAgentDestroyed {
			return lastErr
		}
		if attempt == len(retryBackoffs) {
			break
		}
		if e.log != nil {
			e.log.Warn("delivery attempt failed, retrying", "agent", string(r.ID()), "attempt", attempt, "err", lastErr)
		}
		select {
		case <-time.After(retryBackoffs[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Stats 投递引擎累计统计。
type Stats struct {
	Delivered int64
	Failed    int64
}

// GetStats 返回累计统计。
func (e *Engine) GetStats() Stats {
	return Stats{
		Delivered: atomic.LoadInt64(&e.delivered),
		Failed:    atomic.LoadInt64(&e.failed),
	}
}

// ClearStats 重置累计统计。
func (e *Engine) ClearStats() {
	atomic.StoreInt64(&e.delivered, 0)
	atomic.StoreInt64(&e.failed, 0)
}
