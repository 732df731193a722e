// Package securitylog 实现 hostapi.SecurityMonitor。
//
// 默认实现是有界环形缓冲区 (内存)，"append + 有界 list" 的读写模式，但不
// 依赖数据库——审计事件量小、进程内可查即可。可选的 Postgres 持久化实现
// 走 internal/database 的 pgxpool 连接池，供需要跨进程重启保留审计轨迹
// 的部署使用。
package securitylog

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
)

// DefaultRingSize 内存环形缓冲区容量。
const DefaultRingSize = 10000

// Ring 有界环形缓冲区 SecurityMonitor，默认总是可用，不需要外部依赖。
type Ring struct {
	mu      sync.Mutex
	entries []hostapi.MemoryAccessEvent
	max     int
	next    int
	count   int

	registered map[string]struct{}
	sink       *PostgresSink
}

// SetSink 附加一个可选的持久化 sink；每条写入 Ring 的事件额外异步镜像
// 过去。sink 为 nil 时恢复纯内存模式。
func (r *Ring) SetSink(sink *PostgresSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// NewRing 创建容量为 max 的内存审计 sink；max ≤ 0 时使用 DefaultRingSize。
func NewRing(max int) *Ring {
	if max <= 0 {
		max = DefaultRingSize
	}
	return &Ring{
		entries:    make([]hostapi.MemoryAccessEvent, max),
		max:        max,
		registered: make(map[string]struct{}),
	}
}

// RegisterAgent 记录代理已注册 (用于可疑访问判定之外的存在性追踪)。
func (r *Ring) RegisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[agentID] = struct{}{}
}

// UnregisterAgent 移除代理的注册记录。
func (r *Ring) UnregisterAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, agentID)
}

// LogMemoryAccess 写入一条审计事件，环形覆盖最旧条目。
func (r *Ring) LogMemoryAccess(entry hostapi.MemoryAccessEvent) {
	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.max
	if r.count < r.max {
		r.count++
	}
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink.Append(entry)
	}
}

// Recent 返回最近的审计事件，最多 limit 条，按时间倒序。
func (r *Ring) Recent(limit int) []hostapi.MemoryAccessEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]hostapi.MemoryAccessEvent, 0, limit)
	idx := (r.next - 1 + r.max) % r.max
	for i := 0; i < limit; i++ {
		out = append(out, r.entries[idx])
		idx = (idx - 1 + r.max) % r.max
	}
	return out
}

// Suspicious 返回被标记为可疑的近期事件。
func (r *Ring) Suspicious(limit int) []hostapi.MemoryAccessEvent {
	all := r.Recent(r.max)
	out := make([]hostapi.MemoryAccessEvent, 0, limit)
	for _, e := range all {
		if e.Suspicious {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// PostgresSink 可选的持久化审计 sink，在 Ring 之外异步写入 Postgres。
//
// 失败只记录日志，绝不让审计写入阻塞或影响内存访问路径本身。
type PostgresSink struct {
	pool *pgxpool.Pool
	log  hostapi.Logger
}

// NewPostgresSink 创建基于连接池的持久化 sink。
func NewPostgresSink(pool *pgxpool.Pool, log hostapi.Logger) *PostgresSink {
	return &PostgresSink{pool: pool, log: log}
}

// Append 异步插入一条审计事件；对应 store.AuditLogStore.Append 的
// INSERT 形状，收敛到内存访问审计表的列集合。
func (s *PostgresSink) Append(e hostapi.MemoryAccessEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.pool.Exec(ctx,
			`INSERT INTO memory_access_events (agent_id, operation, key, caller_id, suspicious, ts)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.AgentID, e.Operation, e.Key, e.CallerID, e.Suspicious, e.Timestamp)
		if err != nil && s.log != nil {
			s.log.Error("failed to persist memory access event", "err", err)
		}
	}()
}
