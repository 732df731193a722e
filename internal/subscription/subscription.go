// Package subscription 维护模式↔代理的订阅索引。
//
// map + 单 RWMutex 的思路泛化为 direct/wildcard/byAgent 三个耦合索引，
// 在一个临界区内原子更新。
package subscription

import (
	"sort"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/patternmatch"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"

	"sync"
)

// DefaultSubscriptionLimit 每个代理最多订阅的模式数。
const DefaultSubscriptionLimit = 100

// Registry 三索引订阅表。
type Registry struct {
	matcher *patternmatch.Matcher
	log     hostapi.Logger
	limit   int

	mu        sync.RWMutex
	direct    map[ids.ValidatedMessageType]map[ids.AgentId]struct{}
	wildcard  map[ids.MessagePattern]map[ids.AgentId]struct{}
	byAgent   map[ids.AgentId]map[ids.MessagePattern]struct{}
	active    map[ids.AgentId]struct{}
}

// New 创建订阅注册表；limit ≤ 0 时使用默认值 100。
func New(matcher *patternmatch.Matcher, limit int, log hostapi.Logger) *Registry {
	if limit <= 0 {
		limit = DefaultSubscriptionLimit
	}
	return &Registry{
		matcher:  matcher,
		log:      log,
		limit:    limit,
		direct:   make(map[ids.ValidatedMessageType]map[ids.AgentId]struct{}),
		wildcard: make(map[ids.MessagePattern]map[ids.AgentId]struct{}),
		byAgent:  make(map[ids.AgentId]map[ids.MessagePattern]struct{}),
		active:   make(map[ids.AgentId]struct{}),
	}
}

// RegisterAgent 将代理加入 activeAgents。
func (r *Registry) RegisterAgent(agentID ids.AgentId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[agentID] = struct{}{}
	if _, ok := r.byAgent[agentID]; !ok {
		r.byAgent[agentID] = make(map[ids.MessagePattern]struct{})
	}
}

// Subscribe 幂等地为代理订阅 pattern。
func (r *Registry) Subscribe(agentID ids.AgentId, pattern ids.MessagePattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patterns := r.byAgent[agentID]
	if patterns == nil {
		patterns = make(map[ids.MessagePattern]struct{})
		r.byAgent[agentID] = patterns
	}
	if _, already := patterns[pattern]; already {
		return nil
	}
	if len(patterns) >= r.limit {
		return apperrors.Newf("subscription.Registry.Subscribe", apperrors.CodeSubscriptionLimit,
			apperrors.ErrSubscriptionLimit, "agent %s already has %d subscriptions", agentID, r.limit)
	}

	patterns[pattern] = struct{}{}
	r.active[agentID] = struct{}{}

	if ids.IsWildcard(pattern) {
		set := r.wildcard[pattern]
		if set == nil {
			set = make(map[ids.AgentId]struct{})
			r.wildcard[pattern] = set
		}
		set[agentID] = struct{}{}
	} else {
		mt := ids.ValidatedMessageType(pattern)
		set := r.direct[mt]
		if set == nil {
			set = make(map[ids.AgentId]struct{})
			r.direct[mt] = set
		}
		set[agentID] = struct{}{}
	}
	return nil
}

// Unsubscribe 幂等地取消订阅，清理空集合保持索引紧凑。
func (r *Registry) Unsubscribe(agentID ids.AgentId, pattern ids.MessagePattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(agentID, pattern)
}

func (r *Registry) unsubscribeLocked(agentID ids.AgentId, pattern ids.MessagePattern) {
	patterns := r.byAgent[agentID]
	if patterns == nil {
		return
	}
	if _, ok := patterns[pattern]; !ok {
		return
	}
	delete(patterns, pattern)

	if ids.IsWildcard(pattern) {
		if set, ok := r.wildcard[pattern]; ok {
			delete(set, agentID)
			if len(set) == 0 {
				delete(r.wildcard, pattern)
			}
		}
	} else {
		mt := ids.ValidatedMessageType(pattern)
		if set, ok := r.direct[mt]; ok {
			delete(set, agentID)
			if len(set) == 0 {
				delete(r.direct, mt)
			}
		}
	}
}

// GetSubscribers 返回精确命中与通配匹配的去重代理集合。
func (r *Registry) GetSubscribers(messageType ids.ValidatedMessageType) []ids.AgentId {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[ids.AgentId]struct{})
	for agentID := range r.direct[messageType] {
		result[agentID] = struct{}{}
	}
	for pattern, agents := range r.wildcard {
		matched, err := r.matcher.Matches(pattern, messageType)
		if err != nil {
			if r.log != nil {
				r.log.Error("wildcard pattern compile failed during lookup", "pattern", string(pattern), "err", err)
			}
			continue
		}
		if matched {
			for agentID := range agents {
				result[agentID] = struct{}{}
			}
		}
	}

	out := make([]ids.AgentId, 0, len(result))
	for agentID := range result {
		out = append(out, agentID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Cleanup 取消代理的全部订阅并移出 activeAgents。
func (r *Registry) Cleanup(agentID ids.AgentId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	patterns := r.byAgent[agentID]
	for pattern := range patterns {
		r.unsubscribeLocked(agentID, pattern)
	}
	delete(r.byAgent, agentID)
	delete(r.active, agentID)
}

// GetAgentSubscriptions 返回代理当前订阅的全部模式。
func (r *Registry) GetAgentSubscriptions(agentID ids.AgentId) []ids.MessagePattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ids.MessagePattern, 0, len(r.byAgent[agentID]))
	for p := range r.byAgent[agentID] {
		out = append(out, p)
	}
	return out
}

// GetAllActiveAgents 返回所有已注册的代理。
func (r *Registry) GetAllActiveAgents() []ids.AgentId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ids.AgentId, 0, len(r.active))
	for a := range r.active {
		out = append(out, a)
	}
	return out
}

// GetSubscriptionCount 返回代理当前订阅数。
func (r *Registry) GetSubscriptionCount(agentID ids.AgentId) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAgent[agentID])
}
