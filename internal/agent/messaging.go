// messaging.go — 消息能力 facet 的操作。
package agent

import (
	"context"

	"github.com/multi-agent/messaging-runtime/internal/container"
	"github.com/multi-agent/messaging-runtime/internal/health"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// IsMessagingEnabled 代理是否已附加消息能力。
func (a *Agent) IsMessagingEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.messaging != nil && a.messaging.enabled
}

// EnableMessaging 为代理附加给定容器的消息能力。
//
// 失败 (容器构造返回 InvalidConfiguration) 不影响代理继续作为非消息代理使用。
func (a *Agent) EnableMessaging(c *container.Container) error {
	if c == nil {
		return apperrors.New("agent.Agent.EnableMessaging", apperrors.CodeInvalidConfiguration, "container must not be nil", apperrors.ErrInvalidConfiguration)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return apperrors.New("agent.Agent.EnableMessaging", apperrors.CodeAgentDestroyed, "agent is destroyed", apperrors.ErrAgentDestroyed)
	}
	a.messaging = &messagingFacet{
		container: c,
		factory:   msg.NewFactory(a.idSource, a.clock),
		enabled:   true,
	}
	c.SubscriptionRegistry().RegisterAgent(a.id)
	return nil
}

// SubscribeToMessages 为代理订阅模式。
func (a *Agent) SubscribeToMessages(pattern ids.MessagePattern) error {
	facet, err := a.requireMessaging("SubscribeToMessages")
	if err != nil {
		return err
	}
	return facet.container.SubscriptionRegistry().Subscribe(a.id, pattern)
}

// UnsubscribeFromMessages 取消代理对模式的订阅。
func (a *Agent) UnsubscribeFromMessages(pattern ids.MessagePattern) error {
	facet, err := a.requireMessaging("UnsubscribeFromMessages")
	if err != nil {
		return err
	}
	facet.container.SubscriptionRegistry().Unsubscribe(a.id, pattern)
	return nil
}

// GetActiveSubscriptions 返回代理当前订阅的全部模式。
func (a *Agent) GetActiveSubscriptions() ([]ids.MessagePattern, error) {
	facet, err := a.requireMessaging("GetActiveSubscriptions")
	if err != nil {
		return nil, err
	}
	return facet.container.SubscriptionRegistry().GetAgentSubscriptions(a.id), nil
}

// PublishMessage 构造并通过容器的路由器发布一条消息。
func (a *Agent) PublishMessage(ctx context.Context, to ids.AgentId, msgType string, payload any) error {
	facet, err := a.requireMessaging("PublishMessage")
	if err != nil {
		return err
	}
	m, err := facet.factory.New(a.id, to, msgType, payload)
	if err != nil {
		return err
	}
	res := facet.container.Router().Route(ctx, m)
	if !res.Success {
		return res.Error
	}
	return nil
}

// Request 发布一条请求并阻塞等待匹配的响应或超时。
//
// 关联 id 就是发出请求消息的 id (spec GLOSSARY "Correlation id")。
func (a *Agent) Request(ctx context.Context, to ids.AgentId, msgType string, payload any, timeoutMs int) (any, error) {
	facet, err := a.requireMessaging("Request")
	if err != nil {
		return nil, err
	}
	m, err := facet.factory.New(a.id, to, msgType, payload)
	if err != nil {
		return nil, err
	}

	waiter, err := facet.container.CorrelationManager().RegisterRequest(m.ID, m, timeoutMs, a.id)
	if err != nil {
		return nil, err
	}

	res := facet.container.Router().Route(ctx, m)
	if !res.Success {
		facet.container.CorrelationManager().CancelRequest(m.ID)
		return nil, res.Error
	}

	return waiter.Wait(ctx)
}

// Reply 回复一条之前收到的请求消息，复用原始消息 id 作为关联 id
// (spec GLOSSARY "Correlation id": 响应方复用请求消息的 id 来标识回复)。
func (a *Agent) Reply(ctx context.Context, originalMessageID ids.MessageId, to ids.AgentId, replyType string, payload any) error {
	facet, err := a.requireMessaging("Reply")
	if err != nil {
		return err
	}
	m, err := facet.factory.NewReply(originalMessageID, a.id, to, replyType, payload)
	if err != nil {
		return err
	}
	res := facet.container.Router().Route(ctx, m)
	if !res.Success {
		return res.Error
	}
	return nil
}

// HealthReport 返回本代理消息容器的组件健康快照。
// ok=false 代表消息能力未启用。
func (a *Agent) HealthReport() (map[string]health.ComponentHealth, bool) {
	facet, err := a.requireMessaging("HealthReport")
	if err != nil {
		return nil, false
	}
	return facet.container.HealthMonitor().GetHealthReport(), true
}

func (a *Agent) requireMessaging(op string) (*messagingFacet, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.destroyed {
		return nil, apperrors.New("agent.Agent."+op, apperrors.CodeAgentDestroyed, "agent is destroyed", apperrors.ErrAgentDestroyed)
	}
	if a.messaging == nil || !a.messaging.enabled {
		return nil, apperrors.New("agent.Agent."+op, apperrors.CodeInvalidConfiguration, "messaging is not enabled for this agent", apperrors.ErrInvalidConfiguration)
	}
	return a.messaging, nil
}
