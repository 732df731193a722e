package agent

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/multi-agent/messaging-runtime/internal/container"
	"github.com/multi-agent/messaging-runtime/internal/delivery"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/idgen"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

type registryResolver struct {
	agents map[ids.AgentId]*Agent
}

func (r *registryResolver) ResolveRecipients(agentIDs []ids.AgentId) []delivery.Recipient {
	out := make([]delivery.Recipient, 0, len(agentIDs))
	for _, id := range agentIDs {
		if a, ok := r.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	a := New("a1", nil, nil, nil, hostapi.SystemClock{}, idgen.UUIDSource{})
	if err := a.SetMemory("k", 42); err != nil {
		t.Fatalf("SetMemory failed: %v", err)
	}
	v, err := a.GetMemory("k")
	if err != nil || v != 42 {
		t.Errorf("GetMemory = %v, %v, want 42, nil", v, err)
	}
}

func TestMemoryFailsOnDestroyedAgent(t *testing.T) {
	a := New("a1", nil, nil, nil, hostapi.SystemClock{}, idgen.UUIDSource{})
	a.Destroy()
	if _, err := a.GetMemory("k"); apperrors.Code(err) != apperrors.CodeAgentDestroyed {
		t.Errorf("Code = %q, want AGENT_DESTROYED", apperrors.Code(err))
	}
	if err := a.SetMemory("k", 1); apperrors.Code(err) != apperrors.CodeAgentDestroyed {
		t.Errorf("Code = %q, want AGENT_DESTROYED", apperrors.Code(err))
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	a := New("a1", nil, nil, nil, hostapi.SystemClock{}, idgen.UUIDSource{})
	a.Destroy()
	a.Destroy() // must not panic
	if a.IsActive() {
		t.Error("agent should be inactive after destroy")
	}
}

func TestReceiveMessageInvokesAllHandlers(t *testing.T) {
	a := New("a2", nil, nil, nil, hostapi.SystemClock{}, idgen.UUIDSource{})
	var calls int32
	a.OnMessage(func(ctx context.Context, m msg.Message) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	a.OnMessage(func(ctx context.Context, m msg.Message) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	err := a.ReceiveMessage(context.Background(), msg.Message{ID: "m1", Type: "greeting", Payload: map[string]any{"text": "hi"}})
	if err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDirectSendHappyPathViaReceiveMessage(t *testing.T) {
	a2 := New("a2", nil, nil, nil, hostapi.SystemClock{}, idgen.UUIDSource{})
	var got msg.Message
	a2.OnMessage(func(ctx context.Context, m msg.Message) error {
		got = m
		return nil
	})

	m := msg.Message{ID: "m1", From: "a1", To: "a2", Type: "greeting", Payload: map[string]any{"text": "hi"}}
	if err := a2.ReceiveMessage(context.Background(), m); err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}
	if got.From != "a1" || got.To != "a2" || got.Type != "greeting" {
		t.Errorf("handler received %+v, want matching envelope", got)
	}
}

func TestEnableMessagingAndSubscribe(t *testing.T) {
	c, err := container.New(context.Background(), container.DefaultConfig(), &registryResolver{agents: map[ids.AgentId]*Agent{}}, nil, nil)
	if err != nil {
		t.Fatalf("container.New failed: %v", err)
	}
	defer c.Close()

	a := New("a1", nil, nil, nil, hostapi.SystemClock{}, idgen.UUIDSource{})
	if err := a.EnableMessaging(c); err != nil {
		t.Fatalf("EnableMessaging failed: %v", err)
	}
	if !a.IsMessagingEnabled() {
		t.Fatal("IsMessagingEnabled should be true")
	}
	if err := a.SubscribeToMessages("test.*"); err != nil {
		t.Fatalf("SubscribeToMessages failed: %v", err)
	}
	subs, err := a.GetActiveSubscriptions()
	if err != nil || len(subs) != 1 {
		t.Errorf("GetActiveSubscriptions = %v, %v, want 1 pattern", subs, err)
	}
}
