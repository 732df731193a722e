package agentmanager

import (
	"context"
	"fmt"
	"testing"

	"github.com/multi-agent/messaging-runtime/internal/container"
	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/idgen"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

func newManager() *Manager {
	return New(nil, nil, idgen.UUIDSource{}, nil, hostapi.SystemClock{})
}

func TestCreateAgentGeneratesIDWhenOmitted(t *testing.T) {
	m := newManager()
	a, err := m.CreateAgent(context.Background(), "", CreateOptions{})
	if err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	if a.ID() == "" {
		t.Error("expected generated id, got empty string")
	}
	if !m.HasAgent(a.ID()) {
		t.Error("manager should have registered the new agent")
	}
}

func TestCreateAgentRejectsDuplicateID(t *testing.T) {
	m := newManager()
	if _, err := m.CreateAgent(context.Background(), "a1", CreateOptions{}); err != nil {
		t.Fatalf("first CreateAgent failed: %v", err)
	}
	_, err := m.CreateAgent(context.Background(), "a1", CreateOptions{})
	if apperrors.Code(err) != apperrors.CodeDuplicateAgentID {
		t.Errorf("Code = %q, want DUPLICATE_AGENT_ID", apperrors.Code(err))
	}
}

func TestCreateAgentEnforcesLimit(t *testing.T) {
	m := newManager()
	for i := 0; i < MaxAgents; i++ {
		id := ids.AgentId(fmt.Sprintf("agent-%d", i))
		if _, err := m.CreateAgent(context.Background(), id, CreateOptions{}); err != nil {
			t.Fatalf("CreateAgent %d failed: %v", i, err)
		}
	}
	_, err := m.CreateAgent(context.Background(), "overflow", CreateOptions{})
	if apperrors.Code(err) != apperrors.CodeAgentLimitExceeded {
		t.Errorf("Code = %q, want AGENT_LIMIT_EXCEEDED", apperrors.Code(err))
	}
	if m.GetAgentCount() != MaxAgents {
		t.Errorf("GetAgentCount = %d, want %d", m.GetAgentCount(), MaxAgents)
	}
}

func TestDestroyAgentRemovesFromRegistry(t *testing.T) {
	m := newManager()
	a, _ := m.CreateAgent(context.Background(), "a1", CreateOptions{})
	m.DestroyAgent(a.ID())
	if m.HasAgent(a.ID()) {
		t.Error("agent should be removed from registry after destroy")
	}
	if a.IsActive() {
		t.Error("agent should be inactive after destroy")
	}
}

func TestDestroyAgentNoOpOnMissingID(t *testing.T) {
	m := newManager()
	m.DestroyAgent("does-not-exist") // must not panic
}

func TestDestroyAllClearsRegistry(t *testing.T) {
	m := newManager()
	m.CreateAgent(context.Background(), "a1", CreateOptions{})
	m.CreateAgent(context.Background(), "a2", CreateOptions{})
	m.DestroyAll()
	if m.GetAgentCount() != 0 {
		t.Errorf("GetAgentCount = %d, want 0", m.GetAgentCount())
	}
}

func TestSendMessageDirectDelivery(t *testing.T) {
	m := newManager()
	m.CreateAgent(context.Background(), "a1", CreateOptions{})
	a2, _ := m.CreateAgent(context.Background(), "a2", CreateOptions{})

	var got msg.Message
	a2.OnMessage(func(ctx context.Context, mm msg.Message) error {
		got = mm
		return nil
	})

	if err := m.SendMessage(context.Background(), "a1", "a2", "greeting", map[string]any{"text": "hi"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got.From != "a1" || got.To != "a2" || got.Type != "greeting" {
		t.Errorf("recipient received %+v, want matching envelope", got)
	}
}

func TestSendMessageFailsOnUnknownRecipient(t *testing.T) {
	m := newManager()
	m.CreateAgent(context.Background(), "a1", CreateOptions{})
	err := m.SendMessage(context.Background(), "a1", "ghost", "greeting", map[string]any{"text": "hi"})
	if apperrors.Code(err) != apperrors.CodeAgentNotFound {
		t.Errorf("Code = %q, want AGENT_NOT_FOUND", apperrors.Code(err))
	}
}

func TestBroadcastMessageExcludesSender(t *testing.T) {
	m := newManager()
	a1, _ := m.CreateAgent(context.Background(), "a1", CreateOptions{})
	a2, _ := m.CreateAgent(context.Background(), "a2", CreateOptions{})
	a3, _ := m.CreateAgent(context.Background(), "a3", CreateOptions{})

	var gotA1, gotA2, gotA3 bool
	a1.OnMessage(func(ctx context.Context, mm msg.Message) error { gotA1 = true; return nil })
	a2.OnMessage(func(ctx context.Context, mm msg.Message) error { gotA2 = true; return nil })
	a3.OnMessage(func(ctx context.Context, mm msg.Message) error { gotA3 = true; return nil })

	if err := m.BroadcastMessage(context.Background(), "a1", "greeting", map[string]any{"x": 1}); err != nil {
		t.Fatalf("BroadcastMessage failed: %v", err)
	}
	if gotA1 {
		t.Error("sender should not receive its own broadcast")
	}
	if !gotA2 || !gotA3 {
		t.Error("both other agents should have received the broadcast")
	}
}

func TestGetMessagingStats(t *testing.T) {
	m := newManager()
	m.CreateAgent(context.Background(), "a1", CreateOptions{})
	m.CreateAgent(context.Background(), "a2", CreateOptions{EnableMessaging: true})

	stats := m.GetMessagingStats()
	if stats.TotalAgents != 2 {
		t.Errorf("TotalAgents = %d, want 2", stats.TotalAgents)
	}
	if stats.MessagingEnabledCount != 1 {
		t.Errorf("MessagingEnabledCount = %d, want 1", stats.MessagingEnabledCount)
	}
}

func TestEnableAgentMessagingOnExistingAgent(t *testing.T) {
	m := newManager()
	a, _ := m.CreateAgent(context.Background(), "a1", CreateOptions{})
	if a.IsMessagingEnabled() {
		t.Fatal("messaging should start disabled")
	}
	if err := m.EnableAgentMessaging(context.Background(), "a1", container.DefaultConfig()); err != nil {
		t.Fatalf("EnableAgentMessaging failed: %v", err)
	}
	if !a.IsMessagingEnabled() {
		t.Error("messaging should be enabled after EnableAgentMessaging")
	}
}
