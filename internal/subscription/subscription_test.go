package subscription

import (
	"fmt"
	"testing"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/patternmatch"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

func newRegistry(limit int) *Registry {
	m := patternmatch.New(100, nil, hostapi.SystemClock{})
	return New(m, limit, nil)
}

func TestSubscribeIdempotent(t *testing.T) {
	r := newRegistry(0)
	for i := 0; i < 3; i++ {
		if err := r.Subscribe("a1", "test.message"); err != nil {
			t.Fatalf("Subscribe iteration %d failed: %v", i, err)
		}
	}
	if got := r.GetSubscriptionCount("a1"); got != 1 {
		t.Errorf("GetSubscriptionCount = %d, want 1", got)
	}
}

func TestSubscriptionLimitExceeded(t *testing.T) {
	r := newRegistry(100)
	for i := 0; i < 100; i++ {
		pattern := ids.MessagePattern(fmt.Sprintf("type.%d", i))
		if err := r.Subscribe("a1", pattern); err != nil {
			t.Fatalf("subscription %d should succeed: %v", i, err)
		}
	}
	err := r.Subscribe("a1", "type.overflow")
	if err == nil {
		t.Fatal("101st subscription should fail")
	}
	if apperrors.Code(err) != apperrors.CodeSubscriptionLimit {
		t.Errorf("Code = %q, want SUBSCRIPTION_LIMIT_EXCEEDED", apperrors.Code(err))
	}
}

func TestWildcardSubscriptionScenario(t *testing.T) {
	r := newRegistry(0)
	if err := r.Subscribe("a1", "test.*"); err != nil {
		t.Fatal(err)
	}
	if err := r.Subscribe("a2", "*.message"); err != nil {
		t.Fatal(err)
	}
	subs := r.GetSubscribers(ids.ValidatedMessageType("test.message"))
	if len(subs) != 2 {
		t.Fatalf("GetSubscribers returned %d subscribers, want 2: %v", len(subs), subs)
	}
}

func TestUnsubscribeIdempotentAndPrunes(t *testing.T) {
	r := newRegistry(0)
	_ = r.Subscribe("a1", "test.message")
	r.Unsubscribe("a1", "test.message")
	r.Unsubscribe("a1", "test.message") // idempotent, no panic
	if got := r.GetSubscriptionCount("a1"); got != 0 {
		t.Errorf("GetSubscriptionCount after unsubscribe = %d, want 0", got)
	}
	if len(r.direct) != 0 {
		t.Errorf("direct index not pruned: %v", r.direct)
	}
}

func TestCleanupRemovesAgentEntirely(t *testing.T) {
	r := newRegistry(0)
	r.RegisterAgent("a1")
	_ = r.Subscribe("a1", "a.*")
	_ = r.Subscribe("a1", "exact.type")
	r.Cleanup("a1")

	if count := r.GetSubscriptionCount("a1"); count != 0 {
		t.Errorf("subscription count after cleanup = %d, want 0", count)
	}
	active := r.GetAllActiveAgents()
	for _, a := range active {
		if a == "a1" {
			t.Error("a1 should not be in activeAgents after cleanup")
		}
	}
}

func TestCrossIndexInvariant(t *testing.T) {
	r := newRegistry(0)
	_ = r.Subscribe("a1", "exact.type")
	_ = r.Subscribe("a1", "wild.*")

	if _, ok := r.direct["exact.type"]["a1"]; !ok {
		t.Error("direct index missing a1 for exact.type")
	}
	if _, ok := r.wildcard["wild.*"]["a1"]; !ok {
		t.Error("wildcard index missing a1 for wild.*")
	}
	patterns := r.GetAgentSubscriptions("a1")
	if len(patterns) != 2 {
		t.Errorf("GetAgentSubscriptions returned %d, want 2", len(patterns))
	}
}
