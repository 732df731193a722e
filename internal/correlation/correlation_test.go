package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	"github.com/multi-agent/messaging-runtime/internal/msg"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

func newManager(t *testing.T) (*Manager, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, nil, hostapi.SystemClock{})
	return m, func() { m.Stop(); cancel() }
}

func TestRequestResponseRoundTrip(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()

	original := msg.Message{ID: "corr-1", From: "a1", To: "a2", Type: "q"}
	w, err := m.RegisterRequest(original.ID, original, 1000, "a1")
	if err != nil {
		t.Fatalf("RegisterRequest failed: %v", err)
	}

	go m.HandleResponse(msg.Message{ID: "corr-1", Type: "q.reply", Payload: map[string]any{"y": 2}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	got := payload.(map[string]any)
	if got["y"] != 2 {
		t.Errorf("payload = %v, want y=2", got)
	}
}

func TestTimeout(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()

	original := msg.Message{ID: "corr-timeout", From: "a1", To: "a2", Type: "q"}
	w, err := m.RegisterRequest(original.ID, original, 20, "a1")
	if err != nil {
		t.Fatalf("RegisterRequest failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = w.Wait(ctx)
	if apperrors.Code(err) != apperrors.CodeRequestTimeout {
		t.Errorf("Code = %q, want REQUEST_TIMEOUT", apperrors.Code(err))
	}
	if m.GetPendingRequestCount() != 0 {
		t.Errorf("pending count = %d, want 0 after timeout", m.GetPendingRequestCount())
	}
}

func TestResponseWithErrorTypeRejects(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()

	original := msg.Message{ID: "corr-err", From: "a1", To: "a2", Type: "q"}
	w, _ := m.RegisterRequest(original.ID, original, 1000, "a1")
	go m.HandleResponse(msg.Message{ID: "corr-err", Type: "q.error", Payload: map[string]any{"reason": "bad"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := w.Wait(ctx)
	if apperrors.Code(err) != apperrors.CodeRequestFailed {
		t.Errorf("Code = %q, want REQUEST_FAILED", apperrors.Code(err))
	}
}

func TestCancelRequest(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()

	original := msg.Message{ID: "corr-cancel", From: "a1", To: "a2", Type: "q"}
	w, _ := m.RegisterRequest(original.ID, original, 1000, "a1")
	m.CancelRequest("corr-cancel")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := w.Wait(ctx)
	if apperrors.Code(err) != apperrors.CodeRequestCancelled {
		t.Errorf("Code = %q, want REQUEST_CANCELLED", apperrors.Code(err))
	}
}

func TestCancelPendingRequestsByAgent(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()

	w1, _ := m.RegisterRequest("c1", msg.Message{ID: "c1"}, 1000, "a1")
	w2, _ := m.RegisterRequest("c2", msg.Message{ID: "c2"}, 1000, "a2")

	m.CancelPendingRequests("a1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := w1.Wait(ctx); apperrors.Code(err) != apperrors.CodeRequestCancelled {
		t.Errorf("a1's request should be cancelled, got %v", err)
	}
	if m.HasPendingRequest("c2") != true {
		t.Error("a2's request should remain pending")
	}
	_ = w2
}

func TestIgnoresDuplicateResponses(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()

	original := msg.Message{ID: "corr-dup"}
	w, _ := m.RegisterRequest(original.ID, original, 1000, "a1")
	m.HandleResponse(msg.Message{ID: "corr-dup", Type: "q.reply", Payload: 1})
	m.HandleResponse(msg.Message{ID: "corr-dup", Type: "q.reply", Payload: 2}) // should be dropped, unknown id now

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := w.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if payload != 1 {
		t.Errorf("payload = %v, want 1 (first response wins)", payload)
	}
}

func TestResourceExhausted(t *testing.T) {
	m, cleanup := newManager(t)
	defer cleanup()
	m.pending = make(map[ids.MessageId]*pendingEntry, MaxPending)
	for i := 0; i < MaxPending; i++ {
		m.pending[ids.MessageId(rune(i))] = &pendingEntry{timer: time.NewTimer(time.Hour), waiter: &Waiter{done: make(chan struct{})}}
	}
	_, err := m.RegisterRequest("overflow", msg.Message{ID: "overflow"}, 1000, "a1")
	if apperrors.Code(err) != apperrors.CodeResourceExhausted {
		t.Errorf("Code = %q, want RESOURCE_EXHAUSTED", apperrors.Code(err))
	}
}
