// errors_test.go — 验证 AppError / New / Wrap / Code 的行为契约。
package errors

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// TestNewWithCode 验证 New 创建带稳定错误码的错误，errors.Is/Code 均可用。
func TestNewWithCode(t *testing.T) {
	err := New("AgentManager.CreateAgent", CodeAgentLimitExceeded, "cap reached", ErrAgentLimitExceeded)

	if !errors.Is(err, ErrAgentLimitExceeded) {
		t.Errorf("errors.Is(err, ErrAgentLimitExceeded) = false, want true")
	}
	if errors.Is(err, ErrAgentDestroyed) {
		t.Errorf("errors.Is(err, ErrAgentDestroyed) = true, want false")
	}
	if Code(err) != CodeAgentLimitExceeded {
		t.Errorf("Code(err) = %q, want %q", Code(err), CodeAgentLimitExceeded)
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("errors.As failed to extract *AppError")
	}
	if appErr.Op != "AgentManager.CreateAgent" {
		t.Errorf("Op = %q, want %q", appErr.Op, "AgentManager.CreateAgent")
	}
	if appErr.At.IsZero() {
		t.Error("At should be set")
	}
}

// TestErrorString 验证 Error() 输出包含 op、message 和 cause。
func TestErrorString(t *testing.T) {
	wrapped := Wrap(io.ErrUnexpectedEOF, "Service.Read", "read failed")

	s := wrapped.Error()
	for _, want := range []string{"Service.Read", "read failed", "unexpected EOF"} {
		if !strings.Contains(s, want) {
			t.Errorf("Error() = %q, missing %q", s, want)
		}
	}
}

// TestNewfFormat 验证 Newf 格式化消息。
func TestNewfFormat(t *testing.T) {
	err := Newf("Pattern.Compile", CodePatternTooLong, ErrPatternTooLong, "pattern length %d exceeds %d", 1500, 1000)

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As failed")
	}
	if !strings.Contains(appErr.Message, "1500 exceeds 1000") {
		t.Errorf("Message = %q, want to contain '1500 exceeds 1000'", appErr.Message)
	}
}

// TestWithContext 验证 WithContext 附加上下文并保持链式调用。
func TestWithContext(t *testing.T) {
	err := New("Subscription.Subscribe", CodeSubscriptionLimit, "cap reached", ErrSubscriptionLimit).
		WithContext(map[string]any{"agentId": "a1", "count": 100})

	if err.Context["agentId"] != "a1" {
		t.Errorf("Context[agentId] = %v, want a1", err.Context["agentId"])
	}
}

// TestDoubleWrap 验证二次包装时 errors.Is 仍能找到最深层哨兵。
func TestDoubleWrap(t *testing.T) {
	inner := New("Correlation.Register", CodeResourceExhausted, "pending slots full", ErrResourceExhausted)
	outer := Wrap(inner, "Agent.Request", "request registration failed")

	if !errors.Is(outer, ErrResourceExhausted) {
		t.Error("errors.Is(outer, ErrResourceExhausted) = false after double wrap")
	}
}
