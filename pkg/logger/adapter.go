// adapter.go — hostapi.Logger 适配器，供核心组件以接口方式消费本包的 slog 日志器。
package logger

import (
	"log/slog"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
)

// Adapter 将 *slog.Logger 适配为 hostapi.Logger。
type Adapter struct{ l *slog.Logger }

// NewAdapter 包装给定的 slog.Logger；传 nil 使用包级默认日志器。
func NewAdapter(l *slog.Logger) Adapter {
	if l == nil {
		l = defaultLogger
	}
	return Adapter{l: l}
}

func (a Adapter) Info(msg string, kv ...any)  { a.l.Info(msg, kv...) }
func (a Adapter) Warn(msg string, kv ...any)  { a.l.Warn(msg, kv...) }
func (a Adapter) Error(msg string, kv ...any) { a.l.Error(msg, kv...) }
func (a Adapter) Debug(msg string, kv ...any) { a.l.Debug(msg, kv...) }

var _ hostapi.Logger = Adapter{}
