// Package idgen 提供 hostapi.IDSource 的默认实现。
package idgen

import (
	"github.com/google/uuid"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
)

// UUIDSource 基于 google/uuid 生成 RFC 4122 v4 标识符。
type UUIDSource struct{}

// NewV4 生成一个新的 UUIDv4 字符串。
func (UUIDSource) NewV4() string { return uuid.NewString() }

var _ hostapi.IDSource = UUIDSource{}
