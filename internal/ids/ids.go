// Package ids 提供消息总线的标识类型与校验。
//
// 所有类型运行时都是 string，但通过类型区分来源，避免互相误传
// (AgentId 传到需要 MessagePattern 的地方等)。
package ids

import (
	"regexp"

	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// AgentId 代理标识，UUIDv4 字符串。
type AgentId string

// MessageId 消息标识，同时作为 request/response 的关联 id。
type MessageId string

// MessagePattern 订阅模式，字面量 + '.' 分段 + '*' 通配。
type MessagePattern string

// ValidatedMessageType 已校验的消息类型 (路由键)。
type ValidatedMessageType string

const (
	maxMessageTypeLen = 100
	maxPatternLen     = 1000
)

var messageTypeRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateMessageType 校验消息类型: 1-100 字符，[A-Za-z0-9._-]。
func ValidateMessageType(s string) (ValidatedMessageType, error) {
	if len(s) == 0 || len(s) > maxMessageTypeLen {
		return "", apperrors.Newf("ids.ValidateMessageType", apperrors.CodeInvalidMessage,
			apperrors.ErrInvalidMessage, "message type length %d out of range [1,%d]", len(s), maxMessageTypeLen)
	}
	if !messageTypeRe.MatchString(s) {
		return "", apperrors.Newf("ids.ValidateMessageType", apperrors.CodeInvalidMessage,
			apperrors.ErrInvalidMessage, "message type %q does not match [A-Za-z0-9._-]+", s)
	}
	return ValidatedMessageType(s), nil
}

// ValidatePattern 校验订阅模式长度。
func ValidatePattern(s string) (MessagePattern, error) {
	if len(s) == 0 {
		return "", apperrors.New("ids.ValidatePattern", apperrors.CodeInvalidPattern, "pattern must not be empty", apperrors.ErrInvalidPattern)
	}
	if len(s) > maxPatternLen {
		return "", apperrors.Newf("ids.ValidatePattern", apperrors.CodePatternTooLong,
			apperrors.ErrPatternTooLong, "pattern length %d exceeds %d", len(s), maxPatternLen)
	}
	return MessagePattern(s), nil
}

// IsWildcard 模式是否包含通配符 '*'。
func IsWildcard(p MessagePattern) bool {
	for i := 0; i < len(p); i++ {
		if p[i] == '*' {
			return true
		}
	}
	return false
}

func (a AgentId) String() string      { return string(a) }
func (m MessageId) String() string    { return string(m) }
func (p MessagePattern) String() string { return string(p) }
