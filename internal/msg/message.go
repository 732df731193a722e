// Package msg 定义消息总线的消息 schema 与构造工厂。
//
// 六字段集合: id/from/to/type/payload/timestamp，路由键就是 Type，不需要
// 单独的 topic 或序号字段。
package msg

import (
	"encoding/json"
	"time"

	"github.com/multi-agent/messaging-runtime/internal/hostapi"
	"github.com/multi-agent/messaging-runtime/internal/ids"
	apperrors "github.com/multi-agent/messaging-runtime/pkg/errors"
)

// MaxPayloadBytes 消息 payload 序列化后允许的最大字节数。
const MaxPayloadBytes = 1 << 20

// Message 不可变的消息单元。
type Message struct {
	ID        ids.MessageId
	From      ids.AgentId
	To        ids.AgentId
	Type      ids.ValidatedMessageType
	Payload   any
	Timestamp time.Time
}

// Factory 构造经过校验的消息，注入 id 来源与时钟。
type Factory struct {
	ids   hostapi.IDSource
	clock hostapi.Clock
}

// NewFactory 创建消息工厂；clock 为 nil 时使用 hostapi.SystemClock。
func NewFactory(idSource hostapi.IDSource, clock hostapi.Clock) *Factory {
	if clock == nil {
		clock = hostapi.SystemClock{}
	}
	return &Factory{ids: idSource, clock: clock}
}

// New 构造并校验一条消息；payload 必须非 nil 且序列化后 ≤ 1 MiB。
func (f *Factory) New(from, to ids.AgentId, msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{}, apperrors.New("msg.Factory.New", apperrors.CodeInvalidMessage, "payload must not be nil", apperrors.ErrInvalidMessage)
	}
	vt, err := ids.ValidateMessageType(msgType)
	if err != nil {
		return Message{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, apperrors.Wrap(err, "msg.Factory.New", "payload is not JSON-serializable")
	}
	if len(raw) > MaxPayloadBytes {
		return Message{}, apperrors.Newf("msg.Factory.New", apperrors.CodeMessageTooLarge,
			apperrors.ErrMessageTooLarge, "payload size %d exceeds %d bytes", len(raw), MaxPayloadBytes)
	}

	return Message{
		ID:        ids.MessageId(f.ids.NewV4()),
		From:      from,
		To:        to,
		Type:      vt,
		Payload:   payload,
		Timestamp: f.clock.Now(),
	}, nil
}

// NewReply 构造一条复用给定 id 的回复消息 (spec GLOSSARY "Correlation id":
// 请求消息的 id 被响应方复用来标识其回复)。校验规则与 New 相同，只是
// id 由调用方指定而非重新生成。
func (f *Factory) NewReply(id ids.MessageId, from, to ids.AgentId, msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{}, apperrors.New("msg.Factory.NewReply", apperrors.CodeInvalidMessage, "payload must not be nil", apperrors.ErrInvalidMessage)
	}
	vt, err := ids.ValidateMessageType(msgType)
	if err != nil {
		return Message{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, apperrors.Wrap(err, "msg.Factory.NewReply", "payload is not JSON-serializable")
	}
	if len(raw) > MaxPayloadBytes {
		return Message{}, apperrors.Newf("msg.Factory.NewReply", apperrors.CodeMessageTooLarge,
			apperrors.ErrMessageTooLarge, "payload size %d exceeds %d bytes", len(raw), MaxPayloadBytes)
	}

	return Message{
		ID:        id,
		From:      from,
		To:        to,
		Type:      vt,
		Payload:   payload,
		Timestamp: f.clock.Now(),
	}, nil
}

// Size 返回消息 payload 序列化后的字节数 (用于 MessageTooLarge 之外的统计)。
func Size(payload any) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}
