package domain

import (
	"encoding/json"
	"time"
)

// FrameType enumerates the protocol frames this gateway understands.
// Keeping it a closed enum forces every dispatch path through a total
// switch instead of a string-keyed lookup with a default branch.
type FrameType string

const (
	FrameMessageSend       FrameType = "message.send"
	FrameMessageRead       FrameType = "message.read"
	FrameTypingStart       FrameType = "typing.start"
	FrameTypingStop        FrameType = "typing.stop"
	FramePresenceHeartbeat FrameType = "presence.heartbeat"

	// Outbound only.
	FrameConnectionEstablished FrameType = "connection.established"
	FrameMessageNew            FrameType = "message.new"
	FrameReadReceipt           FrameType = "message.read_receipt"
	FrameTypingIndicator       FrameType = "typing.indicator"
	FrameHeartbeatAck          FrameType = "presence.heartbeat_ack"
	FrameError                 FrameType = "error"
)

// ResolveInboundType maps a raw type string to the closed enum.
// Unknown strings are rejected here, before any handler runs.
func ResolveInboundType(raw string) (FrameType, bool) {
	switch t := FrameType(raw); t {
	case FrameMessageSend, FrameMessageRead, FrameTypingStart, FrameTypingStop, FramePresenceHeartbeat:
		return t, true
	default:
		return "", false
	}
}

// InboundFrame is the wire-level unit received from a client.
// Data stays raw until the dispatcher knows which payload struct applies.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundFrame is immutable once constructed; it is never touched
// again after being handed to the transport for sending.
type OutboundFrame struct {
	Type      FrameType `json:"type"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// NewOutbound stamps the frame with the current server time (unix seconds).
func NewOutbound(t FrameType, data any) OutboundFrame {
	return OutboundFrame{Type: t, Data: data, Timestamp: time.Now().UTC().Unix()}
}

// Encode marshals the frame for the transport. Payload structs are plain
// data, so a marshal failure here is a programming error surfaced to the
// caller rather than swallowed.
func (f OutboundFrame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
