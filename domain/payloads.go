package domain

import (
	"time"

	"github.com/google/uuid"
)

// Inbound payloads. Validation tags are enforced by the dispatcher before
// any collaborator is called.

type SendMessagePayload struct {
	ConversationUUID string  `json:"conversation_uuid" validate:"required"`
	Body             string  `json:"body" validate:"required"`
	MessageType      string  `json:"message_type"`
	ReplyToID        *int64  `json:"reply_to_id"`
	AttachmentIDs    []int64 `json:"attachment_ids"`
}

type ReadPayload struct {
	ConversationUUID string `json:"conversation_uuid" validate:"required"`
}

type TypingPayload struct {
	ConversationID int64   `json:"conversation_id" validate:"required"`
	ParticipantIDs []int64 `json:"participant_ids" validate:"required,min=1"`
}

// Outbound payloads.

type EstablishedPayload struct {
	UserID     int64 `json:"user_id"`
	TenantID   int64 `json:"tenant_id"`
	ServerTime int64 `json:"server_time"`
}

type ReadReceiptPayload struct {
	ConversationUUID string `json:"conversation_uuid"`
	UserID           int64  `json:"user_id"`
	ReadCount        int    `json:"read_count"`
}

type TypingIndicatorPayload struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	IsTyping       bool  `json:"is_typing"`
}

type HeartbeatAckPayload struct {
	Status string `json:"status"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessagePayload is the formatted message returned by the message store
// and broadcast to participants as the data of a message.new frame.
type MessagePayload struct {
	ID               uuid.UUID `json:"id"`
	ConversationUUID string    `json:"conversation_uuid"`
	SenderID         int64     `json:"sender_id"`
	Body             string    `json:"body"`
	MessageType      string    `json:"message_type"`
	ReplyToID        *int64    `json:"reply_to_id,omitempty"`
	AttachmentIDs    []int64   `json:"attachment_ids,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Conversation is resolved by the conversation directory from its
// client-facing reference.
type Conversation struct {
	ID       int64
	UUID     string
	TenantID int64
}

// Participant is a member of a conversation.
type Participant struct {
	UserID int64
}
