//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"messaging-core/domain"
)

// Conn is the bidirectional transport channel abstraction. The transport
// layer owns the handle's lifecycle; the core only sends on it and may
// force-close it on fatal errors. Implementations must be safe for
// concurrent Send calls.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// IRegistry is the single source of truth for which connections are live
// and who they belong to. No other component may cache this mapping beyond
// one frame-processing call.
type IRegistry interface {
	Add(conn Conn, identity domain.Identity)
	Remove(conn Conn)
	ConnectionsForUser(userID int64) []Conn
	ConnectionsForTenant(tenantID int64) []Conn
	Broadcast(ctx context.Context, participantIDs []int64, payload []byte, excludeUserID *int64)
	Metadata(conn Conn) (domain.Identity, bool)
	Count() int
}

// IMessageStore persists and formats messages. External collaborator.
type IMessageStore interface {
	SendMessage(ctx context.Context, sender domain.Identity, p domain.SendMessagePayload) (domain.MessagePayload, error)
	MarkConversationRead(ctx context.Context, conversationUUID string, readerID int64) (int, error)
}

// IConversationDirectory resolves conversations and their membership.
// External collaborator.
type IConversationDirectory interface {
	GetByRef(ctx context.Context, conversationUUID string) (domain.Conversation, error)
	GetParticipants(ctx context.Context, conversationID int64) ([]domain.Participant, error)
}

// IPresenceStore owns ephemeral online and typing state. External
// collaborator; nothing here is persisted as history.
type IPresenceStore interface {
	SetOnline(ctx context.Context, userID, tenantID int64) error
	SetOffline(ctx context.Context, userID int64) error
	SetTyping(ctx context.Context, userID, conversationID int64) error
	ClearTyping(ctx context.Context, userID, conversationID int64) error
}

// CredentialValidator is one authentication strategy. A nil validator at
// construction time means the strategy is unavailable and the authenticator
// moves on to the next one.
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) (domain.Identity, error)
}

// IDispatcher routes one inbound frame for an authenticated connection.
// It never returns an error: every failure ends as an error frame to the
// offending connection or a log entry.
type IDispatcher interface {
	Handle(ctx context.Context, conn Conn, raw []byte, identity domain.Identity)
}
