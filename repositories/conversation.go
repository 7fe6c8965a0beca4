package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"messaging-core/domain"
	"messaging-core/errors"
)

type conversationRecord struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	TenantID int64  `json:"tenant_id"`
}

// ConversationDirectory resolves conversations from their client-facing
// reference and lists their participants. Membership is written by the
// surrounding platform; the delivery core only reads it.
type ConversationDirectory struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationDirectory(db *badger.DB, log *slog.Logger) *ConversationDirectory {
	return &ConversationDirectory{db: db, log: log}
}

// GetByRef resolves a conversation UUID to the full conversation record.
func (d *ConversationDirectory) GetByRef(_ context.Context, conversationUUID string) (domain.Conversation, error) {
	var record conversationRecord
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(refKey(conversationUUID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("conversation lookup: %w", err)
	}
	return domain.Conversation{ID: record.ID, UUID: record.UUID, TenantID: record.TenantID}, nil
}

// GetParticipants lists the members of a conversation.
func (d *ConversationDirectory) GetParticipants(_ context.Context, conversationID int64) ([]domain.Participant, error) {
	var memberIDs []int64
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(membersKey(conversationID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &memberIDs)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("participants lookup: %w", err)
	}

	return lo.Map(memberIDs, func(id int64, _ int) domain.Participant {
		return domain.Participant{UserID: id}
	}), nil
}

// Upsert writes a conversation and its membership. Used by provisioning
// and by tests; the dispatcher never mutates the directory.
func (d *ConversationDirectory) Upsert(_ context.Context, conversation domain.Conversation, participantIDs []int64) error {
	record, err := json.Marshal(conversationRecord{
		ID:       conversation.ID,
		UUID:     conversation.UUID,
		TenantID: conversation.TenantID,
	})
	if err != nil {
		return err
	}
	members, err := json.Marshal(participantIDs)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(refKey(conversation.UUID), record); err != nil {
			return err
		}
		return txn.Set(membersKey(conversation.ID), members)
	})
}

func refKey(conversationUUID string) []byte {
	return []byte("conv:ref:" + conversationUUID)
}

func membersKey(conversationID int64) []byte {
	return []byte(fmt.Sprintf("conv:members:%d", conversationID))
}
