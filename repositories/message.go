// Package repositories provides BadgerDB-backed implementations of the
// collaborator contracts the delivery core depends on.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"messaging-core/domain"
)

// MessageStore persists conversation messages and read markers.
//
// Message keys are "msg:{conversation_uuid}:{timestamp_padded}:{uuid}":
//  1. The 19-digit zero padding keeps keys in chronological order under
//     Badger's lexicographic iteration.
//  2. The trailing UUID disambiguates two messages landing on the same
//     nanosecond.
//
// Read markers live at "read:{conversation_uuid}:{user_id}" and hold the
// nanosecond timestamp up to which the user has read.
type MessageStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageStore(db *badger.DB, log *slog.Logger) *MessageStore {
	return &MessageStore{db: db, log: log}
}

// SendMessage persists the message and returns the formatted payload that
// is broadcast to participants.
func (s *MessageStore) SendMessage(_ context.Context, sender domain.Identity, p domain.SendMessagePayload) (domain.MessagePayload, error) {
	messageType := p.MessageType
	if messageType == "" {
		messageType = "text"
	}

	message := domain.MessagePayload{
		ID:               uuid.New(),
		ConversationUUID: p.ConversationUUID,
		SenderID:         sender.UserID,
		Body:             p.Body,
		MessageType:      messageType,
		ReplyToID:        p.ReplyToID,
		AttachmentIDs:    p.AttachmentIDs,
		CreatedAt:        time.Now().UTC(),
	}

	key := messageKey(message.ConversationUUID, message.CreatedAt.UnixNano(), message.ID)
	encoded, err := json.Marshal(message)
	if err != nil {
		return domain.MessagePayload{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encoded)
	})
	if err != nil {
		return domain.MessagePayload{}, fmt.Errorf("store message: %w", err)
	}
	return message, nil
}

// MarkConversationRead advances the reader's marker to now and reports how
// many stored messages the marker newly covers.
func (s *MessageStore) MarkConversationRead(_ context.Context, conversationUUID string, readerID int64) (int, error) {
	markerKey := []byte(fmt.Sprintf("read:%s:%d", conversationUUID, readerID))
	now := time.Now().UTC().UnixNano()

	var count int
	err := s.db.Update(func(txn *badger.Txn) error {
		var previous int64
		item, err := txn.Get(markerKey)
		switch err {
		case nil:
			err = item.Value(func(value []byte) error {
				previous, err = strconv.ParseInt(string(value), 10, 64)
				return err
			})
			if err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
			// First read of this conversation: everything counts.
		default:
			return err
		}

		count, err = countBetween(txn, conversationUUID, previous, now)
		if err != nil {
			return err
		}
		return txn.Set(markerKey, []byte(strconv.FormatInt(now, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return count, nil
}

// countBetween counts messages of a conversation with a timestamp in
// (after, until]. The padded key layout makes this a bounded prefix scan.
func countBetween(txn *badger.Txn, conversationUUID string, after, until int64) (int, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversationUUID))
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), []byte(fmt.Sprintf("%019d", after+1))...)
	count := 0
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		key := string(it.Item().Key())
		ts, err := timestampFromKey(key, len(prefix))
		if err != nil {
			return 0, err
		}
		if ts > until {
			break
		}
		count++
	}
	return count, nil
}

func messageKey(conversationUUID string, unixNano int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationUUID, unixNano, id))
}

func timestampFromKey(key string, prefixLen int) (int64, error) {
	if len(key) < prefixLen+19 {
		return 0, fmt.Errorf("malformed message key %q", key)
	}
	return strconv.ParseInt(key[prefixLen:prefixLen+19], 10, 64)
}
