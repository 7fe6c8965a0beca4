package repositories

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"messaging-core/domain"
	"messaging-core/errors"
)

func Test_Conversation_GetByRef(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	directory := NewConversationDirectory(db, slog.Default())
	conversation := domain.Conversation{ID: 42, UUID: "c-1", TenantID: 1}
	req.NoError(directory.Upsert(ctx, conversation, []int64{7, 8}))

	resolved, err := directory.GetByRef(ctx, "c-1")
	req.NoError(err)
	req.Equal(conversation, resolved)
}

func Test_Conversation_GetByRef_Unknown(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	directory := NewConversationDirectory(db, slog.Default())

	_, err := directory.GetByRef(context.Background(), "ghost")
	req.ErrorIs(err, errors.ErrConversationNotFound)
}

func Test_Conversation_GetParticipants(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	directory := NewConversationDirectory(db, slog.Default())
	conversation := domain.Conversation{ID: 42, UUID: "c-1", TenantID: 1}
	req.NoError(directory.Upsert(ctx, conversation, []int64{7, 8}))

	participants, err := directory.GetParticipants(ctx, 42)
	req.NoError(err)
	req.Equal([]domain.Participant{{UserID: 7}, {UserID: 8}}, participants)
}

func Test_Conversation_Upsert_Replaces_Membership(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()

	directory := NewConversationDirectory(db, slog.Default())
	conversation := domain.Conversation{ID: 42, UUID: "c-1", TenantID: 1}
	req.NoError(directory.Upsert(ctx, conversation, []int64{7, 8}))
	req.NoError(directory.Upsert(ctx, conversation, []int64{7, 8, 9}))

	participants, err := directory.GetParticipants(ctx, 42)
	req.NoError(err)
	req.Len(participants, 3)
}
