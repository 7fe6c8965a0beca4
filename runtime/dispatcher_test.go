package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"messaging-core/domain"
	"messaging-core/errors"
	"messaging-core/mocks"
	"messaging-core/moderation"
	"messaging-core/observability"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	registry   *Registry
	messages   *mocks.MockIMessageStore
	directory  *mocks.MockIConversationDirectory
	presence   *mocks.MockIPresenceStore
}

func newDispatcherFixture(t *testing.T, filter *moderation.Filter) dispatcherFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()
	messages := mocks.NewMockIMessageStore(ctrl)
	directory := mocks.NewMockIConversationDirectory(ctrl)
	presenceStore := mocks.NewMockIPresenceStore(ctrl)

	dispatcher := NewDispatcher(
		slog.Default(), registry, messages, directory, presenceStore,
		filter, observability.NewGatewayStats(),
	)
	return dispatcherFixture{
		dispatcher: dispatcher,
		registry:   registry,
		messages:   messages,
		directory:  directory,
		presence:   presenceStore,
	}
}

func errorCodes(t *testing.T, conn *fakeConn) []string {
	t.Helper()
	var codes []string
	for _, frame := range conn.frames(t) {
		if frame.Type != domain.FrameError {
			continue
		}
		data, ok := frame.Data.(map[string]any)
		require.True(t, ok)
		codes = append(codes, data["code"].(string))
	}
	return codes
}

func TestDispatcher_Invalid_Frame(t *testing.T) {
	actor := domain.Identity{UserID: 7, TenantID: 1}

	t.Run("should reply INVALID_FRAME on unparseable input with no other side effects", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.dispatcher.Handle(context.Background(), conn, []byte("{not json"), actor)

		req.Len(conn.sent, 1)
		req.Equal([]string{domain.CodeInvalidFrame}, errorCodes(t, conn))
	})

	t.Run("should reply INVALID_FRAME when the type field is missing", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.dispatcher.Handle(context.Background(), conn, []byte(`{"data":{}}`), actor)

		req.Equal([]string{domain.CodeInvalidFrame}, errorCodes(t, conn))
	})

	t.Run("should reply UNKNOWN_TYPE for an unrecognized type", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.dispatcher.Handle(context.Background(), conn, []byte(`{"type":"message.edit","data":{}}`), actor)

		req.Equal([]string{domain.CodeUnknownType}, errorCodes(t, conn))
	})

	t.Run("should reject outbound-only types sent inbound", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.dispatcher.Handle(context.Background(), conn, []byte(`{"type":"message.new","data":{}}`), actor)

		req.Equal([]string{domain.CodeUnknownType}, errorCodes(t, conn))
	})
}

func TestDispatcher_Message_Send(t *testing.T) {
	ctx := context.Background()
	sender := domain.Identity{UserID: 7, TenantID: 1}
	conversation := domain.Conversation{ID: 42, UUID: "c-1", TenantID: 1}

	t.Run("should persist and echo the message to every participant including the sender", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		connA := &fakeConn{}
		connB := &fakeConn{}
		f.registry.Add(connA, sender)
		f.registry.Add(connB, domain.Identity{UserID: 8, TenantID: 1})

		f.directory.EXPECT().GetByRef(gomock.Any(), "c-1").Return(conversation, nil)
		f.messages.EXPECT().
			SendMessage(gomock.Any(), sender, gomock.Any()).
			DoAndReturn(func(_ context.Context, s domain.Identity, p domain.SendMessagePayload) (domain.MessagePayload, error) {
				req.Equal("hi", p.Body)
				return domain.MessagePayload{ConversationUUID: "c-1", SenderID: s.UserID, Body: p.Body}, nil
			}).
			Times(1)
		f.presence.EXPECT().ClearTyping(gomock.Any(), int64(7), int64(42)).Return(nil)
		f.directory.EXPECT().GetParticipants(gomock.Any(), int64(42)).
			Return([]domain.Participant{{UserID: 7}, {UserID: 8}}, nil)

		f.dispatcher.Handle(ctx, connA, []byte(`{"type":"message.send","data":{"conversation_uuid":"c-1","body":"hi"}}`), sender)

		// Both participants got exactly one message.new frame
		framesA, framesB := connA.frames(t), connB.frames(t)
		req.Len(framesA, 1)
		req.Len(framesB, 1)
		req.Equal(domain.FrameMessageNew, framesA[0].Type)
		req.Equal(domain.FrameMessageNew, framesB[0].Type)
	})

	t.Run("should reply VALIDATION and call nothing when body is missing", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		// No EXPECT on any collaborator: a call would fail the test
		f.dispatcher.Handle(ctx, conn, []byte(`{"type":"message.send","data":{"conversation_uuid":"c-1"}}`), sender)

		req.Equal([]string{domain.CodeValidation}, errorCodes(t, conn))
	})

	t.Run("should reply VALIDATION for an unknown conversation", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.directory.EXPECT().GetByRef(gomock.Any(), "ghost").
			Return(domain.Conversation{}, errors.ErrConversationNotFound)

		f.dispatcher.Handle(ctx, conn, []byte(`{"type":"message.send","data":{"conversation_uuid":"ghost","body":"hi"}}`), sender)

		req.Equal([]string{domain.CodeValidation}, errorCodes(t, conn))
	})

	t.Run("should reply INTERNAL_ERROR when the message store fails", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.directory.EXPECT().GetByRef(gomock.Any(), "c-1").Return(conversation, nil)
		f.messages.EXPECT().
			SendMessage(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.MessagePayload{}, fmt.Errorf("disk full"))

		f.dispatcher.Handle(ctx, conn, []byte(`{"type":"message.send","data":{"conversation_uuid":"c-1","body":"hi"}}`), sender)

		req.Equal([]string{domain.CodeInternalError}, errorCodes(t, conn))
	})

	t.Run("should mask forbidden words before the message store sees the body", func(t *testing.T) {
		req := require.New(t)
		filter, err := moderation.NewFilter([]string{"secret"}, '*')
		req.NoError(err)
		f := newDispatcherFixture(t, filter)
		conn := &fakeConn{}
		f.registry.Add(conn, sender)

		f.directory.EXPECT().GetByRef(gomock.Any(), "c-1").Return(conversation, nil)
		f.messages.EXPECT().
			SendMessage(gomock.Any(), sender, gomock.Any()).
			DoAndReturn(func(_ context.Context, s domain.Identity, p domain.SendMessagePayload) (domain.MessagePayload, error) {
				req.Equal("the ****** plan", p.Body)
				return domain.MessagePayload{Body: p.Body}, nil
			})
		f.presence.EXPECT().ClearTyping(gomock.Any(), int64(7), int64(42)).Return(nil)
		f.directory.EXPECT().GetParticipants(gomock.Any(), int64(42)).
			Return([]domain.Participant{{UserID: 7}}, nil)

		f.dispatcher.Handle(ctx, conn, []byte(`{"type":"message.send","data":{"conversation_uuid":"c-1","body":"the secret plan"}}`), sender)
	})
}

func TestDispatcher_Message_Read(t *testing.T) {
	ctx := context.Background()
	reader := domain.Identity{UserID: 7, TenantID: 1}
	conversation := domain.Conversation{ID: 42, UUID: "c-1", TenantID: 1}

	t.Run("should broadcast the receipt to everyone except the reader", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		readerConn := &fakeConn{}
		otherConn := &fakeConn{}
		f.registry.Add(readerConn, reader)
		f.registry.Add(otherConn, domain.Identity{UserID: 8, TenantID: 1})

		f.directory.EXPECT().GetByRef(gomock.Any(), "c-1").Return(conversation, nil)
		f.messages.EXPECT().MarkConversationRead(gomock.Any(), "c-1", int64(7)).Return(3, nil)
		f.directory.EXPECT().GetParticipants(gomock.Any(), int64(42)).
			Return([]domain.Participant{{UserID: 7}, {UserID: 8}}, nil)

		f.dispatcher.Handle(ctx, readerConn, []byte(`{"type":"message.read","data":{"conversation_uuid":"c-1"}}`), reader)

		req.Empty(readerConn.sent)
		frames := otherConn.frames(t)
		req.Len(frames, 1)
		req.Equal(domain.FrameReadReceipt, frames[0].Type)
		data := frames[0].Data.(map[string]any)
		req.Equal("c-1", data["conversation_uuid"])
		req.EqualValues(7, data["user_id"])
		req.EqualValues(3, data["read_count"])
	})
}

func TestDispatcher_Typing(t *testing.T) {
	ctx := context.Background()
	actor := domain.Identity{UserID: 8, TenantID: 1}

	t.Run("should notify listed participants but never the actor", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		actorConn := &fakeConn{}
		peerConn := &fakeConn{}
		f.registry.Add(actorConn, actor)
		f.registry.Add(peerConn, domain.Identity{UserID: 7, TenantID: 1})

		f.presence.EXPECT().SetTyping(gomock.Any(), int64(8), int64(42)).Return(nil)

		f.dispatcher.Handle(ctx, actorConn, []byte(`{"type":"typing.start","data":{"conversation_id":42,"participant_ids":[7,8]}}`), actor)

		req.Empty(actorConn.sent)
		frames := peerConn.frames(t)
		req.Len(frames, 1)
		req.Equal(domain.FrameTypingIndicator, frames[0].Type)
		data := frames[0].Data.(map[string]any)
		req.EqualValues(42, data["conversation_id"])
		req.EqualValues(8, data["user_id"])
		req.Equal(true, data["is_typing"])
	})

	t.Run("should clear typing state and broadcast is_typing false on typing.stop", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		actorConn := &fakeConn{}
		peerConn := &fakeConn{}
		f.registry.Add(actorConn, actor)
		f.registry.Add(peerConn, domain.Identity{UserID: 7, TenantID: 1})

		f.presence.EXPECT().ClearTyping(gomock.Any(), int64(8), int64(42)).Return(nil)

		f.dispatcher.Handle(ctx, actorConn, []byte(`{"type":"typing.stop","data":{"conversation_id":42,"participant_ids":[7]}}`), actor)

		frames := peerConn.frames(t)
		req.Len(frames, 1)
		data := frames[0].Data.(map[string]any)
		req.Equal(false, data["is_typing"])
	})

	t.Run("should reply VALIDATION when participant_ids is empty", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		conn := &fakeConn{}

		f.dispatcher.Handle(ctx, conn, []byte(`{"type":"typing.start","data":{"conversation_id":42,"participant_ids":[]}}`), actor)

		req.Equal([]string{domain.CodeValidation}, errorCodes(t, conn))
	})
}

func TestDispatcher_Heartbeat(t *testing.T) {
	ctx := context.Background()
	actor := domain.Identity{UserID: 7, TenantID: 1}

	t.Run("should ack only to the calling connection", func(t *testing.T) {
		req := require.New(t)
		f := newDispatcherFixture(t, nil)
		caller := &fakeConn{}
		bystander := &fakeConn{}
		f.registry.Add(caller, actor)
		f.registry.Add(bystander, domain.Identity{UserID: 8, TenantID: 1})

		f.presence.EXPECT().SetOnline(gomock.Any(), int64(7), int64(1)).Return(nil)

		f.dispatcher.Handle(ctx, caller, []byte(`{"type":"presence.heartbeat","data":{}}`), actor)

		req.Empty(bystander.sent)
		frames := caller.frames(t)
		req.Len(frames, 1)
		req.Equal(domain.FrameHeartbeatAck, frames[0].Type)
		data := frames[0].Data.(map[string]any)
		req.Equal("ok", data["status"])
	})
}
