package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"messaging-core/auth"
	"messaging-core/domain"
	"messaging-core/mocks"
	"messaging-core/observability"
)

type sessionFixture struct {
	lifecycle  *Lifecycle
	registry   *Registry
	validator  *mocks.MockCredentialValidator
	dispatcher *mocks.MockIDispatcher
	presence   *mocks.MockIPresenceStore
}

func newSessionFixture(t *testing.T) sessionFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()
	validator := mocks.NewMockCredentialValidator(ctrl)
	dispatcher := mocks.NewMockIDispatcher(ctrl)
	presenceStore := mocks.NewMockIPresenceStore(ctrl)

	authenticator := auth.NewAuthenticator(slog.Default(), validator, nil)
	lifecycle := NewLifecycle(
		slog.Default(), authenticator, registry, dispatcher, presenceStore,
		observability.NewGatewayStats(),
	)
	return sessionFixture{
		lifecycle:  lifecycle,
		registry:   registry,
		validator:  validator,
		dispatcher: dispatcher,
		presence:   presenceStore,
	}
}

func TestLifecycle_HandleOpen(t *testing.T) {
	ctx := context.Background()
	identity := domain.Identity{UserID: 7, TenantID: 1}

	t.Run("should reject an empty credential without calling any validator", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}

		// No EXPECT on the validator: a backend call would fail the test
		session := f.lifecycle.HandleOpen(ctx, conn, "")

		req.Equal(StateRejected, session.State())
		req.True(conn.isClosed())
		req.Zero(f.registry.Count())
		req.Equal([]string{domain.CodeAuthRequired}, errorCodes(t, conn))
	})

	t.Run("should reject an invalid credential with AUTH_FAILED", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}

		f.validator.EXPECT().Validate(gomock.Any(), "bad-token").
			Return(domain.Identity{}, fmt.Errorf("signature mismatch"))

		session := f.lifecycle.HandleOpen(ctx, conn, "bad-token")

		req.Equal(StateRejected, session.State())
		req.True(conn.isClosed())
		req.Equal([]string{domain.CodeAuthFailed}, errorCodes(t, conn))
	})

	t.Run("should register, mark online and confirm an authenticated connection", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}

		f.validator.EXPECT().Validate(gomock.Any(), "good-token").Return(identity, nil)
		f.presence.EXPECT().SetOnline(gomock.Any(), int64(7), int64(1)).Return(nil)

		session := f.lifecycle.HandleOpen(ctx, conn, "good-token")

		req.Equal(StateAuthenticated, session.State())
		req.Equal(identity, session.Identity())
		req.False(conn.isClosed())
		req.Contains(f.registry.ConnectionsForUser(7), conn)

		frames := conn.frames(t)
		req.Len(frames, 1)
		req.Equal(domain.FrameConnectionEstablished, frames[0].Type)
		data := frames[0].Data.(map[string]any)
		req.EqualValues(7, data["user_id"])
		req.EqualValues(1, data["tenant_id"])
		req.NotZero(frames[0].Timestamp)
	})

	t.Run("should stay authenticated when the online marker fails", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}

		f.validator.EXPECT().Validate(gomock.Any(), "good-token").Return(identity, nil)
		f.presence.EXPECT().SetOnline(gomock.Any(), int64(7), int64(1)).
			Return(fmt.Errorf("redis down"))

		session := f.lifecycle.HandleOpen(ctx, conn, "good-token")

		req.Equal(StateAuthenticated, session.State())
		req.Contains(f.registry.ConnectionsForUser(7), conn)
	})
}

func TestLifecycle_HandleMessage(t *testing.T) {
	ctx := context.Background()
	identity := domain.Identity{UserID: 7, TenantID: 1}

	t.Run("should forward frames with the cached identity", func(t *testing.T) {
		f := newSessionFixture(t)
		conn := &fakeConn{}
		raw := []byte(`{"type":"presence.heartbeat","data":{}}`)

		f.validator.EXPECT().Validate(gomock.Any(), "good-token").Return(identity, nil)
		f.presence.EXPECT().SetOnline(gomock.Any(), int64(7), int64(1)).Return(nil)
		f.dispatcher.EXPECT().Handle(gomock.Any(), conn, raw, identity).Times(1)

		session := f.lifecycle.HandleOpen(ctx, conn, "good-token")
		f.lifecycle.HandleMessage(ctx, session, raw)
	})

	t.Run("should drop frames on a rejected session", func(t *testing.T) {
		f := newSessionFixture(t)
		conn := &fakeConn{}

		// Dispatcher has no EXPECT: any call would fail the test
		session := f.lifecycle.HandleOpen(ctx, conn, "")
		f.lifecycle.HandleMessage(ctx, session, []byte(`{"type":"presence.heartbeat","data":{}}`))
	})
}

func TestLifecycle_HandleClose(t *testing.T) {
	ctx := context.Background()
	identity := domain.Identity{UserID: 7, TenantID: 1}

	openSession := func(f sessionFixture, conn *fakeConn) *Session {
		f.validator.EXPECT().Validate(gomock.Any(), "good-token").Return(identity, nil)
		f.presence.EXPECT().SetOnline(gomock.Any(), int64(7), int64(1)).Return(nil)
		return f.lifecycle.HandleOpen(ctx, conn, "good-token")
	}

	t.Run("should deregister and mark the user offline on the last connection", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}
		session := openSession(f, conn)

		f.presence.EXPECT().SetOffline(gomock.Any(), int64(7)).Return(nil).Times(1)

		f.lifecycle.HandleClose(ctx, session)

		req.Equal(StateClosed, session.State())
		req.Zero(f.registry.Count())
		req.Empty(f.registry.ConnectionsForUser(7))
	})

	t.Run("should keep the user online while another device is connected", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		phone, laptop := &fakeConn{}, &fakeConn{}
		session := openSession(f, phone)
		f.registry.Add(laptop, identity)

		// SetOffline has no EXPECT: the sibling device keeps the user online
		f.lifecycle.HandleClose(ctx, session)

		req.Equal(StateClosed, session.State())
		req.Contains(f.registry.ConnectionsForUser(7), laptop)
	})

	t.Run("should be idempotent", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}
		session := openSession(f, conn)

		f.presence.EXPECT().SetOffline(gomock.Any(), int64(7)).Return(nil).Times(1)

		f.lifecycle.HandleClose(ctx, session)
		f.lifecycle.HandleClose(ctx, session)

		req.Equal(StateClosed, session.State())
	})

	t.Run("should ignore a session that never authenticated", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}
		session := f.lifecycle.HandleOpen(ctx, conn, "")

		f.lifecycle.HandleClose(ctx, session)

		req.Equal(StateRejected, session.State())
	})
}

func TestLifecycle_HandleError(t *testing.T) {
	ctx := context.Background()
	identity := domain.Identity{UserID: 7, TenantID: 1}

	t.Run("should close the connection and run the close path", func(t *testing.T) {
		req := require.New(t)
		f := newSessionFixture(t)
		conn := &fakeConn{}

		f.validator.EXPECT().Validate(gomock.Any(), "good-token").Return(identity, nil)
		f.presence.EXPECT().SetOnline(gomock.Any(), int64(7), int64(1)).Return(nil)
		f.presence.EXPECT().SetOffline(gomock.Any(), int64(7)).Return(nil)

		session := f.lifecycle.HandleOpen(ctx, conn, "good-token")
		f.lifecycle.HandleError(ctx, session, fmt.Errorf("read: connection reset"))

		req.True(conn.isClosed())
		req.Equal(StateClosed, session.State())
		req.Zero(f.registry.Count())
	})
}
