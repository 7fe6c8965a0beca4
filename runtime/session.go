package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"messaging-core/auth"
	"messaging-core/contract"
	"messaging-core/domain"
	"messaging-core/observability"
)

// SessionState is the per-connection lifecycle state.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateRejected
	StateClosed
)

// Session caches the authenticated identity for one connection. The state
// only moves forward: Connecting -> Authenticated -> Closed, or
// Connecting -> Rejected.
type Session struct {
	mu       sync.Mutex
	conn     contract.Conn
	state    SessionState
	identity domain.Identity
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the cached identity; only meaningful once authenticated.
func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Lifecycle is the top-level orchestrator bound to the transport's
// open/message/close/error callbacks. It wires the authenticator, the
// registry and the dispatcher together.
type Lifecycle struct {
	log           *slog.Logger
	authenticator *auth.Authenticator
	registry      contract.IRegistry
	dispatcher    contract.IDispatcher
	presence      contract.IPresenceStore
	stats         *observability.GatewayStats
}

func NewLifecycle(
	log *slog.Logger,
	authenticator *auth.Authenticator,
	registry contract.IRegistry,
	dispatcher contract.IDispatcher,
	presence contract.IPresenceStore,
	stats *observability.GatewayStats,
) *Lifecycle {
	return &Lifecycle{
		log:           log,
		authenticator: authenticator,
		registry:      registry,
		dispatcher:    dispatcher,
		presence:      presence,
		stats:         stats,
	}
}

// HandleOpen authenticates the credential extracted from the connection
// request. On failure it sends the matching error frame, closes the
// connection and returns a rejected session; the transport must not deliver
// further events for it. On success the connection is registered, the user
// is marked online and a connection.established frame is sent back.
func (l *Lifecycle) HandleOpen(ctx context.Context, conn contract.Conn, credential string) *Session {
	session := &Session{conn: conn, state: StateConnecting}
	l.stats.AddConnectionOpened()

	if credential == "" {
		l.reject(ctx, session, domain.CodeAuthRequired, "authentication credential required")
		return session
	}

	identity, ok := l.authenticator.Authenticate(ctx, credential)
	if !ok {
		l.reject(ctx, session, domain.CodeAuthFailed, "credential invalid or expired")
		return session
	}

	l.registry.Add(conn, identity)
	if err := l.presence.SetOnline(ctx, identity.UserID, identity.TenantID); err != nil {
		l.log.Warn("Failed to mark user online", "user_id", identity.UserID, "error", err)
	}

	established := domain.NewOutbound(domain.FrameConnectionEstablished, domain.EstablishedPayload{
		UserID:     identity.UserID,
		TenantID:   identity.TenantID,
		ServerTime: time.Now().UTC().Unix(),
	})
	if encoded, err := established.Encode(); err == nil {
		if err := conn.Send(ctx, encoded); err != nil {
			l.log.Warn("Failed to send connection.established", "user_id", identity.UserID, "error", err)
		}
	}

	session.mu.Lock()
	session.identity = identity
	session.state = StateAuthenticated
	session.mu.Unlock()

	l.log.Info("Connection authenticated",
		"user_id", identity.UserID,
		"tenant_id", identity.TenantID,
		"connections", l.registry.Count())
	return session
}

// HandleMessage forwards the raw payload to the dispatcher with the cached
// identity. The protocol drives authentication before any message event,
// so a frame on an unauthenticated session is a client misbehaving; it is
// ignored with a log entry rather than torn down.
func (l *Lifecycle) HandleMessage(ctx context.Context, session *Session, raw []byte) {
	session.mu.Lock()
	state, identity, conn := session.state, session.identity, session.conn
	session.mu.Unlock()

	if state != StateAuthenticated {
		l.log.Warn("Dropping frame on unauthenticated session", "state", state)
		return
	}
	l.dispatcher.Handle(ctx, conn, raw, identity)
}

// HandleClose deregisters the connection and, when it was the user's last
// live connection, marks the user offline. Closing an already-closed or
// never-registered session is a safe no-op.
func (l *Lifecycle) HandleClose(ctx context.Context, session *Session) {
	session.mu.Lock()
	if session.state != StateAuthenticated {
		session.mu.Unlock()
		return
	}
	session.state = StateClosed
	identity, conn := session.identity, session.conn
	session.mu.Unlock()

	l.registry.Remove(conn)
	if len(l.registry.ConnectionsForUser(identity.UserID)) == 0 {
		if err := l.presence.SetOffline(ctx, identity.UserID); err != nil {
			l.log.Warn("Failed to mark user offline", "user_id", identity.UserID, "error", err)
		}
	}
	l.log.Info("Connection closed", "user_id", identity.UserID, "connections", l.registry.Count())
}

// HandleError logs a transport-level failure with the best-known identity
// and force-closes the connection; the ordinary close path then runs.
func (l *Lifecycle) HandleError(ctx context.Context, session *Session, cause error) {
	session.mu.Lock()
	state, identity, conn := session.state, session.identity, session.conn
	session.mu.Unlock()

	if state == StateAuthenticated {
		l.log.Error("Transport error", "user_id", identity.UserID, "error", cause)
	} else {
		l.log.Error("Transport error", "user_id", "unknown", "error", cause)
	}
	if err := conn.Close(); err != nil {
		l.log.Debug("Force close failed", "error", err)
	}
	l.HandleClose(ctx, session)
}

// reject sends the auth error frame, closes the transport and marks the
// session terminally rejected. Auth failures surface to the client before
// the socket goes away.
func (l *Lifecycle) reject(ctx context.Context, session *Session, code, message string) {
	l.stats.AddAuthFailure()

	if encoded, err := domain.NewErrorFrame(code, message).Encode(); err == nil {
		if err := session.conn.Send(ctx, encoded); err != nil {
			l.log.Debug("Failed to deliver auth error frame", "code", code, "error", err)
		}
	}
	if err := session.conn.Close(); err != nil {
		l.log.Debug("Close after auth rejection failed", "error", err)
	}

	session.mu.Lock()
	session.state = StateRejected
	session.mu.Unlock()

	l.log.Info("Connection rejected", "code", code)
}
