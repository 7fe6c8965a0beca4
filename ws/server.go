package ws

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"messaging-core/runtime"
)

const defaultReadLimit = 64 * 1024

// Server upgrades HTTP requests to websocket connections and feeds the
// lifecycle controller with open, message, close and error events. One
// goroutine per connection reads frames in arrival order; concurrency
// across connections comes from the HTTP server spawning one handler each.
type Server struct {
	log          *slog.Logger
	lifecycle    *runtime.Lifecycle
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

func NewServer(log *slog.Logger, lifecycle *runtime.Lifecycle, writeTimeout, idleTimeout time.Duration) *Server {
	return &Server{
		log:       log,
		lifecycle: lifecycle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		idleTimeout:  idleTimeout,
	}
}

// ServeHTTP performs the handshake. The credential travels in the `token`
// query parameter of the upgrade request; authentication completes before
// the read loop starts, so no protocol frame can precede it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx := r.Context()
	conn := newConn(socket, s.writeTimeout)
	session := s.lifecycle.HandleOpen(ctx, conn, r.URL.Query().Get("token"))
	if session.State() != runtime.StateAuthenticated {
		// Rejected: the lifecycle controller already sent the error frame
		// and closed the socket.
		return
	}

	socket.SetReadLimit(defaultReadLimit)
	s.readLoop(socket, session)
}

// readLoop processes frames from one connection strictly in arrival order.
// A connection that stops sending anything is reaped by the idle timeout,
// which surfaces as a read error and takes the ordinary close path.
func (s *Server) readLoop(socket *websocket.Conn, session *runtime.Session) {
	ctx := context.Background()
	for {
		if s.idleTimeout > 0 {
			if err := socket.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				s.lifecycle.HandleError(ctx, session, err)
				return
			}
		}

		messageType, raw, err := socket.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				s.lifecycle.HandleClose(ctx, session)
			} else {
				s.lifecycle.HandleError(ctx, session, err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		s.lifecycle.HandleMessage(ctx, session, raw)
	}
}

// isExpectedClose separates an orderly peer shutdown from a transport fault.
func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		// Idle reap is the designed path for silent peers.
		return true
	}
	return false
}
