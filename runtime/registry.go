// Package runtime holds the live-connection registry, the frame dispatcher
// and the session lifecycle controller. It orchestrates delivery without
// containing domain rules or transport logic.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"messaging-core/contract"
	"messaging-core/domain"
	"messaging-core/observability"
)

type connSet map[contract.Conn]struct{}

// Registry is the in-memory store of live connections, indexed by user and
// by tenant. Both indices and the authoritative metadata map are mutated in
// the same critical section so they can never disagree. One user may hold
// several connections (multi-device); removing one never touches siblings.
type Registry struct {
	mu       sync.RWMutex
	metadata map[contract.Conn]domain.Identity
	byUser   map[int64]connSet
	byTenant map[int64]connSet

	log   *slog.Logger
	stats *observability.GatewayStats
}

func NewRegistry(log *slog.Logger, stats *observability.GatewayStats) *Registry {
	return &Registry{
		metadata: make(map[contract.Conn]domain.Identity),
		byUser:   make(map[int64]connSet),
		byTenant: make(map[int64]connSet),
		log:      log,
		stats:    stats,
	}
}

// Add registers a connection under the given identity. Re-adding a live
// connection first detaches it from its previous identity so the indices
// stay in lockstep with the authoritative map.
func (r *Registry) Add(conn contract.Conn, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.metadata[conn]; ok {
		r.detachLocked(conn, previous)
	}

	r.metadata[conn] = identity
	if _, ok := r.byUser[identity.UserID]; !ok {
		r.byUser[identity.UserID] = make(connSet)
	}
	r.byUser[identity.UserID][conn] = struct{}{}

	if _, ok := r.byTenant[identity.TenantID]; !ok {
		r.byTenant[identity.TenantID] = make(connSet)
	}
	r.byTenant[identity.TenantID][conn] = struct{}{}

	r.stats.SetConnectionCount(len(r.metadata))
}

// Remove deregisters a connection. Removing an unregistered connection is
// a no-op, which makes the close path idempotent.
func (r *Registry) Remove(conn contract.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.metadata[conn]
	if !ok {
		return
	}
	r.detachLocked(conn, identity)
	r.stats.SetConnectionCount(len(r.metadata))
}

// detachLocked removes a connection from the authoritative map and both
// indices, deleting index entries that become empty so lookups never see
// stale empty sets. Caller must hold the write lock.
func (r *Registry) detachLocked(conn contract.Conn, identity domain.Identity) {
	delete(r.metadata, conn)

	if set, ok := r.byUser[identity.UserID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.byUser, identity.UserID)
		}
	}
	if set, ok := r.byTenant[identity.TenantID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.byTenant, identity.TenantID)
		}
	}
}

// ConnectionsForUser returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsForUser(userID int64) []contract.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

// ConnectionsForTenant returns a snapshot of all live connections of a tenant.
func (r *Registry) ConnectionsForTenant(tenantID int64) []contract.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byTenant[tenantID])
}

func snapshot(set connSet) []contract.Conn {
	if len(set) == 0 {
		return nil
	}
	conns := make([]contract.Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Metadata reports the identity attached to a connection, if any.
func (r *Registry) Metadata(conn contract.Conn) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.metadata[conn]
	return identity, ok
}

// Count reports the number of live registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metadata)
}

// Broadcast fans the payload out to every live connection of every listed
// participant, skipping excludeUserID when set. Targets are snapshotted
// under the read lock; the actual sends happen outside it so a slow or
// re-entrant socket write can never hold up the registry. A failed send is
// logged and skipped, never aborting the rest of the fan-out.
func (r *Registry) Broadcast(ctx context.Context, participantIDs []int64, payload []byte, excludeUserID *int64) {
	r.mu.RLock()
	var targets []contract.Conn
	for _, userID := range participantIDs {
		if excludeUserID != nil && userID == *excludeUserID {
			continue
		}
		for conn := range r.byUser[userID] {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(ctx, payload); err != nil {
			r.stats.AddBroadcastFailure()
			r.log.Warn("Broadcast send failed, skipping recipient connection", "error", err)
		}
	}
}
