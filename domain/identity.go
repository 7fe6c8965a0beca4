// Package domain contains core concepts of the messaging gateway.
// This file defines the authenticated identity attached to a connection.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the (user, tenant) pair resolved at handshake time.
// It is attached to a connection at registration and never changes
// for the lifetime of that connection.
type Identity struct {
	UserID   int64
	TenantID int64
}
