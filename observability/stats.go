// Package observability aggregates gateway counters for the debug endpoint.
package observability

import (
	"runtime"
	"sync/atomic"
)

// Snapshot is the point-in-time view served by the debug endpoint.
type Snapshot struct {
	Connections       int    `json:"connections"`
	ConnectionsOpened uint64 `json:"connections_opened"`
	AuthFailures      uint64 `json:"auth_failures"`
	FramesDispatched  uint64 `json:"frames_dispatched"`
	FramesRejected    uint64 `json:"frames_rejected"`
	BroadcastFailures uint64 `json:"broadcast_failures"`
	AllocMemMb        uint64 `json:"alloc_mem_mb"`
	NumGC             uint32 `json:"num_gc"`
}

// GatewayStats holds atomic counters updated on the hot path. All methods
// are safe for concurrent use and never block.
type GatewayStats struct {
	connections       atomic.Int64
	connectionsOpened atomic.Uint64
	authFailures      atomic.Uint64
	framesDispatched  atomic.Uint64
	framesRejected    atomic.Uint64
	broadcastFailures atomic.Uint64
}

func NewGatewayStats() *GatewayStats {
	return &GatewayStats{}
}

func (s *GatewayStats) SetConnectionCount(n int) { s.connections.Store(int64(n)) }

func (s *GatewayStats) AddConnectionOpened() { s.connectionsOpened.Add(1) }

func (s *GatewayStats) AddAuthFailure() { s.authFailures.Add(1) }

func (s *GatewayStats) AddFrameDispatched() { s.framesDispatched.Add(1) }

func (s *GatewayStats) AddFrameRejected() { s.framesRejected.Add(1) }

func (s *GatewayStats) AddBroadcastFailure() { s.broadcastFailures.Add(1) }

// GetLatest collects the counters plus basic process memory figures.
func (s *GatewayStats) GetLatest() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Snapshot{
		Connections:       int(s.connections.Load()),
		ConnectionsOpened: s.connectionsOpened.Load(),
		AuthFailures:      s.authFailures.Load(),
		FramesDispatched:  s.framesDispatched.Load(),
		FramesRejected:    s.framesRejected.Load(),
		BroadcastFailures: s.broadcastFailures.Load(),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
	}
}
