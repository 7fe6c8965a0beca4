package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"messaging-core/observability"
)

// DebugHandler serves the gateway counters as JSON. Mounted only when
// DEBUG_ENDPOINT is enabled; it is meant for operators, not clients.
func DebugHandler(log *slog.Logger, stats *observability.GatewayStats) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats.GetLatest()); err != nil {
			log.Warn("Failed to write debug snapshot", "error", err)
		}
	})
}
