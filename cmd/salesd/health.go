package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/salestore/internal/feed"
	"github.com/rickgao/salestore/internal/series"
	"github.com/rickgao/salestore/internal/server"
	"github.com/rickgao/salestore/internal/version"
)

// newHTTPHandler serves /health, and the live feed at feedPath when
// broadcaster is not nil.
func newHTTPHandler(registry *series.Registry, srv *server.Server, broadcaster *feed.Broadcaster, feedPath string, db pinger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(registry, srv, broadcaster, db))
	if broadcaster != nil {
		mux.Handle(feedPath, broadcaster)
	}
	return mux
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports server state. db and broadcaster may be nil.
func healthHandler(registry *series.Registry, srv *server.Server, broadcaster *feed.Broadcaster, db pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Version    version.Info           `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]interface{}),
		}

		stats := registry.Stats()
		health.Components["series"] = map[string]interface{}{
			"current_day":       stats.CurrentDay,
			"resident_days":     stats.ResidentDays,
			"evictions":         stats.Evictions,
			"eviction_failures": stats.EvictionFailures,
			"max_in_memory":     stats.MaxInMemory,
			"max_days":          registry.MaxDays(),
		}
		if len(stats.ResidentDays) > stats.MaxInMemory {
			health.Status = "degraded"
		}

		srvStats := srv.Stats()
		health.Components["server"] = map[string]interface{}{
			"active":         srvStats.Active,
			"queued":         srvStats.Queued,
			"queue_capacity": srvStats.QueueCapacity,
			"queue_resizes":  srvStats.QueueResizes,
			"served":         srvStats.Served,
		}

		if broadcaster != nil {
			feedStats := broadcaster.Stats()
			health.Components["feed"] = map[string]interface{}{
				"subscribers": feedStats.Subscribers,
				"published":   feedStats.Published,
				"dropped":     feedStats.Dropped,
			}
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
