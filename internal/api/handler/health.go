package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mimanitas/settlement/internal/api/response"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports database and cache reachability. Either failing yields 503.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{
			"database": probe(ctx, db),
			"cache":    probe(ctx, cache),
		}

		status := http.StatusOK
		overall := "ok"
		for _, v := range checks {
			if v == "unreachable" {
				status = http.StatusServiceUnavailable
				overall = "degraded"
			}
		}
		response.JSON(w, status, map[string]any{"status": overall, "checks": checks})
	}
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
