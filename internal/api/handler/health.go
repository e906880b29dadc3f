package handler

import (
	"net/http"

	"github.com/carewire/hospital-router/internal/api/response"
	"github.com/carewire/hospital-router/internal/repository/postgres"
	"github.com/carewire/hospital-router/internal/repository/redis"
)

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including backing-store
// connectivity. Nil stores are disabled features, not failures.
func ReadyCheck(db *postgres.DB, cache *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				response.ServiceUnavailable(w, "call log database not ready")
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				response.ServiceUnavailable(w, "context store not ready")
				return
			}
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
