package handler

import (
	"net/http"

	"github.com/carewire/hospital-router/internal/api/response"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/router"
)

// AdminHandler exposes routing statistics and handoff analytics to
// authenticated operators.
type AdminHandler struct {
	router *router.Router
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(r *router.Router) *AdminHandler {
	return &AdminHandler{router: r}
}

// Stats returns router-wide statistics.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.router.Snapshot())
}

// Handoffs returns per-pair handoff analytics.
func (h *AdminHandler) Handoffs(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"pairs":     h.router.Protocol().Analytics().Stats(),
		"bad_pairs": h.router.Protocol().Analytics().BadPairs(),
	})
}

// Matrix returns the current handoff matrix, reflecting any pruning.
func (h *AdminHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	matrix := make(map[string][]domain.Domain, len(domain.HandlerDomains()))
	for _, d := range domain.HandlerDomains() {
		matrix[string(d)] = h.router.Protocol().Matrix().ValidTargets(d)
	}
	response.OK(w, matrix)
}
