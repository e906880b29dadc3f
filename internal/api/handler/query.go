package handler

import (
	"encoding/json"
	"net/http"

	"github.com/carewire/hospital-router/internal/api/response"
	"github.com/carewire/hospital-router/internal/router"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// QueryHandler handles the main call-routing endpoint.
type QueryHandler struct {
	router *router.Router
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(r *router.Router) *QueryHandler {
	return &QueryHandler{router: r}
}

// QueryRequest is the incoming query payload. SessionID is optional; an
// empty or unknown id starts a fresh conversation.
type QueryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query" validate:"required,max=2000"`
}

// Process routes one caller query.
func (h *QueryHandler) Process(w http.ResponseWriter, r *http.Request) {
	var input QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(input); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			errors := make(map[string]string)
			for _, e := range validationErrors {
				switch e.Tag() {
				case "required":
					errors[e.Field()] = "field is required"
				case "max":
					errors[e.Field()] = "must be at most " + e.Param() + " characters"
				default:
					errors[e.Field()] = "validation failed on " + e.Tag()
				}
			}
			response.BadRequest(w, errors)
			return
		}
		response.BadRequest(w, err.Error())
		return
	}

	result := h.router.Process(r.Context(), input.SessionID, input.Query)
	response.OK(w, result)
}
