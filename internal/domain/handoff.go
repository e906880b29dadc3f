package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HandoffDecision is the verdict of evaluating a proposed domain transfer.
type HandoffDecision struct {
	Source     Domain  `json:"source"`
	Target     Domain  `json:"target"`
	Reason     string  `json:"reason"`
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
}

// HandoffRecord is one executed (or attempted) handoff, kept for the
// analytics feedback loop that prunes consistently failing transitions.
type HandoffRecord struct {
	ID             uuid.UUID     `json:"id"`
	SessionID      string        `json:"session_id"`
	Source         Domain        `json:"source"`
	Target         Domain        `json:"target"`
	Reason         string        `json:"reason"`
	SuccessRate    float64       `json:"success_rate"`
	ResolutionTime time.Duration `json:"resolution_time"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TranscriptRepository is the durable call log. Writes are best-effort:
// the router logs failures and keeps serving.
type TranscriptRepository interface {
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error
	SaveHandoff(ctx context.Context, rec HandoffRecord) error
	ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)
}
