package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TranscriptRepository implements domain.TranscriptRepository over
// Postgres. It is the durable call log used for audits and the handoff
// analytics history.
type TranscriptRepository struct {
	pool *pgxpool.Pool
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(pool *pgxpool.Pool) *TranscriptRepository {
	return &TranscriptRepository{pool: pool}
}

// SaveTurn appends one transcript turn to the call log.
func (r *TranscriptRepository) SaveTurn(ctx context.Context, sessionID string, turn domain.Turn) error {
	var metadataJSON []byte
	if turn.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal turn metadata: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO call_turns (session_id, role, content, metadata)
		VALUES ($1, $2, $3, $4)`,
		sessionID, string(turn.Role), turn.Content, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// SaveHandoff records one executed handoff.
func (r *TranscriptRepository) SaveHandoff(ctx context.Context, rec domain.HandoffRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO handoff_events (id, session_id, source, target, reason, success_rate, resolution_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		rec.SessionID,
		string(rec.Source),
		string(rec.Target),
		rec.Reason,
		rec.SuccessRate,
		rec.ResolutionTime.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save handoff: %w", err)
	}
	return nil
}

// ListTurns retrieves the most recent turns for a session in chronological
// order.
func (r *TranscriptRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role, content, metadata
		FROM call_turns
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var roleStr string
		var metadataJSON []byte

		if err := rows.Scan(&roleStr, &t.Content, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = domain.TurnRole(roleStr)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal turn metadata: %w", err)
			}
		}
		turns = append(turns, t)
	}

	// Reverse to return chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}
