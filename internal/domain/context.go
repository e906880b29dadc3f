package domain

import (
	"context"
	"time"
)

// TurnRole identifies the author of a transcript turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleSystem    TurnRole = "system"
)

// Turn is one entry in a conversation transcript. Handoffs appear as
// synthetic system turns with metadata.
type Turn struct {
	Role     TurnRole       `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Entity is a fact extracted from the conversation, attributed to the
// domain that produced it.
type Entity struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Domain  `json:"source_domain"`
}

// Snapshot is the persisted context layout: shared facts plus each
// domain's private working memory.
type Snapshot struct {
	SharedContext map[string]any            `json:"shared_context"`
	AgentStates   map[Domain]map[string]any `json:"agent_states"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// SnapshotStore persists context snapshots per session. Load returns
// (nil, nil) when no snapshot exists; a cold start is an empty context.
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}
