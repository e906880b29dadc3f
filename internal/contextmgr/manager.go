package contextmgr

import (
	"context"
	"sync"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
)

// sharedKeyFor maps incoming update keys to the whitelisted shared-context
// key they promote into. Only these keys ever cross domain boundaries.
var sharedKeyFor = map[string]string{
	"patient_id":         "patient_id",
	"patient_name":       "patient_name",
	"symptoms":           "reported_symptoms",
	"reported_symptoms":  "reported_symptoms",
	"diagnosis":          "current_diagnosis",
	"current_diagnosis":  "current_diagnosis",
	"last_appointment":   "last_appointment",
	"next_appointment":   "next_appointment",
	"department":         "current_department",
	"current_department": "current_department",
}

// entityTypeFor maps update keys to the entity type they imply, for the
// handoff protocol's affinity rules.
var entityTypeFor = map[string]string{
	"symptoms":          "symptom",
	"reported_symptoms": "symptom",
	"diagnosis":         "condition",
	"current_diagnosis": "condition",
	"doctor":            "doctor",
	"doctor_name":       "doctor",
	"appointment_date":  "date",
	"appointment_time":  "time",
	"next_appointment":  "date",
	"policy_topic":      "policy",
	"location":          "location",
	"insurance":         "insurance",
}

// conversation is the full cross-domain state of one session. Each
// conversation has its own lock so unrelated sessions never contend.
type conversation struct {
	mu          sync.Mutex
	shared      map[string]any
	agentStates map[domain.Domain]map[string]any
	transcript  []domain.Turn
	entities    map[string][]domain.Entity
	visited     []domain.Domain
	confidence  map[domain.Domain]float64
	handoffs    int
	lastReason  string
}

func newConversation() *conversation {
	return &conversation{
		shared:      make(map[string]any),
		agentStates: make(map[domain.Domain]map[string]any),
		entities:    make(map[string][]domain.Entity),
		confidence:  make(map[domain.Domain]float64),
	}
}

// Manager merges a whitelist of cross-domain shared facts with per-domain
// private working memory, per session.
type Manager struct {
	mu    sync.RWMutex
	convs map[string]*conversation
	store domain.SnapshotStore
	now   func() time.Time
}

// NewManager creates a context manager. store is optional; without one,
// SaveState/LoadState are no-ops and context lives only in memory.
func NewManager(store domain.SnapshotStore) *Manager {
	return &Manager{
		convs: make(map[string]*conversation),
		store: store,
		now:   time.Now,
	}
}

func (m *Manager) conv(sessionID string) *conversation {
	m.mu.RLock()
	c, ok := m.convs[sessionID]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.convs[sessionID]; ok {
		return c
	}
	c = newConversation()
	m.convs[sessionID] = c
	return c
}

// Update merges updates into the domain's private map and promotes
// whitelisted keys into shared context. The whole batch is applied under
// one lock: a caller never observes a partial update.
func (m *Manager) Update(sessionID string, d domain.Domain, updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.agentStates[d]
	if !ok {
		state = make(map[string]any)
		c.agentStates[d] = state
	}

	for k, v := range updates {
		state[k] = v
		if shared, ok := sharedKeyFor[k]; ok {
			c.shared[shared] = v
		}
		if et, ok := entityTypeFor[k]; ok {
			for _, val := range stringValues(v) {
				c.addEntityLocked(et, val, 1.0, d)
			}
		}
	}
}

// Get returns the merged view for a domain: shared context overlaid with
// the domain's private state, private values winning on collision. The
// result is a copy; two calls with no intervening update are equal.
func (m *Manager) Get(sessionID string, d domain.Domain) map[string]any {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(map[string]any, len(c.shared)+len(c.agentStates[d]))
	for k, v := range c.shared {
		merged[k] = v
	}
	for k, v := range c.agentStates[d] {
		merged[k] = v
	}
	return merged
}

// ClearDomain resets one domain's private context.
func (m *Manager) ClearDomain(sessionID string, d domain.Domain) {
	c := m.conv(sessionID)
	c.mu.Lock()
	delete(c.agentStates, d)
	c.mu.Unlock()
}

// ClearAll resets shared context and every domain's private state for a
// session. Transcript and handoff history survive for analytics.
func (m *Manager) ClearAll(sessionID string) {
	c := m.conv(sessionID)
	c.mu.Lock()
	c.shared = make(map[string]any)
	c.agentStates = make(map[domain.Domain]map[string]any)
	c.entities = make(map[string][]domain.Entity)
	c.confidence = make(map[domain.Domain]float64)
	c.mu.Unlock()
}

// Release drops a session's context entirely. Called when the session
// store evicts the conversation.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	delete(m.convs, sessionID)
	m.mu.Unlock()
}

// AppendTurn adds a transcript entry.
func (m *Manager) AppendTurn(sessionID string, turn domain.Turn) {
	c := m.conv(sessionID)
	c.mu.Lock()
	c.transcript = append(c.transcript, turn)
	c.mu.Unlock()
}

// RecentHistory returns the last n transcript turns.
func (m *Manager) RecentHistory(sessionID string, n int) []domain.Turn {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.transcript) {
		n = len(c.transcript)
	}
	out := make([]domain.Turn, n)
	copy(out, c.transcript[len(c.transcript)-n:])
	return out
}

// AddEntity records an extracted fact. Duplicate values keep the higher
// confidence.
func (m *Manager) AddEntity(sessionID, entityType, value string, confidence float64, source domain.Domain) {
	c := m.conv(sessionID)
	c.mu.Lock()
	c.addEntityLocked(entityType, value, confidence, source)
	c.mu.Unlock()
}

func (c *conversation) addEntityLocked(entityType, value string, confidence float64, source domain.Domain) {
	for i, e := range c.entities[entityType] {
		if e.Value == value {
			if confidence > e.Confidence {
				c.entities[entityType][i].Confidence = confidence
			}
			return
		}
	}
	c.entities[entityType] = append(c.entities[entityType], domain.Entity{
		Value:      value,
		Confidence: confidence,
		Source:     source,
	})
}

// EntityTypes lists the entity types present in the conversation.
func (m *Manager) EntityTypes(sessionID string) []string {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]string, 0, len(c.entities))
	for t := range c.entities {
		types = append(types, t)
	}
	return types
}

// EntityWeight sums confidence across all entities of a type. Multiple
// strong mentions pin the owning domain during handoff validation.
func (m *Manager) EntityWeight(sessionID, entityType string) float64 {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum float64
	for _, e := range c.entities[entityType] {
		sum += e.Confidence
	}
	return sum
}

// RecordHandoff bumps the handoff counter, notes the visit order, and
// appends a synthetic system turn carrying the reason.
func (m *Manager) RecordHandoff(sessionID string, from, to domain.Domain, reason string) {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handoffs++
	c.lastReason = reason
	c.visited = append(c.visited, from)
	c.transcript = append(c.transcript, domain.Turn{
		Role:    domain.RoleSystem,
		Content: "HANDOFF: " + string(from) + " -> " + string(to),
		Metadata: map[string]any{
			"handoff_reason": reason,
			"handoff_number": c.handoffs,
		},
	})
}

// HandoffCount returns how many handoffs this conversation has seen.
func (m *Manager) HandoffCount(sessionID string) int {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handoffs
}

// RecentDomains returns the last n domains visited before the current one,
// most recent last.
func (m *Manager) RecentDomains(sessionID string, n int) []domain.Domain {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.visited) {
		n = len(c.visited)
	}
	out := make([]domain.Domain, n)
	copy(out, c.visited[len(c.visited)-n:])
	return out
}

// UpdateConfidence records a handler's self-reported confidence.
func (m *Manager) UpdateConfidence(sessionID string, d domain.Domain, score float64) {
	c := m.conv(sessionID)
	c.mu.Lock()
	c.confidence[d] = score
	c.mu.Unlock()
}

// Snapshot serializes the persistable context state for a session.
func (m *Manager) Snapshot(sessionID string) *domain.Snapshot {
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &domain.Snapshot{
		SharedContext: make(map[string]any, len(c.shared)),
		AgentStates:   make(map[domain.Domain]map[string]any, len(c.agentStates)),
		Timestamp:     m.now(),
	}
	for k, v := range c.shared {
		snap.SharedContext[k] = v
	}
	for d, state := range c.agentStates {
		cp := make(map[string]any, len(state))
		for k, v := range state {
			cp[k] = v
		}
		snap.AgentStates[d] = cp
	}
	return snap
}

// Restore replaces a session's shared and per-domain state from a snapshot.
func (m *Manager) Restore(sessionID string, snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	c := m.conv(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shared = make(map[string]any, len(snap.SharedContext))
	for k, v := range snap.SharedContext {
		c.shared[k] = v
	}
	c.agentStates = make(map[domain.Domain]map[string]any, len(snap.AgentStates))
	for d, state := range snap.AgentStates {
		cp := make(map[string]any, len(state))
		for k, v := range state {
			cp[k] = v
		}
		c.agentStates[d] = cp
	}
}

// SaveState persists the session's snapshot through the configured store.
func (m *Manager) SaveState(ctx context.Context, sessionID string) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, sessionID, m.Snapshot(sessionID))
}

// LoadState hydrates a session's context from the configured store. A
// missing store or absent snapshot is a cold start, not an error.
func (m *Manager) LoadState(ctx context.Context, sessionID string) error {
	if m.store == nil {
		return nil
	}
	snap, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	m.Restore(sessionID, snap)
	return nil
}

// ReleaseAll drops context for a batch of evicted sessions, deleting any
// persisted snapshots best-effort.
func (m *Manager) ReleaseAll(ctx context.Context, sessionIDs []string) {
	for _, id := range sessionIDs {
		m.Release(id)
		if m.store != nil {
			if err := m.store.Delete(ctx, id); err != nil {
				log.Warn().Err(err).Str("session_id", id).Msg("failed to delete context snapshot")
			}
		}
	}
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
