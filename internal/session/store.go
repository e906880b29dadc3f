package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
)

// Store tracks per-conversation routing state in memory and expires idle
// conversations. All mutations are isolated per session id; the store lock
// only guards the map, never a whole request.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	idleTimeout time.Duration
	hardCleanup time.Duration
	now         func() time.Time
}

type entry struct {
	mu      sync.Mutex
	session domain.ConversationSession
}

// NewStore creates a session store. idleTimeout expires ACTIVE sessions
// left mid-conversation; hardCleanup deletes RESOLVED/ERROR sessions.
func NewStore(idleTimeout, hardCleanup time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 15 * time.Minute
	}
	if hardCleanup <= 0 {
		hardCleanup = 5 * time.Minute
	}
	return &Store{
		sessions:    make(map[string]*entry),
		idleTimeout: idleTimeout,
		hardCleanup: hardCleanup,
		now:         time.Now,
	}
}

// MintID derives an opaque session id from the current time and a hash of
// the first query. Collisions are tolerable; ids are not security tokens.
func (s *Store) MintID(query string) string {
	h := fnv.New32a()
	h.Write([]byte(query))
	return fmt.Sprintf("sess_%d_%08x", s.now().UnixNano(), h.Sum32())
}

// GetOrCreate returns the live session for id, or mints a fresh one when id
// is empty or unknown. A missing or expired id is session corruption the
// caller never sees; the router just gets a new conversation.
func (s *Store) GetOrCreate(id, query string) (domain.ConversationSession, bool) {
	if id != "" {
		s.mu.RLock()
		e, ok := s.sessions[id]
		s.mu.RUnlock()
		if ok {
			e.mu.Lock()
			sess := e.session
			e.mu.Unlock()
			return sess, false
		}
	}

	now := s.now()
	sess := domain.ConversationSession{
		ID:             s.MintID(query),
		Status:         domain.StatusInactive,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.mu.Unlock()

	return sess, true
}

// Get returns the session for id.
func (s *Store) Get(id string) (domain.ConversationSession, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ConversationSession{}, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// Update moves the session to a new domain/status and refreshes its
// activity timestamp. Transitions outside the state machine are rejected.
func (s *Store) Update(id string, d domain.Domain, status domain.SessionStatus) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, e.session.Status, status)
	}

	e.session.CurrentDomain = d
	e.session.Status = status
	e.session.LastActivityAt = s.now()
	return nil
}

// Touch refreshes the activity timestamp without changing state.
func (s *Store) Touch(id string) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.session.LastActivityAt = s.now()
	e.mu.Unlock()
}

// Clear forces a session to INACTIVE immediately, regardless of state.
func (s *Store) Clear(id string) error {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.mu.Lock()
	e.session.Status = domain.StatusInactive
	e.session.CurrentDomain = ""
	e.session.LastActivityAt = s.now()
	e.mu.Unlock()
	return nil
}

// Sweep evicts expired sessions and returns the ids it removed. ACTIVE
// sessions expire after the idle timeout; finished sessions are cleaned up
// sooner. Sweeping is idempotent and safe alongside request processing:
// each session is read and conditionally deleted under its own lock.
func (s *Store) Sweep() []string {
	now := s.now()

	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var evicted []string
	for _, id := range ids {
		s.mu.RLock()
		e, ok := s.sessions[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		idle := now.Sub(e.session.LastActivityAt)
		expired := false
		switch e.session.Status {
		case domain.StatusResolved, domain.StatusError, domain.StatusInactive:
			expired = idle >= s.hardCleanup
		default:
			expired = idle >= s.idleTimeout
		}
		e.mu.Unlock()

		if expired {
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartSweeper runs periodic sweeps until ctx is done. onEvict, if set,
// is called with each batch of evicted ids so callers can release
// per-session context.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration, onEvict func([]string)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := s.Sweep(); len(evicted) > 0 {
					log.Debug().Int("count", len(evicted)).Msg("swept expired sessions")
					if onEvict != nil {
						onEvict(evicted)
					}
				}
			}
		}
	}()
}
