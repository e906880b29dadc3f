package domain

import "time"

// SessionStatus tracks where a conversation is in its lifecycle.
type SessionStatus string

const (
	StatusInactive SessionStatus = "inactive"
	StatusActive   SessionStatus = "active"
	StatusResolved SessionStatus = "resolved"
	StatusError    SessionStatus = "error"
)

// CanTransition reports whether the state machine allows moving from s to
// next. INACTIVE→ACTIVE→{RESOLVED,ERROR}→INACTIVE; re-entering ACTIVE from
// RESOLVED/ERROR models a new query on an existing conversation.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusInactive:
		return next == StatusActive
	case StatusActive:
		return next == StatusResolved || next == StatusError
	case StatusResolved, StatusError:
		return next == StatusActive || next == StatusInactive
	}
	return false
}

// ConversationSession is the per-conversation routing state owned by the
// session store.
type ConversationSession struct {
	ID             string        `json:"id"`
	CurrentDomain  Domain        `json:"current_domain"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}
