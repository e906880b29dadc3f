package handoff

import (
	"sync"

	"github.com/carewire/hospital-router/internal/domain"
)

type transition struct {
	from, to domain.Domain
}

const genericTransition = "Let me connect you with a specialist who can better help with your question."

// Matrix defines which domains may hand off to which others, and the
// user-facing message for each transition. The analytics loop prunes pairs
// that consistently fail.
type Matrix struct {
	mu       sync.RWMutex
	allowed  map[domain.Domain][]domain.Domain
	messages map[transition]string
}

// NewMatrix builds the default fully-connected matrix over the three
// handler domains.
func NewMatrix() *Matrix {
	return &Matrix{
		allowed: map[domain.Domain][]domain.Domain{
			domain.DomainAppointment: {domain.DomainMedical, domain.DomainGeneral},
			domain.DomainMedical:     {domain.DomainAppointment, domain.DomainGeneral},
			domain.DomainGeneral:     {domain.DomainAppointment, domain.DomainMedical},
		},
		messages: map[transition]string{
			{domain.DomainAppointment, domain.DomainMedical}: "I'll connect you with our medical specialist to discuss those symptoms.",
			{domain.DomainAppointment, domain.DomainGeneral}: "Let me transfer you to our hospital information desk for that question.",
			{domain.DomainMedical, domain.DomainAppointment}: "I'll connect you with our scheduling system to help with that appointment request.",
			{domain.DomainMedical, domain.DomainGeneral}:     "I'll have our information desk answer your question about hospital procedures.",
			{domain.DomainGeneral, domain.DomainAppointment}: "Let me transfer you to our scheduling expert to help with that appointment.",
			{domain.DomainGeneral, domain.DomainMedical}:     "Let me transfer you to our medical specialist who can better answer your health question.",
		},
	}
}

// CanHandoff reports whether source may hand off to target.
func (m *Matrix) CanHandoff(source, target domain.Domain) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.allowed[source] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTargets returns the allowed handoff targets for a source domain.
func (m *Matrix) ValidTargets(source domain.Domain) []domain.Domain {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Domain, len(m.allowed[source]))
	copy(out, m.allowed[source])
	return out
}

// TransitionMessage returns the user-facing text for a transition, falling
// back to a generic message for unmapped pairs.
func (m *Matrix) TransitionMessage(source, target domain.Domain) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if msg, ok := m.messages[transition{source, target}]; ok {
		return msg
	}
	return genericTransition
}

// Remove deletes a transition from the matrix. Used by analytics pruning.
func (m *Matrix) Remove(source, target domain.Domain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := m.allowed[source]
	for i, t := range targets {
		if t == target {
			m.allowed[source] = append(targets[:i], targets[i+1:]...)
			return
		}
	}
}
