package handoff

import (
	"github.com/carewire/hospital-router/internal/classifier"
	"github.com/carewire/hospital-router/internal/domain"
)

// ContextView is the slice of conversation state the handoff protocol
// needs. Implemented by the context manager.
type ContextView interface {
	HandoffCount(sessionID string) int
	RecentDomains(sessionID string, n int) []domain.Domain
	EntityTypes(sessionID string) []string
	EntityWeight(sessionID, entityType string) float64
}

// pinWeight is the entity-affinity weight at which a domain refuses to let
// the conversation leave. Medical requires multiple strong mentions;
// appointment facts pin immediately.
var pinWeight = map[domain.Domain]float64{
	domain.DomainMedical:     1.5,
	domain.DomainAppointment: 1.0,
}

// Validator enforces the loop, bounce, and entity-affinity rules.
type Validator struct {
	ctx ContextView
}

// NewValidator creates a handoff validator over a context view.
func NewValidator(ctx ContextView) *Validator {
	return &Validator{ctx: ctx}
}

// Validate decides whether moving from source to target is safe for this
// conversation. Rejections are advisory; the protocol falls back to an
// alternative target or stays put.
func (v *Validator) Validate(sessionID string, source, target domain.Domain) domain.HandoffDecision {
	dec := domain.HandoffDecision{Source: source, Target: target}

	// No-loop: after three handoffs, refuse to shuttle between domains
	// already in the recent visit window.
	if v.ctx.HandoffCount(sessionID) >= 3 {
		recent := v.ctx.RecentDomains(sessionID, 3)
		if containsDomain(recent, source) && containsDomain(recent, target) {
			dec.Reason = "would create a handoff loop"
			return dec
		}
	}

	// No-bounce: never return immediately to the domain we just left.
	if recent := v.ctx.RecentDomains(sessionID, 1); len(recent) == 1 && recent[0] == target {
		dec.Reason = "would immediately return to previous domain"
		return dec
	}

	// Entity affinity: a domain that strongly owns facts already in the
	// conversation keeps it.
	for _, et := range v.ctx.EntityTypes(sessionID) {
		owner, ok := classifier.EntityAffinity(et)
		if !ok || owner == target {
			continue
		}
		threshold, pinned := pinWeight[owner]
		if !pinned {
			continue
		}
		if v.ctx.EntityWeight(sessionID, et) >= threshold {
			dec.Reason = string(owner) + " entities pin the conversation"
			return dec
		}
	}

	dec.Valid = true
	dec.Reason = "handoff is valid"
	return dec
}

func containsDomain(list []domain.Domain, d domain.Domain) bool {
	for _, e := range list {
		if e == d {
			return true
		}
	}
	return false
}
