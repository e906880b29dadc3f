package handoff

import (
	"time"

	"github.com/carewire/hospital-router/internal/classifier"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
)

// Protocol decides if and when control moves between domains
// mid-conversation, validates the move, and executes it.
type Protocol struct {
	matrix    *Matrix
	validator *Validator
	analytics *Analytics
	ctx       ContextView

	// confidenceFloor is the handler confidence under which the protocol
	// looks for a better domain.
	confidenceFloor float64
}

// NewProtocol wires the matrix, validator, and analytics over a context
// view.
func NewProtocol(ctx ContextView, confidenceFloor float64) *Protocol {
	if confidenceFloor <= 0 {
		confidenceFloor = 0.6
	}
	return &Protocol{
		matrix:          NewMatrix(),
		validator:       NewValidator(ctx),
		analytics:       NewAnalytics(),
		ctx:             ctx,
		confidenceFloor: confidenceFloor,
	}
}

// Matrix exposes the transition matrix (for messages and admin views).
func (p *Protocol) Matrix() *Matrix { return p.matrix }

// Analytics exposes the outcome tracker.
func (p *Protocol) Analytics() *Analytics { return p.analytics }

// CheckNeeded decides whether the response just received warrants a
// handoff. Triggers, in order: the handler explicitly names a successor;
// the handler reports low confidence; the user explicitly asks to be
// transferred.
func (p *Protocol) CheckNeeded(sessionID string, current domain.Domain, query string, resp domain.ResponseEnvelope) (bool, domain.Domain, float64) {
	// 1. Handler explicitly requests a successor.
	if resp.SuggestedNext != "" && resp.SuggestedNext != current && resp.SuggestedNext.IsDispatchable() {
		if p.matrix.CanHandoff(current, resp.SuggestedNext) {
			return true, resp.SuggestedNext, 0.9
		}
	}

	// 2. Low handler confidence: re-classify excluding the current domain.
	if resp.Status != domain.HandlerError && resp.Confidence > 0 && resp.Confidence < p.confidenceFloor {
		target, score := classifier.Rescore(query, p.ctx.EntityTypes(sessionID), current)
		if target != current && score > 0 && p.matrix.CanHandoff(current, target) {
			return true, target, score
		}
	}

	// 3. User explicitly asks for a different department.
	if classifier.IsTransferRequest(query) {
		target, _ := classifier.Rescore(query, p.ctx.EntityTypes(sessionID), current)
		if target != current && p.matrix.CanHandoff(current, target) {
			return true, target, 0.8
		}
	}

	return false, "", 0
}

// Result is the outcome of executing a handoff.
type Result struct {
	Executed bool
	Target   domain.Domain
	Message  string
	Reason   string
}

// recorder is the context mutation the protocol performs on execution.
// Kept narrow so tests can observe it.
type recorder interface {
	RecordHandoff(sessionID string, from, to domain.Domain, reason string)
}

// Execute validates and performs the handoff. On validation failure it
// tries an alternative target weighted by entity affinity; if none
// survives, the conversation stays where it is. HandoffRejected is not an
// error.
func (p *Protocol) Execute(sessionID string, source, target domain.Domain, reason string, rec recorder) Result {
	dec := p.validator.Validate(sessionID, source, target)
	if !dec.Valid {
		log.Debug().
			Str("session_id", sessionID).
			Str("source", string(source)).
			Str("target", string(target)).
			Str("reason", dec.Reason).
			Msg("handoff rejected")

		alt := p.FindAlternativeTarget(sessionID, source, target)
		if alt == "" || alt == source {
			return Result{Executed: false, Target: source, Reason: dec.Reason}
		}
		if altDec := p.validator.Validate(sessionID, source, alt); !altDec.Valid {
			return Result{Executed: false, Target: source, Reason: altDec.Reason}
		}
		target = alt
		reason = "alternative target after rejection: " + dec.Reason
	}

	rec.RecordHandoff(sessionID, source, target, reason)

	return Result{
		Executed: true,
		Target:   target,
		Message:  p.matrix.TransitionMessage(source, target),
		Reason:   reason,
	}
}

// FindAlternativeTarget picks the best remaining target when the proposed
// one fails validation, weighted by which domain owns the conversation's
// entities. General information is the default refuge.
func (p *Protocol) FindAlternativeTarget(sessionID string, source, invalid domain.Domain) domain.Domain {
	var candidates []domain.Domain
	for _, t := range p.matrix.ValidTargets(source) {
		if t != invalid {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	owned := map[domain.Domain]bool{}
	for _, et := range p.ctx.EntityTypes(sessionID) {
		if owner, ok := classifier.EntityAffinity(et); ok {
			owned[owner] = true
		}
	}

	best := candidates[0]
	bestScore := 0.0
	for _, t := range candidates {
		score := 0.5
		if owned[t] {
			score = 0.8
		} else if t == domain.DomainGeneral {
			score = 0.6
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}

// RecordOutcome feeds an executed handoff's result back into analytics and
// prunes the matrix when a pair has demonstrably stopped working.
func (p *Protocol) RecordOutcome(source, target domain.Domain, success bool, resolution time.Duration) {
	rate := 0.0
	if success {
		rate = 1.0
	}
	p.analytics.Track(source, target, rate, resolution)
	p.analytics.Prune(p.matrix)
}
