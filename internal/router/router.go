package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carewire/hospital-router/internal/classifier"
	"github.com/carewire/hospital-router/internal/contextmgr"
	"github.com/carewire/hospital-router/internal/dispatch"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/handoff"
	"github.com/carewire/hospital-router/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clarifyText = "I'm sorry, I didn't quite catch that. Could you tell me a bit more about what you need help with today?"

	emergencyText = "This sounds like it may be a medical emergency. Please hang up and dial 911 immediately, or stay on the line and I will connect you with our emergency staff right now."
)

// Options tunes router behavior. Zero values pick sensible defaults.
type Options struct {
	HistoryWindow      int
	MaxHandoffsPerTurn int
}

// Router is the front door of the call center: it owns classification,
// session lifecycle, context, dispatch, and the handoff protocol for every
// incoming query.
type Router struct {
	classifier *classifier.Classifier
	sessions   *session.Store
	contexts   *contextmgr.Manager
	dispatcher *dispatch.Dispatcher
	protocol   *handoff.Protocol
	transcript domain.TranscriptRepository

	historyWindow int
	maxHandoffs   int

	mu    sync.Mutex
	stats Stats
}

// Stats is a point-in-time view of routing activity.
type Stats struct {
	TotalQueries     int64                   `json:"total_queries"`
	ByDomain         map[domain.Domain]int64 `json:"by_domain"`
	HandoffsExecuted int64                   `json:"handoffs_executed"`
	HandoffsRejected int64                   `json:"handoffs_rejected"`
	Escalations      int64                   `json:"escalations"`
	HandlerErrors    int64                   `json:"handler_errors"`
	ActiveSessions   int                     `json:"active_sessions"`
	Classifier       classifier.Stats        `json:"classifier"`
	HandoffPairs     []handoff.PairStats     `json:"handoff_pairs"`
}

// New wires a router. transcript may be nil; call logging is then skipped.
func New(
	cls *classifier.Classifier,
	sessions *session.Store,
	contexts *contextmgr.Manager,
	dispatcher *dispatch.Dispatcher,
	protocol *handoff.Protocol,
	transcript domain.TranscriptRepository,
	opts Options,
) (*Router, error) {
	if err := dispatcher.RequireAll(domain.HandlerDomains()...); err != nil {
		return nil, fmt.Errorf("router init: %w", err)
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.MaxHandoffsPerTurn <= 0 {
		opts.MaxHandoffsPerTurn = 2
	}
	return &Router{
		classifier:    cls,
		sessions:      sessions,
		contexts:      contexts,
		dispatcher:    dispatcher,
		protocol:      protocol,
		transcript:    transcript,
		historyWindow: opts.HistoryWindow,
		maxHandoffs:   opts.MaxHandoffsPerTurn,
		stats:         Stats{ByDomain: make(map[domain.Domain]int64)},
	}, nil
}

// Process routes one query end to end and returns the caller-facing
// response. It never returns an error for handler failures; those surface
// as apologetic responses with the session in ERROR state.
func (r *Router) Process(ctx context.Context, sessionID, query string) domain.RouterResponse {
	if evicted := r.sessions.Sweep(); len(evicted) > 0 {
		r.contexts.ReleaseAll(ctx, evicted)
	}

	sess, created := r.sessions.GetOrCreate(sessionID, query)
	if created {
		if err := r.contexts.LoadState(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("context hydration failed, starting cold")
		}
	}

	res := r.classifier.Classify(ctx, query, sess.CurrentDomain)
	log.Debug().
		Str("session_id", sess.ID).
		Str("domain", string(res.Domain)).
		Str("method", string(res.Method)).
		Float64("confidence", res.Confidence).
		Msg("classified query")

	switch res.Domain {
	case domain.DomainClarify:
		r.count(res.Domain)
		r.sessions.Touch(sess.ID)
		return domain.RouterResponse{
			Response:   clarifyText,
			Department: domain.DomainClarify,
			SessionID:  sess.ID,
			Status:     sess.Status,
		}
	case domain.DomainHuman:
		return r.escalate(ctx, sess, query)
	}

	// A conversation that is mid-task keeps its domain even when the new
	// utterance matches another domain's vocabulary. Topic changes go
	// through the handoff protocol once the handler has responded, so the
	// no-loop, no-bounce, and affinity rules always apply. Emergencies
	// escalate above regardless.
	target := res.Domain
	if sess.Status == domain.StatusActive && sess.CurrentDomain.IsDispatchable() && target != sess.CurrentDomain {
		log.Debug().
			Str("session_id", sess.ID).
			Str("classified", string(res.Domain)).
			Str("domain", string(sess.CurrentDomain)).
			Msg("active session keeps its domain")
		target = sess.CurrentDomain
	}

	return r.dispatch(ctx, sess, target, query)
}

// escalate answers an emergency directly and closes out the query. Human
// escalation never goes through a handler.
func (r *Router) escalate(ctx context.Context, sess domain.ConversationSession, query string) domain.RouterResponse {
	r.count(domain.DomainHuman)
	r.mu.Lock()
	r.stats.Escalations++
	r.mu.Unlock()

	if err := r.sessions.Update(sess.ID, domain.DomainHuman, domain.StatusActive); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("session activation failed on escalation")
	}
	r.recordTurn(ctx, sess.ID, domain.Turn{Role: domain.RoleUser, Content: query})
	r.recordTurn(ctx, sess.ID, domain.Turn{
		Role:     domain.RoleAssistant,
		Content:  emergencyText,
		Metadata: map[string]any{"department": string(domain.DomainHuman)},
	})
	if err := r.sessions.Update(sess.ID, domain.DomainHuman, domain.StatusResolved); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("session resolve failed on escalation")
	}

	return domain.RouterResponse{
		Response:   emergencyText,
		Department: domain.DomainHuman,
		SessionID:  sess.ID,
		Status:     domain.StatusResolved,
	}
}

func (r *Router) dispatch(ctx context.Context, sess domain.ConversationSession, target domain.Domain, query string) domain.RouterResponse {
	r.count(target)

	if err := r.sessions.Update(sess.ID, target, domain.StatusActive); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("session activation failed")
	}
	r.recordTurn(ctx, sess.ID, domain.Turn{Role: domain.RoleUser, Content: query})

	start := time.Now()
	resp := r.dispatcher.Dispatch(ctx, target, r.envelope(sess.ID, target, query))
	r.applyUpdates(sess.ID, target, resp)

	responseText := resp.ResponseText
	current := target
	var executed [][2]domain.Domain

	// A handler can chain at most a bounded number of handoffs per query;
	// past that the answer ships as-is.
	for hop := 0; hop < r.maxHandoffs; hop++ {
		needed, next, conf := r.protocol.CheckNeeded(sess.ID, current, query, resp)
		if !needed {
			break
		}

		out := r.protocol.Execute(sess.ID, current, next, fmt.Sprintf("routing confidence %.2f", conf), r.contexts)
		if !out.Executed {
			r.mu.Lock()
			r.stats.HandoffsRejected++
			r.mu.Unlock()
			log.Debug().
				Str("session_id", sess.ID).
				Str("reason", out.Reason).
				Msg("handoff rejected, staying with current domain")
			break
		}

		r.mu.Lock()
		r.stats.HandoffsExecuted++
		r.mu.Unlock()
		r.saveHandoff(ctx, sess.ID, current, out.Target, out.Reason, time.Since(start))
		executed = append(executed, [2]domain.Domain{current, out.Target})

		current = out.Target
		if err := r.sessions.Update(sess.ID, current, domain.StatusActive); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("session domain switch failed")
		}

		resp = r.dispatcher.Dispatch(ctx, current, r.envelope(sess.ID, current, query))
		r.applyUpdates(sess.ID, current, resp)
		responseText = out.Message + " " + resp.ResponseText
	}

	status := r.finish(ctx, sess.ID, current, resp)

	// Feed this turn's outcome back into handoff analytics so pairs that
	// keep failing get pruned from the matrix.
	for _, pair := range executed {
		r.protocol.RecordOutcome(pair[0], pair[1], status == domain.StatusResolved, time.Since(start))
	}

	r.recordTurn(ctx, sess.ID, domain.Turn{
		Role:     domain.RoleAssistant,
		Content:  responseText,
		Metadata: map[string]any{"department": string(current)},
	})
	if err := r.contexts.SaveState(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("context snapshot save failed")
	}

	return domain.RouterResponse{
		Response:   responseText,
		Department: current,
		SessionID:  sess.ID,
		Status:     status,
	}
}

func (r *Router) envelope(sessionID string, d domain.Domain, query string) domain.RequestEnvelope {
	return domain.RequestEnvelope{
		Text:          query,
		Context:       r.contexts.Get(sessionID, d),
		RecentHistory: r.contexts.RecentHistory(sessionID, r.historyWindow),
	}
}

// applyUpdates commits handler context updates. Error responses never touch
// context; a failed handler must not corrupt state other domains read.
func (r *Router) applyUpdates(sessionID string, d domain.Domain, resp domain.ResponseEnvelope) {
	if resp.Status == domain.HandlerError {
		return
	}
	r.contexts.Update(sessionID, d, resp.ContextUpdates)
	r.contexts.UpdateConfidence(sessionID, d, resp.Confidence)
}

func (r *Router) finish(ctx context.Context, sessionID string, d domain.Domain, resp domain.ResponseEnvelope) domain.SessionStatus {
	var status domain.SessionStatus
	switch resp.Status {
	case domain.HandlerResolved:
		status = domain.StatusResolved
	case domain.HandlerError:
		status = domain.StatusError
		r.mu.Lock()
		r.stats.HandlerErrors++
		r.mu.Unlock()
	default:
		status = domain.StatusActive
	}
	if err := r.sessions.Update(sessionID, d, status); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session status update failed")
	}
	return status
}

// Session returns a session's current routing state.
func (r *Router) Session(id string) (domain.ConversationSession, error) {
	return r.sessions.Get(id)
}

// ClearSession resets a session to INACTIVE and wipes its cross-domain
// context. The transcript survives.
func (r *Router) ClearSession(id string) error {
	if err := r.sessions.Clear(id); err != nil {
		return err
	}
	r.contexts.ClearAll(id)
	return nil
}

// History returns the recent transcript for a session.
func (r *Router) History(sessionID string, n int) []domain.Turn {
	return r.contexts.RecentHistory(sessionID, n)
}

// Snapshot returns routing statistics.
func (r *Router) Snapshot() Stats {
	r.mu.Lock()
	s := r.stats
	byDomain := make(map[domain.Domain]int64, len(s.ByDomain))
	for d, n := range s.ByDomain {
		byDomain[d] = n
	}
	r.mu.Unlock()

	s.ByDomain = byDomain
	s.ActiveSessions = r.sessions.Len()
	s.Classifier = r.classifier.Snapshot()
	s.HandoffPairs = r.protocol.Analytics().Stats()
	return s
}

// Protocol exposes the handoff protocol for admin views and outcome
// feedback.
func (r *Router) Protocol() *handoff.Protocol { return r.protocol }

func (r *Router) count(d domain.Domain) {
	r.mu.Lock()
	r.stats.TotalQueries++
	r.stats.ByDomain[d]++
	r.mu.Unlock()
}

func (r *Router) recordTurn(ctx context.Context, sessionID string, turn domain.Turn) {
	r.contexts.AppendTurn(sessionID, turn)
	if r.transcript == nil {
		return
	}
	if err := r.transcript.SaveTurn(ctx, sessionID, turn); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("transcript write failed")
	}
}

func (r *Router) saveHandoff(ctx context.Context, sessionID string, from, to domain.Domain, reason string, elapsed time.Duration) {
	if r.transcript == nil {
		return
	}
	rec := domain.HandoffRecord{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Source:         from,
		Target:         to,
		Reason:         reason,
		ResolutionTime: elapsed,
		CreatedAt:      time.Now(),
	}
	if err := r.transcript.SaveHandoff(ctx, rec); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("handoff record write failed")
	}
}
