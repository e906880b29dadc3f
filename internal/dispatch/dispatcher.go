package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
)

// DomainHandler is the uniform asynchronous contract every domain handler
// implements. Handlers must tolerate repeated invocation with an identical
// envelope under retry.
type DomainHandler interface {
	// Domain returns the domain this handler serves.
	Domain() domain.Domain

	// Handle processes one request envelope.
	Handle(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error)
}

const handlerErrorText = "I'm sorry, I'm having trouble with that right now. Let me connect you with a staff member who can help."

// Dispatcher holds handler references and normalizes their heterogeneous
// responses into one envelope shape. A handler can never crash the router:
// errors, panics, and timeouts all become error envelopes.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.Domain]DomainHandler
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher with a per-call handler timeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Dispatcher{
		handlers: make(map[domain.Domain]DomainHandler),
		timeout:  timeout,
	}
}

// Register adds a handler for its domain. Registering the same domain
// twice is a wiring bug.
func (d *Dispatcher) Register(h DomainHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dom := h.Domain()
	if _, exists := d.handlers[dom]; exists {
		return fmt.Errorf("handler already registered for domain %q", dom)
	}
	d.handlers[dom] = h
	return nil
}

// RequireAll verifies every listed domain has a handler. Called at
// startup; a silently-missing handler would cause perpetual escalation at
// runtime, so initialization must fail instead.
func (d *Dispatcher) RequireAll(domains ...domain.Domain) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, dom := range domains {
		if _, ok := d.handlers[dom]; !ok {
			return fmt.Errorf("%w: %q", domain.ErrHandlerNotRegistered, dom)
		}
	}
	return nil
}

// Registered lists the domains with handlers.
func (d *Dispatcher) Registered() []domain.Domain {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Domain, 0, len(d.handlers))
	for dom := range d.handlers {
		out = append(out, dom)
	}
	return out
}

// Dispatch invokes the handler for dom under a bounded timeout and returns
// a normalized envelope. It never returns an error to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, dom domain.Domain, req domain.RequestEnvelope) domain.ResponseEnvelope {
	d.mu.RLock()
	h, ok := d.handlers[dom]
	d.mu.RUnlock()
	if !ok {
		log.Error().Str("domain", string(dom)).Msg("dispatch to unregistered domain")
		return errorEnvelope()
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		resp domain.ResponseEnvelope
		err  error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		resp, err := h.Handle(ctx, req)
		ch <- outcome{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Warn().Str("domain", string(dom)).Msg("handler timed out")
		return errorEnvelope()
	case out := <-ch:
		if out.err != nil {
			log.Error().Err(out.err).Str("domain", string(dom)).Msg("handler failed")
			return errorEnvelope()
		}
		return normalize(out.resp)
	}
}

// normalize fills defaults so downstream logic always sees a complete
// envelope, even from a minimal handler.
func normalize(resp domain.ResponseEnvelope) domain.ResponseEnvelope {
	if resp.Status == "" {
		resp.Status = domain.HandlerInProgress
	}
	if resp.Confidence == 0 {
		resp.Confidence = 0.7
	}
	if resp.ResponseText == "" && resp.Status == domain.HandlerError {
		resp.ResponseText = handlerErrorText
	}
	return resp
}

func errorEnvelope() domain.ResponseEnvelope {
	return domain.ResponseEnvelope{
		ResponseText:  handlerErrorText,
		SuggestedNext: domain.DomainHuman,
		Status:        domain.HandlerError,
	}
}
