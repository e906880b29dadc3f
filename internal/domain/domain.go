package domain

import "fmt"

// Domain identifies one specialized query-handling area.
type Domain string

const (
	DomainAppointment Domain = "appointment"
	DomainMedical     Domain = "medical"
	DomainGeneral     Domain = "general"

	// DomainHuman is the escalation target for emergencies and handler
	// failures. It is never dispatched to a handler.
	DomainHuman Domain = "human"

	// DomainClarify is returned for empty or unintelligible queries. The
	// router answers it directly with a clarification prompt.
	DomainClarify Domain = "clarify"
)

// HandlerDomains lists the domains that must have a registered handler.
func HandlerDomains() []Domain {
	return []Domain{DomainAppointment, DomainMedical, DomainGeneral}
}

// IsDispatchable reports whether queries for d are sent to a domain handler.
func (d Domain) IsDispatchable() bool {
	switch d {
	case DomainAppointment, DomainMedical, DomainGeneral:
		return true
	}
	return false
}

// ParseDomain validates a raw domain label (e.g. from the oracle).
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainAppointment, DomainMedical, DomainGeneral, DomainHuman:
		return Domain(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}
