package general

import (
	"context"
	"strings"

	"github.com/carewire/hospital-router/internal/domain"
)

// faqDoc is one answerable hospital-information topic.
type faqDoc struct {
	topic    string
	keywords []string
	answer   string
}

// Agent answers hospital information questions (hours, directions,
// insurance, billing) from an in-memory FAQ index.
type Agent struct {
	docs []faqDoc
}

// New creates the general information agent with the default FAQ set.
func New() *Agent {
	return &Agent{docs: defaultDocs()}
}

// Domain returns the domain this handler serves.
func (a *Agent) Domain() domain.Domain {
	return domain.DomainGeneral
}

func defaultDocs() []faqDoc {
	return []faqDoc{
		{
			topic:    "visiting hours",
			keywords: []string{"visiting hours", "visit", "visiting", "open", "hours", "when can i"},
			answer:   "General visiting hours are 10 AM to 8 PM daily. The ICU allows visits from 12 PM to 2 PM and 6 PM to 8 PM, immediate family only.",
		},
		{
			topic:    "location",
			keywords: []string{"where", "location", "address", "directions", "how do i get", "find you"},
			answer:   "We're located at 450 Riverside Medical Plaza, with the main entrance on Oak Street. The information desk in the main lobby can direct you to any department.",
		},
		{
			topic:    "parking",
			keywords: []string{"parking", "park", "garage", "valet"},
			answer:   "Visitor parking is in the garage on Oak Street, first hour free. Valet service is available at the main entrance on weekdays from 7 AM to 5 PM.",
		},
		{
			topic:    "insurance",
			keywords: []string{"insurance", "coverage", "covered", "copay", "plan"},
			answer:   "We accept most major insurance plans. Bring your insurance card to your visit, and our billing office can verify your coverage in advance at extension 4100.",
		},
		{
			topic:    "billing",
			keywords: []string{"bill", "billing", "payment", "pay", "invoice", "cost", "price", "charge"},
			answer:   "Billing questions are handled by our billing office, open weekdays 8 AM to 5 PM at extension 4100. Payment plans are available for larger balances.",
		},
		{
			topic:    "pharmacy",
			keywords: []string{"pharmacy", "prescription", "medication pickup", "refill"},
			answer:   "The outpatient pharmacy is on the ground floor next to the main lobby, open 8 AM to 9 PM daily. Refills can be requested by phone at extension 4300.",
		},
		{
			topic:    "medical records",
			keywords: []string{"records", "medical record", "test results", "copy of", "release form"},
			answer:   "Medical records requests go through the Health Information office on the second floor. Bring photo ID; most requests are ready within three business days.",
		},
	}
}

// Handle answers one information question. Unmatched questions come back
// with low confidence so the router can reconsider the routing.
func (a *Agent) Handle(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error) {
	lower := strings.ToLower(req.Text)

	var (
		best      *faqDoc
		bestScore int
	)
	for i := range a.docs {
		score := 0
		for _, kw := range a.docs[i].keywords {
			if strings.Contains(lower, kw) {
				score++
				if strings.ContainsRune(kw, ' ') {
					score++ // phrase matches outweigh single words
				}
			}
		}
		if score > bestScore {
			best, bestScore = &a.docs[i], score
		}
	}

	if best == nil {
		return domain.ResponseEnvelope{
			ResponseText: "I can help with questions about visiting hours, directions, parking, insurance, billing, the pharmacy, or medical records. What would you like to know?",
			Confidence:   0.4,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	return domain.ResponseEnvelope{
		ResponseText: best.answer,
		ContextUpdates: map[string]any{
			"policy_topic": best.topic,
		},
		Confidence: 0.9,
		Status:     domain.HandlerResolved,
	}, nil
}
