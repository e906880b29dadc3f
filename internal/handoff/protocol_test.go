package handoff

import (
	"testing"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/stretchr/testify/assert"
)

// fakeContext is a ContextView with scripted answers.
type fakeContext struct {
	handoffs int
	recent   []domain.Domain
	entities map[string]float64

	recorded []string
}

func (f *fakeContext) HandoffCount(string) int { return f.handoffs }

func (f *fakeContext) RecentDomains(_ string, n int) []domain.Domain {
	if n <= 0 || n > len(f.recent) {
		n = len(f.recent)
	}
	return f.recent[len(f.recent)-n:]
}

func (f *fakeContext) EntityTypes(string) []string {
	types := make([]string, 0, len(f.entities))
	for t := range f.entities {
		types = append(types, t)
	}
	return types
}

func (f *fakeContext) EntityWeight(_ string, entityType string) float64 {
	return f.entities[entityType]
}

func (f *fakeContext) RecordHandoff(_ string, from, to domain.Domain, _ string) {
	f.recorded = append(f.recorded, string(from)+"->"+string(to))
}

func TestValidator_Loop(t *testing.T) {
	fc := &fakeContext{
		handoffs: 3,
		recent:   []domain.Domain{domain.DomainAppointment, domain.DomainMedical, domain.DomainGeneral},
	}
	v := NewValidator(fc)

	t.Run("shuttling between recent domains is rejected", func(t *testing.T) {
		dec := v.Validate("s", domain.DomainMedical, domain.DomainAppointment)
		assert.False(t, dec.Valid)
		assert.Contains(t, dec.Reason, "loop")
	})

	t.Run("under three handoffs the loop rule is off", func(t *testing.T) {
		fc2 := &fakeContext{
			handoffs: 2,
			recent:   []domain.Domain{domain.DomainAppointment},
		}
		dec := NewValidator(fc2).Validate("s", domain.DomainMedical, domain.DomainGeneral)
		assert.True(t, dec.Valid)
	})
}

func TestValidator_Bounce(t *testing.T) {
	fc := &fakeContext{recent: []domain.Domain{domain.DomainMedical}}
	v := NewValidator(fc)

	dec := v.Validate("s", domain.DomainAppointment, domain.DomainMedical)
	assert.False(t, dec.Valid)
	assert.Contains(t, dec.Reason, "previous domain")

	dec = v.Validate("s", domain.DomainAppointment, domain.DomainGeneral)
	assert.True(t, dec.Valid)
}

func TestValidator_EntityAffinity(t *testing.T) {
	t.Run("strong medical entities pin the conversation", func(t *testing.T) {
		fc := &fakeContext{entities: map[string]float64{"symptom": 2.0}}
		dec := NewValidator(fc).Validate("s", domain.DomainMedical, domain.DomainGeneral)
		assert.False(t, dec.Valid)
		assert.Contains(t, dec.Reason, "medical")
	})

	t.Run("weak medical entities do not pin", func(t *testing.T) {
		fc := &fakeContext{entities: map[string]float64{"symptom": 1.0}}
		dec := NewValidator(fc).Validate("s", domain.DomainMedical, domain.DomainGeneral)
		assert.True(t, dec.Valid)
	})

	t.Run("appointment entities pin at a lower threshold", func(t *testing.T) {
		fc := &fakeContext{entities: map[string]float64{"date": 1.0}}
		dec := NewValidator(fc).Validate("s", domain.DomainAppointment, domain.DomainMedical)
		assert.False(t, dec.Valid)
	})

	t.Run("moving toward the owner is always fine", func(t *testing.T) {
		fc := &fakeContext{entities: map[string]float64{"symptom": 5.0}}
		dec := NewValidator(fc).Validate("s", domain.DomainGeneral, domain.DomainMedical)
		assert.True(t, dec.Valid)
	})
}

func TestMatrix(t *testing.T) {
	m := NewMatrix()

	assert.True(t, m.CanHandoff(domain.DomainAppointment, domain.DomainMedical))
	assert.False(t, m.CanHandoff(domain.DomainAppointment, domain.DomainHuman))

	msg := m.TransitionMessage(domain.DomainGeneral, domain.DomainMedical)
	assert.Contains(t, msg, "medical specialist")

	m.Remove(domain.DomainAppointment, domain.DomainMedical)
	assert.False(t, m.CanHandoff(domain.DomainAppointment, domain.DomainMedical))
	assert.True(t, m.CanHandoff(domain.DomainAppointment, domain.DomainGeneral))

	// Unmapped pairs fall back to the generic message.
	assert.Equal(t, genericTransition, m.TransitionMessage(domain.DomainHuman, domain.DomainGeneral))
}

func TestAnalytics_Prune(t *testing.T) {
	a := NewAnalytics()
	m := NewMatrix()

	t.Run("too few samples never prunes", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			a.Track(domain.DomainGeneral, domain.DomainMedical, 0, time.Second)
		}
		assert.Empty(t, a.BadPairs())
		a.Prune(m)
		assert.True(t, m.CanHandoff(domain.DomainGeneral, domain.DomainMedical))
	})

	t.Run("sustained failure prunes the pair", func(t *testing.T) {
		a.Track(domain.DomainGeneral, domain.DomainMedical, 0, time.Second)
		bad := a.BadPairs()
		assert.Len(t, bad, 1)
		assert.Equal(t, 5, bad[0].Samples)

		a.Prune(m)
		assert.False(t, m.CanHandoff(domain.DomainGeneral, domain.DomainMedical))

		// Pruned pairs are not reported again.
		assert.Empty(t, a.BadPairs())
	})

	t.Run("healthy pairs are untouched", func(t *testing.T) {
		for i := 0; i < 6; i++ {
			a.Track(domain.DomainMedical, domain.DomainAppointment, 1, time.Second)
		}
		a.Prune(m)
		assert.True(t, m.CanHandoff(domain.DomainMedical, domain.DomainAppointment))
	})
}

func TestProtocol_Execute(t *testing.T) {
	t.Run("valid handoff executes and records", func(t *testing.T) {
		fc := &fakeContext{}
		p := NewProtocol(fc, 0.6)

		res := p.Execute("s", domain.DomainGeneral, domain.DomainMedical, "health question", fc)
		assert.True(t, res.Executed)
		assert.Equal(t, domain.DomainMedical, res.Target)
		assert.Contains(t, res.Message, "medical specialist")
		assert.Equal(t, []string{"general->medical"}, fc.recorded)
	})

	t.Run("rejected handoff falls back to an alternative", func(t *testing.T) {
		// Bounce: medical was just visited, so general->medical is invalid.
		fc := &fakeContext{recent: []domain.Domain{domain.DomainMedical}}
		p := NewProtocol(fc, 0.6)

		res := p.Execute("s", domain.DomainGeneral, domain.DomainMedical, "still unsure", fc)
		assert.True(t, res.Executed)
		assert.Equal(t, domain.DomainAppointment, res.Target)
		assert.Contains(t, res.Reason, "alternative target")
	})

	t.Run("no surviving target stays put", func(t *testing.T) {
		// Loop rule kills both remaining targets.
		fc := &fakeContext{
			handoffs: 4,
			recent:   []domain.Domain{domain.DomainMedical, domain.DomainAppointment, domain.DomainGeneral},
		}
		p := NewProtocol(fc, 0.6)

		res := p.Execute("s", domain.DomainGeneral, domain.DomainMedical, "looping", fc)
		assert.False(t, res.Executed)
		assert.Equal(t, domain.DomainGeneral, res.Target)
		assert.Empty(t, fc.recorded)
	})
}

func TestProtocol_CheckNeeded(t *testing.T) {
	fc := &fakeContext{}
	p := NewProtocol(fc, 0.6)

	t.Run("suggested next triggers", func(t *testing.T) {
		needed, target, conf := p.CheckNeeded("s", domain.DomainMedical, "book it please", domain.ResponseEnvelope{
			ResponseText:  "you should see a doctor",
			SuggestedNext: domain.DomainAppointment,
			Confidence:    0.9,
			Status:        domain.HandlerInProgress,
		})
		assert.True(t, needed)
		assert.Equal(t, domain.DomainAppointment, target)
		assert.Equal(t, 0.9, conf)
	})

	t.Run("low confidence triggers a rescore", func(t *testing.T) {
		needed, target, _ := p.CheckNeeded("s", domain.DomainGeneral, "I have a fever and a headache", domain.ResponseEnvelope{
			ResponseText: "not sure",
			Confidence:   0.4,
			Status:       domain.HandlerInProgress,
		})
		assert.True(t, needed)
		assert.Equal(t, domain.DomainMedical, target)
	})

	t.Run("explicit transfer request triggers", func(t *testing.T) {
		needed, target, conf := p.CheckNeeded("s", domain.DomainGeneral, "transfer me, I need an appointment", domain.ResponseEnvelope{
			ResponseText: "our hours are 10-8",
			Confidence:   0.9,
			Status:       domain.HandlerResolved,
		})
		assert.True(t, needed)
		assert.Equal(t, domain.DomainAppointment, target)
		assert.Equal(t, 0.8, conf)
	})

	t.Run("confident resolved response does not trigger", func(t *testing.T) {
		needed, _, _ := p.CheckNeeded("s", domain.DomainGeneral, "what are your visiting hours", domain.ResponseEnvelope{
			ResponseText: "10 AM to 8 PM",
			Confidence:   0.9,
			Status:       domain.HandlerResolved,
		})
		assert.False(t, needed)
	})
}
