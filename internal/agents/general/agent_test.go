package general

import (
	"context"
	"testing"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/stretchr/testify/assert"
)

func handle(t *testing.T, text string) domain.ResponseEnvelope {
	t.Helper()
	resp, err := New().Handle(context.Background(), domain.RequestEnvelope{Text: text})
	assert.NoError(t, err)
	return resp
}

func TestAgent_Domain(t *testing.T) {
	assert.Equal(t, domain.DomainGeneral, New().Domain())
}

func TestAgent_Handle(t *testing.T) {
	t.Run("visiting hours", func(t *testing.T) {
		resp := handle(t, "What are your visiting hours?")
		assert.Equal(t, domain.HandlerResolved, resp.Status)
		assert.Contains(t, resp.ResponseText, "10 AM to 8 PM")
		assert.Equal(t, "visiting hours", resp.ContextUpdates["policy_topic"])
	})

	t.Run("phrase match beats single keyword overlap", func(t *testing.T) {
		// "visiting hours" as a phrase outscores the billing doc even if a
		// stray billing word appears.
		resp := handle(t, "do visiting hours cost anything")
		assert.Equal(t, "visiting hours", resp.ContextUpdates["policy_topic"])
	})

	t.Run("insurance", func(t *testing.T) {
		resp := handle(t, "Do you accept my insurance plan?")
		assert.Equal(t, domain.HandlerResolved, resp.Status)
		assert.Contains(t, resp.ResponseText, "insurance")
	})

	t.Run("parking", func(t *testing.T) {
		resp := handle(t, "is there a parking garage nearby")
		assert.Contains(t, resp.ResponseText, "garage")
	})

	t.Run("no match comes back low confidence", func(t *testing.T) {
		resp := handle(t, "tell me about the weather")
		assert.Equal(t, domain.HandlerInProgress, resp.Status)
		assert.Equal(t, 0.4, resp.Confidence)
		assert.Empty(t, resp.ContextUpdates)
	})
}
