package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockOracle mocks the oracle.Provider interface
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Name() string { return "mock" }

func (m *MockOracle) IsConfigured() bool { return true }

func (m *MockOracle) ClassifyQuery(ctx context.Context, query string, candidates []string) (*oracle.Result, error) {
	args := m.Called(ctx, query, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oracle.Result), args.Error(1)
}

func newTestClassifier(p oracle.Provider) *Classifier {
	return New(p, 2*time.Second, 0.85)
}

func TestClassifier_FastPath(t *testing.T) {
	mockOracle := new(MockOracle)
	c := newTestClassifier(mockOracle)
	ctx := context.Background()

	t.Run("emergency wins over appointment keywords", func(t *testing.T) {
		res := c.Classify(ctx, "I think I'm having a heart attack, cancel my appointment", "")
		assert.Equal(t, domain.DomainHuman, res.Domain)
		assert.Equal(t, 0.9, res.Confidence)
		assert.Equal(t, domain.MethodKeyword, res.Method)
	})

	t.Run("appointment keyword", func(t *testing.T) {
		res := c.Classify(ctx, "I want to book an appointment", "")
		assert.Equal(t, domain.DomainAppointment, res.Domain)
		assert.Equal(t, domain.MethodKeyword, res.Method)
	})

	t.Run("medical pattern", func(t *testing.T) {
		res := c.Classify(ctx, "what should I do for a sprained ankle", "")
		assert.Equal(t, domain.DomainMedical, res.Domain)
		assert.Equal(t, domain.MethodRegex, res.Method)
	})

	t.Run("general keyword", func(t *testing.T) {
		res := c.Classify(ctx, "what are your visiting hours", "")
		assert.Equal(t, domain.DomainGeneral, res.Domain)
	})

	// Fast path must never consult the oracle.
	mockOracle.AssertNotCalled(t, "ClassifyQuery", mock.Anything, mock.Anything, mock.Anything)
}

func TestClassifier_Continuation(t *testing.T) {
	c := newTestClassifier(nil)
	ctx := context.Background()

	t.Run("short follow-up stays with active domain", func(t *testing.T) {
		res := c.Classify(ctx, "yes", domain.DomainAppointment)
		assert.Equal(t, domain.DomainAppointment, res.Domain)
		assert.Equal(t, 1.0, res.Confidence)
		assert.Equal(t, domain.MethodContinuation, res.Method)
	})

	t.Run("follow-up without active domain is classified", func(t *testing.T) {
		res := c.Classify(ctx, "yes", "")
		assert.NotEqual(t, domain.MethodContinuation, res.Method)
	})

	t.Run("continuation runs before emergency scan", func(t *testing.T) {
		// "ok" is a follow-up even though a longer query would hit lexicons.
		res := c.Classify(ctx, "ok", domain.DomainMedical)
		assert.Equal(t, domain.DomainMedical, res.Domain)
		assert.Equal(t, domain.MethodContinuation, res.Method)
	})
}

func TestClassifier_Fuzzy(t *testing.T) {
	c := newTestClassifier(nil)
	ctx := context.Background()

	t.Run("misspelled appointment", func(t *testing.T) {
		res := c.Classify(ctx, "I need an apointment", "")
		assert.Equal(t, domain.DomainAppointment, res.Domain)
		assert.Equal(t, domain.MethodFuzzy, res.Method)
		assert.GreaterOrEqual(t, res.Confidence, 0.85)
	})

	t.Run("misspelled insurance", func(t *testing.T) {
		res := c.Classify(ctx, "do you take my insurence", "")
		assert.Equal(t, domain.DomainGeneral, res.Domain)
		assert.Equal(t, domain.MethodFuzzy, res.Method)
	})
}

func TestClassifier_Empty(t *testing.T) {
	c := newTestClassifier(nil)

	res := c.Classify(context.Background(), "   ", "")
	assert.Equal(t, domain.DomainClarify, res.Domain)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestClassifier_Oracle(t *testing.T) {
	ctx := context.Background()
	// No lexicon or fuzzy hit anywhere in this utterance.
	query := "I have a question please"

	t.Run("oracle verdict is used", func(t *testing.T) {
		mockOracle := new(MockOracle)
		mockOracle.On("ClassifyQuery", mock.Anything, query, mock.Anything).
			Return(&oracle.Result{Domain: "medical", Confidence: 0.8}, nil).Once()

		c := newTestClassifier(mockOracle)
		res := c.Classify(ctx, query, "")
		assert.Equal(t, domain.DomainMedical, res.Domain)
		assert.Equal(t, 0.8, res.Confidence)
		assert.Equal(t, domain.MethodOracle, res.Method)
		mockOracle.AssertExpectations(t)
	})

	t.Run("oracle failure degrades to general", func(t *testing.T) {
		mockOracle := new(MockOracle)
		mockOracle.On("ClassifyQuery", mock.Anything, query, mock.Anything).
			Return(nil, errors.New("quota exceeded")).Once()

		c := newTestClassifier(mockOracle)
		res := c.Classify(ctx, query, "")
		assert.Equal(t, domain.DomainGeneral, res.Domain)
		assert.Equal(t, 0.6, res.Confidence)
		assert.Equal(t, domain.MethodFallback, res.Method)
	})

	t.Run("nil oracle degrades to general", func(t *testing.T) {
		c := newTestClassifier(nil)
		res := c.Classify(ctx, query, "")
		assert.Equal(t, domain.DomainGeneral, res.Domain)
		assert.Equal(t, domain.MethodFallback, res.Method)
	})
}

func TestClassifier_Stats(t *testing.T) {
	c := newTestClassifier(nil)
	ctx := context.Background()

	c.Classify(ctx, "book an appointment", "")
	c.Classify(ctx, "I need an apointment", "")
	c.Classify(ctx, "I have a question please", "")

	stats := c.Snapshot()
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.FastPath)
	assert.Equal(t, int64(1), stats.FuzzyPath)
	assert.Equal(t, int64(0), stats.OraclePath)
}

func TestIsTransferRequest(t *testing.T) {
	assert.True(t, IsTransferRequest("Can you transfer me to billing?"))
	assert.True(t, IsTransferRequest("I want to talk to someone else"))
	assert.False(t, IsTransferRequest("book me an appointment"))
}

func TestRescore(t *testing.T) {
	t.Run("excludes current domain", func(t *testing.T) {
		d, score := Rescore("I need to book an appointment with a doctor", nil, domain.DomainAppointment)
		assert.NotEqual(t, domain.DomainAppointment, d)
		assert.GreaterOrEqual(t, score, 0.0)
	})

	t.Run("entity affinity boosts owner", func(t *testing.T) {
		d, score := Rescore("it still hurts", []string{"symptom"}, domain.DomainGeneral)
		assert.Equal(t, domain.DomainMedical, d)
		assert.Greater(t, score, 0.0)
	})
}

func TestEntityAffinity(t *testing.T) {
	d, ok := EntityAffinity("doctor")
	assert.True(t, ok)
	assert.Equal(t, domain.DomainAppointment, d)

	_, ok = EntityAffinity("favorite_color")
	assert.False(t, ok)
}
