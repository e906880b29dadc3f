package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStore_GetOrCreate(t *testing.T) {
	s := NewStore(15*time.Minute, 5*time.Minute)

	t.Run("empty id mints a fresh session", func(t *testing.T) {
		sess, created := s.GetOrCreate("", "hello")
		assert.True(t, created)
		assert.NotEmpty(t, sess.ID)
		assert.Equal(t, domain.StatusInactive, sess.Status)
		assert.Regexp(t, `^sess_\d+_[0-9a-f]{8}$`, sess.ID)
	})

	t.Run("known id returns the same session", func(t *testing.T) {
		first, _ := s.GetOrCreate("", "hello")
		second, created := s.GetOrCreate(first.ID, "hello again")
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("unknown id silently starts fresh", func(t *testing.T) {
		sess, created := s.GetOrCreate("sess_404_deadbeef", "hello")
		assert.True(t, created)
		assert.NotEqual(t, "sess_404_deadbeef", sess.ID)
	})
}

func TestStore_Transitions(t *testing.T) {
	s := NewStore(15*time.Minute, 5*time.Minute)
	sess, _ := s.GetOrCreate("", "q")

	t.Run("inactive to active", func(t *testing.T) {
		assert.NoError(t, s.Update(sess.ID, domain.DomainMedical, domain.StatusActive))
	})

	t.Run("active to resolved", func(t *testing.T) {
		assert.NoError(t, s.Update(sess.ID, domain.DomainMedical, domain.StatusResolved))
	})

	t.Run("resolved back to active for a new query", func(t *testing.T) {
		assert.NoError(t, s.Update(sess.ID, domain.DomainGeneral, domain.StatusActive))
	})

	t.Run("active to inactive is rejected", func(t *testing.T) {
		err := s.Update(sess.ID, domain.DomainGeneral, domain.StatusInactive)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("same status is a no-op transition", func(t *testing.T) {
		assert.NoError(t, s.Update(sess.ID, domain.DomainGeneral, domain.StatusActive))
	})

	t.Run("unknown session", func(t *testing.T) {
		err := s.Update("sess_0_00000000", domain.DomainGeneral, domain.StatusActive)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

// TestStore_RandomTransitionSequences drives sessions through random event
// sequences and checks the store against an independent model of the
// lifecycle: Update succeeds exactly when the transition is legal, a
// rejected update leaves the status untouched, and the session can never
// end up in a state the model does not reach.
func TestStore_RandomTransitionSequences(t *testing.T) {
	statuses := []domain.SessionStatus{
		domain.StatusInactive,
		domain.StatusActive,
		domain.StatusResolved,
		domain.StatusError,
	}
	legal := map[domain.SessionStatus][]domain.SessionStatus{
		domain.StatusInactive: {domain.StatusActive},
		domain.StatusActive:   {domain.StatusResolved, domain.StatusError},
		domain.StatusResolved: {domain.StatusActive, domain.StatusInactive},
		domain.StatusError:    {domain.StatusActive, domain.StatusInactive},
	}
	allows := func(from, to domain.SessionStatus) bool {
		if from == to {
			return true
		}
		for _, next := range legal[from] {
			if next == to {
				return true
			}
		}
		return false
	}

	rng := rand.New(rand.NewSource(42))
	s := NewStore(15*time.Minute, 5*time.Minute)

	for seq := 0; seq < 50; seq++ {
		sess, _ := s.GetOrCreate("", "q")
		expected := domain.StatusInactive

		for step := 0; step < 40; step++ {
			next := statuses[rng.Intn(len(statuses))]
			err := s.Update(sess.ID, domain.DomainGeneral, next)
			if allows(expected, next) {
				assert.NoError(t, err, "seq %d step %d: %s -> %s", seq, step, expected, next)
				expected = next
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidTransition, "seq %d step %d: %s -> %s", seq, step, expected, next)
			}

			got, getErr := s.Get(sess.ID)
			assert.NoError(t, getErr)
			assert.Equal(t, expected, got.Status, "seq %d step %d", seq, step)
		}
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(15*time.Minute, 5*time.Minute)
	sess, _ := s.GetOrCreate("", "q")
	assert.NoError(t, s.Update(sess.ID, domain.DomainMedical, domain.StatusActive))

	assert.NoError(t, s.Clear(sess.ID))

	got, err := s.Get(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, got.Status)
	assert.Empty(t, got.CurrentDomain)
}

func TestStore_Sweep(t *testing.T) {
	s := NewStore(15*time.Minute, 5*time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }

	active, _ := s.GetOrCreate("", "active query")
	assert.NoError(t, s.Update(active.ID, domain.DomainMedical, domain.StatusActive))

	finished, _ := s.GetOrCreate("", "finished query")
	assert.NoError(t, s.Update(finished.ID, domain.DomainGeneral, domain.StatusActive))
	assert.NoError(t, s.Update(finished.ID, domain.DomainGeneral, domain.StatusResolved))

	t.Run("nothing expires immediately", func(t *testing.T) {
		assert.Empty(t, s.Sweep())
	})

	t.Run("finished sessions go at hard cleanup", func(t *testing.T) {
		now = now.Add(6 * time.Minute)
		evicted := s.Sweep()
		assert.Equal(t, []string{finished.ID}, evicted)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("active sessions survive until idle timeout", func(t *testing.T) {
		now = now.Add(10 * time.Minute) // 16 minutes since last activity
		evicted := s.Sweep()
		assert.Equal(t, []string{active.ID}, evicted)
		assert.Equal(t, 0, s.Len())
	})
}

func TestStore_MintID_Distinct(t *testing.T) {
	s := NewStore(0, 0)
	a := s.MintID("query one")
	b := s.MintID("query two")
	assert.NotEqual(t, a, b)
}
