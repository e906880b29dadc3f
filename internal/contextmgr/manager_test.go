package contextmgr

import (
	"context"
	"testing"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/stretchr/testify/assert"
)

const sid = "sess_1_deadbeef"

func TestManager_UpdateAndGet(t *testing.T) {
	m := NewManager(nil)

	t.Run("whitelisted keys promote to shared", func(t *testing.T) {
		m.Update(sid, domain.DomainAppointment, map[string]any{
			"patient_name": "John Smith",
			"slot_options": []string{"9:00", "10:00"},
		})

		// Another domain sees the promoted key but not private state.
		view := m.Get(sid, domain.DomainMedical)
		assert.Equal(t, "John Smith", view["patient_name"])
		assert.NotContains(t, view, "slot_options")
	})

	t.Run("private state wins on collision", func(t *testing.T) {
		m.Update(sid, domain.DomainMedical, map[string]any{
			"patient_name": "J. Smith (verified)",
		})

		medView := m.Get(sid, domain.DomainMedical)
		assert.Equal(t, "J. Smith (verified)", medView["patient_name"])

		// The private override also re-promotes, so appointment sees the
		// newest shared value.
		apptView := m.Get(sid, domain.DomainAppointment)
		assert.Equal(t, "J. Smith (verified)", apptView["patient_name"])
	})

	t.Run("get is idempotent", func(t *testing.T) {
		a := m.Get(sid, domain.DomainMedical)
		b := m.Get(sid, domain.DomainMedical)
		assert.Equal(t, a, b)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		view := m.Get(sid, domain.DomainMedical)
		view["patient_name"] = "tampered"
		assert.NotEqual(t, "tampered", m.Get(sid, domain.DomainMedical)["patient_name"])
	})

	t.Run("key aliases promote to canonical shared names", func(t *testing.T) {
		m.Update(sid, domain.DomainMedical, map[string]any{
			"symptoms":  []string{"fever", "cough"},
			"diagnosis": "influenza",
		})
		view := m.Get(sid, domain.DomainGeneral)
		assert.Equal(t, []string{"fever", "cough"}, view["reported_symptoms"])
		assert.Equal(t, "influenza", view["current_diagnosis"])
	})
}

func TestManager_Entities(t *testing.T) {
	m := NewManager(nil)

	m.Update(sid, domain.DomainMedical, map[string]any{
		"symptoms": []string{"fever", "cough"},
	})
	m.AddEntity(sid, "symptom", "fever", 0.5, domain.DomainMedical)

	types := m.EntityTypes(sid)
	assert.Contains(t, types, "symptom")

	// Duplicate value keeps the higher confidence, so weight is unchanged.
	assert.Equal(t, 2.0, m.EntityWeight(sid, "symptom"))

	m.AddEntity(sid, "doctor", "Dr. Chen", 1.0, domain.DomainAppointment)
	assert.Equal(t, 1.0, m.EntityWeight(sid, "doctor"))
	assert.Equal(t, 0.0, m.EntityWeight(sid, "location"))
}

func TestManager_ClearPreservesTranscript(t *testing.T) {
	m := NewManager(nil)

	m.AppendTurn(sid, domain.Turn{Role: domain.RoleUser, Content: "hello"})
	m.Update(sid, domain.DomainGeneral, map[string]any{"patient_id": "p42"})

	m.ClearAll(sid)

	assert.Empty(t, m.Get(sid, domain.DomainGeneral))
	history := m.RecentHistory(sid, 10)
	assert.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

func TestManager_ClearDomain(t *testing.T) {
	m := NewManager(nil)

	m.Update(sid, domain.DomainAppointment, map[string]any{"slot_options": "9:00"})
	m.Update(sid, domain.DomainMedical, map[string]any{"working_theory": "cold"})

	m.ClearDomain(sid, domain.DomainAppointment)

	assert.NotContains(t, m.Get(sid, domain.DomainAppointment), "slot_options")
	assert.Equal(t, "cold", m.Get(sid, domain.DomainMedical)["working_theory"])
}

func TestManager_Handoffs(t *testing.T) {
	m := NewManager(nil)

	m.RecordHandoff(sid, domain.DomainGeneral, domain.DomainMedical, "symptoms mentioned")
	m.RecordHandoff(sid, domain.DomainMedical, domain.DomainAppointment, "booking requested")

	assert.Equal(t, 2, m.HandoffCount(sid))
	assert.Equal(t, []domain.Domain{domain.DomainGeneral, domain.DomainMedical}, m.RecentDomains(sid, 5))
	assert.Equal(t, []domain.Domain{domain.DomainMedical}, m.RecentDomains(sid, 1))

	// Handoffs leave synthetic system turns in the transcript.
	history := m.RecentHistory(sid, 10)
	assert.Len(t, history, 2)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Contains(t, history[1].Content, "medical -> appointment")
}

func TestManager_SnapshotRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	assert.NoError(t, err)

	ctx := context.Background()
	m := NewManager(store)
	m.Update(sid, domain.DomainAppointment, map[string]any{
		"patient_name": "Ada",
		"slot_options": "9:00",
	})
	assert.NoError(t, m.SaveState(ctx, sid))

	// A fresh manager with the same store hydrates the session.
	m2 := NewManager(store)
	assert.NoError(t, m2.LoadState(ctx, sid))

	view := m2.Get(sid, domain.DomainAppointment)
	assert.Equal(t, "Ada", view["patient_name"])
	assert.Equal(t, "9:00", view["slot_options"])

	t.Run("missing snapshot is a cold start", func(t *testing.T) {
		m3 := NewManager(store)
		assert.NoError(t, m3.LoadState(ctx, "sess_2_unknown"))
		assert.Empty(t, m3.Get("sess_2_unknown", domain.DomainGeneral))
	})

	t.Run("release deletes the snapshot", func(t *testing.T) {
		m2.ReleaseAll(ctx, []string{sid})
		snap, err := store.Load(ctx, sid)
		assert.NoError(t, err)
		assert.Nil(t, snap)
	})
}
