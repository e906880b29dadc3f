package appointment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Agent handles scheduling queries against the appointment database:
// finding doctors, checking availability, booking, rescheduling, and
// cancelling.
type Agent struct {
	db *sql.DB
}

// New opens (or creates) the appointment database and ensures its schema
// and seed data.
func New(ctx context.Context, dbPath string) (*Agent, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("appointment database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open appointment database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping appointment database: %w", err)
	}

	a := &Agent{db: db}
	if err := a.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database handle.
func (a *Agent) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

// Domain returns the domain this handler serves.
func (a *Agent) Domain() domain.Domain {
	return domain.DomainAppointment
}

func (a *Agent) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS doctors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			specialty TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doctor_id INTEGER NOT NULL REFERENCES doctors(id),
			slot_time TEXT NOT NULL,
			booked INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			patient_name TEXT NOT NULL,
			doctor_id INTEGER NOT NULL REFERENCES doctors(id),
			slot_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'booked',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return a.seed(ctx)
}

func (a *Agent) seed(ctx context.Context) error {
	var count int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM doctors").Scan(&count); err != nil {
		return fmt.Errorf("failed to count doctors: %w", err)
	}
	if count > 0 {
		return nil
	}

	doctors := []struct{ name, specialty string }{
		{"Dr. Sarah Chen", "cardiology"},
		{"Dr. James Wilson", "general practice"},
		{"Dr. Maria Garcia", "pediatrics"},
		{"Dr. Robert Kim", "dermatology"},
		{"Dr. Emily Patel", "internal medicine"},
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, d := range doctors {
		res, err := tx.ExecContext(ctx, "INSERT INTO doctors (name, specialty) VALUES (?, ?)", d.name, d.specialty)
		if err != nil {
			return fmt.Errorf("failed to seed doctor: %w", err)
		}
		doctorID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read doctor id: %w", err)
		}

		// A week of weekday slots, morning and afternoon.
		day := time.Now().Truncate(24 * time.Hour)
		for offset := 1; offset <= 7; offset++ {
			d := day.AddDate(0, 0, offset)
			if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
				continue
			}
			for _, hour := range []int{9, 10, 11, 14, 15, 16} {
				slot := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.Local)
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO slots (doctor_id, slot_time) VALUES (?, ?)",
					doctorID, slot.Format(time.RFC3339),
				); err != nil {
					return fmt.Errorf("failed to seed slot: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	log.Info().Int("doctors", len(doctors)).Msg("seeded appointment database")
	return nil
}

// Handle processes one scheduling request.
func (a *Agent) Handle(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error) {
	lower := strings.ToLower(req.Text)

	switch {
	case strings.Contains(lower, "cancel"):
		return a.cancel(ctx, req)
	case strings.Contains(lower, "reschedule") || strings.Contains(lower, "change my appointment") || strings.Contains(lower, "move my appointment"):
		return a.reschedule(ctx, req)
	case strings.Contains(lower, "which doctor") || strings.Contains(lower, "what doctors") || strings.Contains(lower, "list") || strings.Contains(lower, "who can i see"):
		return a.listDoctors(ctx)
	default:
		return a.book(ctx, req)
	}
}

type doctor struct {
	id        int64
	name      string
	specialty string
}

func (a *Agent) doctors(ctx context.Context) ([]doctor, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT id, name, specialty FROM doctors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	defer rows.Close()

	var out []doctor
	for rows.Next() {
		var d doctor
		if err := rows.Scan(&d.id, &d.name, &d.specialty); err != nil {
			return nil, fmt.Errorf("failed to scan doctor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// matchDoctor fuzzily matches a doctor mentioned in the utterance by name
// or specialty. Tolerates misspellings like "dr gracia".
func (a *Agent) matchDoctor(ctx context.Context, lower string) (*doctor, error) {
	docs, err := a.doctors(ctx)
	if err != nil {
		return nil, err
	}

	var (
		best      *doctor
		bestScore float64
	)
	tokens := strings.Fields(strings.Trim(lower, ".,!?"))
	for i := range docs {
		d := docs[i]
		surname := strings.ToLower(d.name[strings.LastIndex(d.name, " ")+1:])
		if strings.Contains(lower, strings.ToLower(d.name)) || strings.Contains(lower, surname) {
			return &d, nil
		}
		if strings.Contains(lower, d.specialty) {
			if bestScore < 0.9 {
				best, bestScore = &docs[i], 0.9
			}
			continue
		}
		for _, tok := range tokens {
			tok = strings.Trim(tok, ".,!?")
			if len(tok) < 4 {
				continue
			}
			s := similarity(tok, surname)
			if s >= 0.75 && s > bestScore {
				best, bestScore = &docs[i], s
			}
		}
	}
	return best, nil
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

func (a *Agent) listDoctors(ctx context.Context) (domain.ResponseEnvelope, error) {
	docs, err := a.doctors(ctx)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}

	var b strings.Builder
	b.WriteString("Here are our available doctors: ")
	for i, d := range docs {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s (%s)", d.name, d.specialty)
	}
	b.WriteString(". Would you like me to book an appointment with one of them?")

	return domain.ResponseEnvelope{
		ResponseText: b.String(),
		Confidence:   0.9,
		Status:       domain.HandlerInProgress,
	}, nil
}

func (a *Agent) book(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error) {
	lower := strings.ToLower(req.Text)

	patient, _ := req.Context["patient_name"].(string)
	if patient == "" {
		return domain.ResponseEnvelope{
			ResponseText: "I can help you book an appointment. Could I have your full name first?",
			Confidence:   0.9,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	doc, err := a.matchDoctor(ctx, lower)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}
	if doc == nil {
		// No doctor named; default to general practice.
		docs, err := a.doctors(ctx)
		if err != nil {
			return domain.ResponseEnvelope{}, err
		}
		for i := range docs {
			if docs[i].specialty == "general practice" {
				doc = &docs[i]
				break
			}
		}
		if doc == nil && len(docs) > 0 {
			doc = &docs[0]
		}
	}
	if doc == nil {
		return domain.ResponseEnvelope{
			ResponseText: "I couldn't find a doctor matching that request. Could you tell me which doctor or specialty you need?",
			Confidence:   0.6,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	slotTime, err := a.bookNextSlot(ctx, doc.id, patient)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}
	if slotTime == "" {
		return domain.ResponseEnvelope{
			ResponseText: fmt.Sprintf("%s has no open slots this week. Would you like to see a different doctor?", doc.name),
			Confidence:   0.8,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	when, _ := time.Parse(time.RFC3339, slotTime)
	return domain.ResponseEnvelope{
		ResponseText: fmt.Sprintf("You're booked with %s on %s. Is there anything else I can help you with?",
			doc.name, when.Format("Monday, January 2 at 3:04 PM")),
		ContextUpdates: map[string]any{
			"next_appointment": slotTime,
			"doctor_name":      doc.name,
			"department":       doc.specialty,
		},
		Confidence: 0.95,
		Status:     domain.HandlerResolved,
	}, nil
}

// bookNextSlot books the doctor's earliest open slot in one transaction.
// Returns an empty time when nothing is available.
func (a *Agent) bookNextSlot(ctx context.Context, doctorID int64, patient string) (string, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin booking: %w", err)
	}
	defer tx.Rollback()

	var slotID int64
	var slotTime string
	err = tx.QueryRowContext(ctx,
		"SELECT id, slot_time FROM slots WHERE doctor_id = ? AND booked = 0 ORDER BY slot_time LIMIT 1",
		doctorID,
	).Scan(&slotID, &slotTime)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find open slot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE slots SET booked = 1 WHERE id = ?", slotID); err != nil {
		return "", fmt.Errorf("failed to reserve slot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO appointments (patient_name, doctor_id, slot_time) VALUES (?, ?, ?)",
		patient, doctorID, slotTime,
	); err != nil {
		return "", fmt.Errorf("failed to record appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit booking: %w", err)
	}
	return slotTime, nil
}

func (a *Agent) cancel(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error) {
	patient, _ := req.Context["patient_name"].(string)
	if patient == "" {
		return domain.ResponseEnvelope{
			ResponseText: "I can cancel that for you. Could I have your full name to look up the appointment?",
			Confidence:   0.9,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("failed to begin cancellation: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT doctor_id, slot_time FROM appointments
		WHERE patient_name = ? AND status = 'booked'`, patient)
	if err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("failed to look up appointments: %w", err)
	}
	type booking struct {
		doctorID int64
		slotTime string
	}
	var bookings []booking
	for rows.Next() {
		var b booking
		if err := rows.Scan(&b.doctorID, &b.slotTime); err != nil {
			rows.Close()
			return domain.ResponseEnvelope{}, fmt.Errorf("failed to scan appointment: %w", err)
		}
		bookings = append(bookings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("failed to read appointments: %w", err)
	}

	if len(bookings) == 0 {
		return domain.ResponseEnvelope{
			ResponseText: fmt.Sprintf("I don't see any upcoming appointments for %s. Would you like to book one?", patient),
			Confidence:   0.8,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	// Cancelled slots go back into the pool, otherwise capacity leaks and
	// a reschedule would consume two slots.
	for _, b := range bookings {
		if _, err := tx.ExecContext(ctx,
			"UPDATE slots SET booked = 0 WHERE doctor_id = ? AND slot_time = ?",
			b.doctorID, b.slotTime,
		); err != nil {
			return domain.ResponseEnvelope{}, fmt.Errorf("failed to release slot: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE appointments SET status = 'cancelled'
		WHERE patient_name = ? AND status = 'booked'`, patient); err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	return domain.ResponseEnvelope{
		ResponseText: "Your appointment has been cancelled. Is there anything else I can help you with?",
		ContextUpdates: map[string]any{
			"last_appointment": "cancelled",
		},
		Confidence: 0.95,
		Status:     domain.HandlerResolved,
	}, nil
}

func (a *Agent) reschedule(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error) {
	resp, err := a.cancel(ctx, req)
	if err != nil || resp.Status != domain.HandlerResolved {
		return resp, err
	}
	return a.book(ctx, req)
}
