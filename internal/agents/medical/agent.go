package medical

import (
	"context"
	"fmt"
	"strings"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "medical_knowledge"

// entry is one document in the medical knowledge collection.
type entry struct {
	Condition string   `bson:"condition"`
	Symptoms  []string `bson:"symptoms"`
	Advice    string   `bson:"advice"`
	SeeDoctor bool     `bson:"see_doctor"`
}

// Agent answers symptom and condition questions from the medical knowledge
// collection. It gives general guidance only and suggests booking when a
// condition warrants an examination.
type Agent struct {
	col *mongo.Collection
}

// New creates a medical agent over the given database and seeds the
// knowledge collection if it is empty.
func New(ctx context.Context, db *mongo.Database) (*Agent, error) {
	a := &Agent{col: db.Collection(collectionName)}
	if err := a.seed(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Domain returns the domain this handler serves.
func (a *Agent) Domain() domain.Domain {
	return domain.DomainMedical
}

func (a *Agent) seed(ctx context.Context) error {
	count, err := a.col.CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to count knowledge entries: %w", err)
	}
	if count > 0 {
		return nil
	}

	entries := []any{
		entry{
			Condition: "common cold",
			Symptoms:  []string{"cough", "sneeze", "sneezing", "runny nose", "sore throat", "congestion"},
			Advice:    "Rest, stay hydrated, and use over-the-counter remedies for symptom relief. Most colds resolve within a week.",
		},
		entry{
			Condition: "influenza",
			Symptoms:  []string{"fever", "chills", "body ache", "fatigue", "headache"},
			Advice:    "Rest and fluids are important. If the fever stays above 39C for more than two days, you should be examined.",
			SeeDoctor: true,
		},
		entry{
			Condition: "migraine",
			Symptoms:  []string{"headache", "nausea", "light sensitivity", "aura"},
			Advice:    "Rest in a dark, quiet room. Recurring migraines are worth discussing with a doctor to find a treatment plan.",
			SeeDoctor: true,
		},
		entry{
			Condition: "gastroenteritis",
			Symptoms:  []string{"nausea", "vomiting", "diarrhea", "stomach pain", "stomach ache"},
			Advice:    "Small sips of fluid help prevent dehydration. See a doctor if symptoms persist beyond 48 hours.",
			SeeDoctor: true,
		},
		entry{
			Condition: "allergic reaction",
			Symptoms:  []string{"rash", "itching", "hives", "swelling"},
			Advice:    "Antihistamines can relieve mild reactions. Any swelling of the face or throat needs immediate medical attention.",
			SeeDoctor: true,
		},
		entry{
			Condition: "hypertension",
			Symptoms:  []string{"high blood pressure", "dizziness", "blurred vision"},
			Advice:    "Blood pressure concerns should be tracked over time and reviewed with a doctor.",
			SeeDoctor: true,
		},
	}

	if _, err := a.col.InsertMany(ctx, entries); err != nil {
		return fmt.Errorf("failed to seed medical knowledge: %w", err)
	}
	log.Info().Int("entries", len(entries)).Msg("seeded medical knowledge collection")
	return nil
}

// Handle answers one medical question.
func (a *Agent) Handle(ctx context.Context, req domain.RequestEnvelope) (domain.ResponseEnvelope, error) {
	matched, err := a.matchSymptoms(ctx, strings.ToLower(req.Text))
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}

	if len(matched) == 0 {
		return domain.ResponseEnvelope{
			ResponseText: "Could you describe your symptoms in a bit more detail? For example, when they started and how severe they are.",
			Confidence:   0.5,
			Status:       domain.HandlerInProgress,
		}, nil
	}

	entries, err := a.lookup(ctx, matched)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}

	updates := map[string]any{"symptoms": matched}

	if len(entries) == 0 {
		return domain.ResponseEnvelope{
			ResponseText:   "I've noted your symptoms. I don't have specific guidance for that combination, so I'd recommend an examination to be safe. Would you like to book an appointment?",
			ContextUpdates: updates,
			SuggestedNext:  domain.DomainAppointment,
			Confidence:     0.6,
			Status:         domain.HandlerInProgress,
		}, nil
	}

	best := entries[0]
	updates["diagnosis"] = best.Condition

	var b strings.Builder
	fmt.Fprintf(&b, "Based on what you've described, this may be %s. %s", best.Condition, best.Advice)

	resp := domain.ResponseEnvelope{
		ContextUpdates: updates,
		Confidence:     0.85,
		Status:         domain.HandlerResolved,
	}
	if best.SeeDoctor {
		b.WriteString(" Would you like me to book an appointment for you?")
		resp.SuggestedNext = domain.DomainAppointment
		resp.Status = domain.HandlerInProgress
	}
	resp.ResponseText = b.String()
	return resp, nil
}

// matchSymptoms scans the utterance against the symptom vocabulary stored
// in the knowledge collection.
func (a *Agent) matchSymptoms(ctx context.Context, lower string) ([]string, error) {
	values, err := a.col.Distinct(ctx, "symptoms", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to load symptom vocabulary: %w", err)
	}

	var matched []string
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(lower, s) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// lookup returns knowledge entries ranked by how many of the reported
// symptoms they cover.
func (a *Agent) lookup(ctx context.Context, symptoms []string) ([]entry, error) {
	cur, err := a.col.Find(ctx,
		bson.M{"symptoms": bson.M{"$in": symptoms}},
		options.Find().SetLimit(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query medical knowledge: %w", err)
	}
	defer cur.Close(ctx)

	var entries []entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge entries: %w", err)
	}

	// Rank by overlap with the reported symptoms.
	overlap := func(e entry) int {
		n := 0
		for _, s := range e.Symptoms {
			for _, m := range symptoms {
				if s == m {
					n++
				}
			}
		}
		return n
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && overlap(entries[j]) > overlap(entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries, nil
}
