package classifier

import (
	"regexp"

	"github.com/carewire/hospital-router/internal/domain"
)

// lexicon holds the fast-path vocabulary for one domain: literal keywords,
// compiled patterns, and the stems used by the fuzzy tier.
type lexicon struct {
	keywords []string
	patterns []*regexp.Regexp
}

// priorityOrder is the fixed scan order for the fast path. Emergency wins
// over everything else.
var priorityOrder = []domain.Domain{
	domain.DomainHuman,
	domain.DomainAppointment,
	domain.DomainMedical,
	domain.DomainGeneral,
}

var lexicons = map[domain.Domain]lexicon{
	domain.DomainHuman: {
		keywords: []string{
			"emergency", "ambulance", "urgent", "help now", "dying",
			"heart attack", "can't breathe", "unconscious", "bleeding badly",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)emergency|urgent|help now|heart attack`),
			regexp.MustCompile(`(?i)call (an )?ambulance`),
		},
	},
	domain.DomainAppointment: {
		keywords: []string{
			"appointment", "schedule", "book", "reschedule", "cancel",
			"doctor", "dr.", "slot", "register", "registration", "checkup",
			"consultation", "availability",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(book|schedule|reschedule|cancel).*appointment`),
			regexp.MustCompile(`(?i)appointment with (dr\.|doctor)`),
			regexp.MustCompile(`(?i)see (a |the )?(dr\.|doctor)`),
			regexp.MustCompile(`(?i)(register|sign up).*patient`),
			regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\b`),
			regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
		},
	},
	domain.DomainMedical: {
		keywords: []string{
			"symptom", "symptoms", "fever", "pain", "headache", "rash",
			"cough", "disease", "treatment", "medication", "diagnosis",
			"migraine", "diabetes", "hypertension", "asthma", "allergy",
			"dizziness", "nausea",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)what should i do for`),
			regexp.MustCompile(`(?i)is .* serious`),
			regexp.MustCompile(`(?i)(treatment|symptoms?|causes?|risks?|complications?) (for|of)`),
			regexp.MustCompile(`(?i)my (child|son|daughter).*fever`),
			regexp.MustCompile(`(?i)how to (treat|prevent|manage|diagnose)`),
			regexp.MustCompile(`(?i)side effects? of`),
		},
	},
	domain.DomainGeneral: {
		keywords: []string{
			"policy", "procedure", "visiting", "hours", "insurance",
			"billing", "payment", "directions", "parking", "location",
			"cafeteria", "gift shop", "wifi", "admission", "visitor",
			"departments",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(visiting|office|clinic) hours`),
			regexp.MustCompile(`(?i)hospital (policy|procedure)`),
			regexp.MustCompile(`(?i)where (is|are) the`),
			regexp.MustCompile(`(?i)how do i (find|pay|get to)`),
			regexp.MustCompile(`(?i)do you (accept|offer|have)`),
		},
	},
}

// followUps are short replies that keep a query with the active domain.
// Matching any of these while a session is mid-task skips re-classification.
var followUps = []string{
	"yes", "no", "ok", "okay", "sure", "yeah", "yep", "nope",
	"that works", "sounds good", "go ahead", "please do", "not that one",
	"thanks", "thank you", "correct", "that's right", "the first one",
	"the second one", "what about", "and also", "change it to",
}

// transferPhrases signal an explicit user request to move elsewhere.
var transferPhrases = []string{
	"talk to someone else",
	"different department",
	"transfer me",
	"speak with a different",
	"i need help with something else",
	"this isn't what i needed",
	"that's not what i asked",
}
