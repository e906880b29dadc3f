package classifier

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/oracle"
	"github.com/rs/zerolog/log"
)

const (
	fastPathConfidence = 0.9
	fallbackConfidence = 0.6
)

// Classifier decides the target domain for an utterance via a tiered
// strategy: continuation check, keyword/regex fast path, fuzzy matching,
// then a single-shot oracle call. It never returns an error; every failure
// degrades to the fallback domain at reduced confidence.
type Classifier struct {
	oracle         oracle.Provider
	oracleTimeout  time.Duration
	fuzzyThreshold float64

	mu         sync.Mutex
	stats      Stats
	totalTimed time.Duration
}

// Stats counts which tiers resolved classifications.
type Stats struct {
	Total      int64   `json:"total"`
	FastPath   int64   `json:"fast_path"`
	FuzzyPath  int64   `json:"fuzzy_path"`
	OraclePath int64   `json:"oracle_path"`
	AvgMs      float64 `json:"avg_ms"`
}

// New creates a classifier backed by the given oracle provider.
func New(p oracle.Provider, oracleTimeout time.Duration, fuzzyThreshold float64) *Classifier {
	if oracleTimeout <= 0 {
		oracleTimeout = 2 * time.Second
	}
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 0.85
	}
	return &Classifier{
		oracle:         p,
		oracleTimeout:  oracleTimeout,
		fuzzyThreshold: fuzzyThreshold,
	}
}

// Classify evaluates the tiers in strict order, first match wins. current
// is the session's active domain, or empty when classifying fresh.
func (c *Classifier) Classify(ctx context.Context, query string, current domain.Domain) domain.ClassificationResult {
	start := time.Now()
	query = strings.TrimSpace(query)

	if query == "" {
		return c.record(domain.ClassificationResult{
			Domain:     domain.DomainClarify,
			Confidence: 1.0,
			Method:     domain.MethodFallback,
			Elapsed:    time.Since(start),
		}, false, false)
	}

	lower := strings.ToLower(query)

	// Tier 1: continuation. A short follow-up stays with the active domain
	// so mid-task exchanges don't flap between handlers.
	if current.IsDispatchable() && isFollowUp(lower) {
		return c.record(domain.ClassificationResult{
			Domain:     current,
			Confidence: 1.0,
			Method:     domain.MethodContinuation,
			Elapsed:    time.Since(start),
		}, true, false)
	}

	// Tier 2: keyword/regex fast path in fixed priority order.
	for _, d := range priorityOrder {
		lex := lexicons[d]
		for _, kw := range lex.keywords {
			if strings.Contains(lower, kw) {
				return c.record(domain.ClassificationResult{
					Domain:     d,
					Confidence: fastPathConfidence,
					Method:     domain.MethodKeyword,
					Elapsed:    time.Since(start),
				}, true, false)
			}
		}
		for _, pat := range lex.patterns {
			if pat.MatchString(lower) {
				return c.record(domain.ClassificationResult{
					Domain:     d,
					Confidence: fastPathConfidence,
					Method:     domain.MethodRegex,
					Elapsed:    time.Since(start),
				}, true, false)
			}
		}
	}

	// Tier 3: fuzzy token similarity against keyword stems. Catches
	// misspellings ("apointment") and morphological variants.
	if d, score, ok := c.fuzzyMatch(lower); ok {
		return c.record(domain.ClassificationResult{
			Domain:     d,
			Confidence: score,
			Method:     domain.MethodFuzzy,
			Elapsed:    time.Since(start),
		}, false, true)
	}

	// Tier 4: oracle fallback.
	return c.record(c.askOracle(ctx, query, start), false, false)
}

func (c *Classifier) fuzzyMatch(lower string) (domain.Domain, float64, bool) {
	var (
		bestDomain domain.Domain
		bestScore  float64
	)
	for _, token := range strings.Fields(lower) {
		token = strings.Trim(token, ".,!?;:'\"")
		if len(token) < 4 {
			continue
		}
		for _, d := range priorityOrder {
			for _, kw := range lexicons[d].keywords {
				if strings.ContainsRune(kw, ' ') {
					continue
				}
				s := similarity(token, kw)
				if s > bestScore {
					bestDomain, bestScore = d, s
				}
			}
		}
	}
	if bestScore >= c.fuzzyThreshold {
		return bestDomain, bestScore, true
	}
	return "", 0, false
}

// similarity is 1 - normalized Levenshtein distance.
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

func (c *Classifier) askOracle(ctx context.Context, query string, start time.Time) domain.ClassificationResult {
	fallback := domain.ClassificationResult{
		Domain:     domain.DomainGeneral,
		Confidence: fallbackConfidence,
		Method:     domain.MethodFallback,
	}

	if c.oracle == nil || !c.oracle.IsConfigured() {
		fallback.Elapsed = time.Since(start)
		return fallback
	}

	candidates := make([]string, 0, len(priorityOrder))
	for _, d := range priorityOrder {
		candidates = append(candidates, string(d))
	}

	ctx, cancel := context.WithTimeout(ctx, c.oracleTimeout)
	defer cancel()

	res, err := c.oracle.ClassifyQuery(ctx, query, candidates)
	if err != nil {
		log.Warn().Err(err).Msg("oracle classification failed, using fallback domain")
		fallback.Elapsed = time.Since(start)
		return fallback
	}

	d, err := domain.ParseDomain(res.Domain)
	if err != nil {
		log.Warn().Str("label", res.Domain).Msg("oracle returned unknown domain, using fallback")
		fallback.Elapsed = time.Since(start)
		return fallback
	}

	return domain.ClassificationResult{
		Domain:     d,
		Confidence: res.Confidence,
		Method:     domain.MethodOracle,
		Elapsed:    time.Since(start),
	}
}

// IsTransferRequest reports whether the utterance explicitly asks to be
// moved to a different department.
func IsTransferRequest(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range transferPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Rescore ranks dispatchable domains for a query by keyword and pattern
// hits, excluding one domain. Used by the handoff protocol when the current
// handler reports low confidence. entityTypes boosts domains that already
// own entities in the conversation.
func Rescore(query string, entityTypes []string, exclude domain.Domain) (domain.Domain, float64) {
	lower := strings.ToLower(query)
	scores := map[domain.Domain]float64{}

	for _, d := range domain.HandlerDomains() {
		lex := lexicons[d]
		for _, kw := range lex.keywords {
			if strings.Contains(lower, kw) {
				scores[d] += 0.2
			}
		}
		for _, pat := range lex.patterns {
			if pat.MatchString(lower) {
				scores[d] += 0.3
			}
		}
	}

	for _, et := range entityTypes {
		if d, ok := entityAffinity[et]; ok {
			scores[d] += 0.3
		}
	}

	// Normalize to max 1.0
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max > 1.0 {
		for d := range scores {
			scores[d] /= max
		}
	}

	delete(scores, exclude)

	best := domain.DomainGeneral
	var bestScore float64
	for _, d := range domain.HandlerDomains() {
		if s, ok := scores[d]; ok && s > bestScore {
			best, bestScore = d, s
		}
	}
	return best, bestScore
}

// entityAffinity maps entity types to the domain that owns them.
var entityAffinity = map[string]domain.Domain{
	"date":      domain.DomainAppointment,
	"time":      domain.DomainAppointment,
	"doctor":    domain.DomainAppointment,
	"symptom":   domain.DomainMedical,
	"disease":   domain.DomainMedical,
	"condition": domain.DomainMedical,
	"policy":    domain.DomainGeneral,
	"location":  domain.DomainGeneral,
	"insurance": domain.DomainGeneral,
}

// EntityAffinity returns the owning domain for an entity type, if any.
func EntityAffinity(entityType string) (domain.Domain, bool) {
	d, ok := entityAffinity[entityType]
	return d, ok
}

func isFollowUp(lower string) bool {
	for _, f := range followUps {
		if lower == f || strings.HasPrefix(lower, f+" ") || strings.HasPrefix(lower, f+",") {
			return true
		}
	}
	return false
}

func (c *Classifier) record(res domain.ClassificationResult, fast, fuzzy bool) domain.ClassificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Total++
	switch {
	case fast:
		c.stats.FastPath++
	case fuzzy:
		c.stats.FuzzyPath++
	case res.Method == domain.MethodOracle:
		c.stats.OraclePath++
	}
	c.totalTimed += res.Elapsed
	return res
}

// Snapshot returns current classification statistics.
func (c *Classifier) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if s.Total > 0 {
		s.AvgMs = float64(c.totalTimed.Milliseconds()) / float64(s.Total)
	}
	return s
}
