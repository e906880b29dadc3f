package handoff

import (
	"sync"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	// minSamples is how many observations a pair needs before pruning.
	minSamples = 5
	// pruneBelow is the sustained success rate under which a pair is cut.
	pruneBelow = 0.5
)

// PairStats aggregates outcomes for one (source, target) transition.
type PairStats struct {
	Source        domain.Domain `json:"source"`
	Target        domain.Domain `json:"target"`
	Samples       int           `json:"samples"`
	SuccessRate   float64       `json:"success_rate"`
	AvgResolution time.Duration `json:"avg_resolution"`
	Pruned        bool          `json:"pruned"`
}

type pairAccum struct {
	samples   int
	successes float64
	totalTime time.Duration
	pruned    bool
}

// Analytics tracks handoff outcomes and prunes transitions that keep
// failing, so the matrix self-tunes which domain pairs are worth
// connecting.
type Analytics struct {
	mu    sync.Mutex
	pairs map[transition]*pairAccum
}

// NewAnalytics creates an empty handoff analytics tracker.
func NewAnalytics() *Analytics {
	return &Analytics{pairs: make(map[transition]*pairAccum)}
}

// Track records one handoff outcome.
func (a *Analytics) Track(source, target domain.Domain, successRate float64, resolution time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := transition{source, target}
	acc, ok := a.pairs[key]
	if !ok {
		acc = &pairAccum{}
		a.pairs[key] = acc
	}
	acc.samples++
	acc.successes += successRate
	acc.totalTime += resolution
}

// BadPairs returns transitions with enough samples and a sustained success
// rate below the pruning threshold.
func (a *Analytics) BadPairs() []PairStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var bad []PairStats
	for key, acc := range a.pairs {
		if acc.pruned || acc.samples < minSamples {
			continue
		}
		rate := acc.successes / float64(acc.samples)
		if rate < pruneBelow {
			bad = append(bad, PairStats{
				Source:      key.from,
				Target:      key.to,
				Samples:     acc.samples,
				SuccessRate: rate,
			})
		}
	}
	return bad
}

// Prune removes consistently failing transitions from the matrix.
func (a *Analytics) Prune(m *Matrix) {
	for _, p := range a.BadPairs() {
		m.Remove(p.Source, p.Target)
		a.mu.Lock()
		a.pairs[transition{p.Source, p.Target}].pruned = true
		a.mu.Unlock()
		log.Info().
			Str("source", string(p.Source)).
			Str("target", string(p.Target)).
			Float64("success_rate", p.SuccessRate).
			Msg("pruned failing handoff path")
	}
}

// Stats returns a snapshot of all tracked pairs.
func (a *Analytics) Stats() []PairStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]PairStats, 0, len(a.pairs))
	for key, acc := range a.pairs {
		s := PairStats{
			Source:  key.from,
			Target:  key.to,
			Samples: acc.samples,
			Pruned:  acc.pruned,
		}
		if acc.samples > 0 {
			s.SuccessRate = acc.successes / float64(acc.samples)
			s.AvgResolution = acc.totalTime / time.Duration(acc.samples)
		}
		out = append(out, s)
	}
	return out
}
