package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Result is the oracle's verdict for one utterance.
type Result struct {
	Domain     string
	Confidence float64
	Model      string
	LatencyMs  int64
}

// Provider defines the interface for classification oracles. The oracle is
// the classifier's last resort; callers must treat any error as recoverable.
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// ClassifyQuery asks the oracle which domain should handle the query.
	// candidates is the set of acceptable domain labels.
	ClassifyQuery(ctx context.Context, query string, candidates []string) (*Result, error)
}

// BuildPrompt renders the single-shot classification prompt. The oracle is
// constrained to emit exactly "domain|confidence".
func BuildPrompt(query string, candidates []string) string {
	var b strings.Builder
	b.WriteString("You route hospital call-center queries to a department.\n")
	b.WriteString("Departments: ")
	b.WriteString(strings.Join(candidates, ", "))
	b.WriteString("\n\nReply with exactly one line in the form department|confidence ")
	b.WriteString("where confidence is a number between 0 and 1. No other text.\n\n")
	b.WriteString("Query: \"")
	if len(query) > 200 {
		query = query[:200]
	}
	b.WriteString(query)
	b.WriteString("\"\n")
	return b.String()
}

// ParseReply extracts "domain|confidence" from oracle output, tolerating
// surrounding whitespace, code fences, and a missing confidence field.
func ParseReply(raw string, candidates []string) (string, float64, error) {
	line := strings.TrimSpace(raw)
	line = strings.Trim(line, "`")
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	parts := strings.SplitN(line, "|", 2)
	label := strings.ToLower(strings.TrimSpace(parts[0]))

	found := false
	for _, c := range candidates {
		if label == c {
			found = true
			break
		}
	}
	if !found {
		return "", 0, fmt.Errorf("oracle returned unknown domain %q", label)
	}

	confidence := 0.7
	if len(parts) == 2 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}

	return label, confidence, nil
}
