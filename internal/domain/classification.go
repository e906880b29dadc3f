package domain

import "time"

// ClassificationMethod tags which tier of the classifier produced a result.
type ClassificationMethod string

const (
	MethodContinuation ClassificationMethod = "continuation"
	MethodKeyword      ClassificationMethod = "keyword"
	MethodRegex        ClassificationMethod = "regex"
	MethodFuzzy        ClassificationMethod = "fuzzy"
	MethodOracle       ClassificationMethod = "oracle"
	MethodFallback     ClassificationMethod = "fallback"
)

// ClassificationResult is the outcome of classifying one utterance.
type ClassificationResult struct {
	Domain     Domain               `json:"domain"`
	Confidence float64              `json:"confidence"`
	Method     ClassificationMethod `json:"method"`
	Elapsed    time.Duration        `json:"elapsed"`
}
