package taxonomy

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Confidence thresholds for alias resolution. Matches below MinConfidence
// are reported as unresolved; resolved matches are banded for review.
const (
	MinConfidence    = 0.5
	HighConfidence   = 0.8
	MediumConfidence = 0.6
)

// ConfidenceBand labels a confidence score for downstream display.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// Band classifies a confidence score.
func Band(confidence float64) ConfidenceBand {
	switch {
	case confidence >= HighConfidence:
		return BandHigh
	case confidence >= MediumConfidence:
		return BandMedium
	default:
		return BandLow
	}
}

// Resolution is the outcome of resolving one raw identifier. It is a sealed
// sum type: a branch over it is either Resolved or Unresolved, never a nil
// check.
type Resolution interface {
	isResolution()
}

// Resolved carries the matched KPI id and the confidence of the match.
type Resolved struct {
	KpiID      string
	Confidence float64
}

func (Resolved) isResolution() {}

// Unresolved carries the identifier that failed to resolve and the best
// score seen, so near misses stay visible for review.
type Unresolved struct {
	RawIdentifier string
	BestKpiID     string
	BestScore     float64
}

func (Unresolved) isResolution() {}

// Resolve matches a free-text column identifier against the registry. Exact
// matches on a canonical id or alias score 1.0; otherwise the best
// similarity across every id and alias wins, subject to the MinConfidence
// floor.
func (r *Registry) Resolve(raw string) Resolution {
	normalized := NormalizeIdentifier(raw)
	if normalized == "" {
		return Unresolved{RawIdentifier: raw}
	}

	if kpiID, ok := r.aliasIndex[normalized]; ok {
		return Resolved{KpiID: kpiID, Confidence: 1.0}
	}

	var bestKpi string
	var bestScore float64
	for alias, kpiID := range r.aliasIndex {
		score := similarity(normalized, alias)
		if score > bestScore {
			bestScore = score
			bestKpi = kpiID
		}
	}

	if bestScore < MinConfidence {
		return Unresolved{RawIdentifier: raw, BestKpiID: bestKpi, BestScore: bestScore}
	}
	return Resolved{KpiID: bestKpi, Confidence: bestScore}
}

// similarity scores two normalized identifiers in [0,1], taking the better
// of an edit-distance score and a token-overlap score.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	editScore := 0.0
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest > 0 {
		distance := levenshtein.ComputeDistance(a, b)
		editScore = 1.0 - float64(distance)/float64(longest)
	}

	overlapScore := tokenOverlap(a, b)
	if overlapScore > editScore {
		return overlapScore
	}
	return editScore
}

// tokenOverlap computes the Jaccard overlap of underscore-separated tokens.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Split(a, "_")
	tokensB := strings.Split(b, "_")

	setA := make(map[string]struct{}, len(tokensA))
	for _, token := range tokensA {
		if token != "" {
			setA[token] = struct{}{}
		}
	}
	setB := make(map[string]struct{}, len(tokensB))
	for _, token := range tokensB {
		if token != "" {
			setB[token] = struct{}{}
		}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}
