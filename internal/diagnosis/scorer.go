package diagnosis

import (
	"math"
	"sort"
	"strings"
)

const (
	// MaxMatchedConfidence caps the confidence of any condition with a match.
	MaxMatchedConfidence = 0.95
	perSymptomBoost      = 0.1
	unmatchedFactor      = 0.3
)

// ScoredCondition is a condition ranked against a patient's symptoms.
// Percent is AdjustedConfidence rounded to a whole percentage.
type ScoredCondition struct {
	Condition
	AdjustedConfidence float64  `json:"adjustedConfidence"`
	MatchedSymptoms    []string `json:"matchingSymptoms"`
	Percent            int      `json:"percent"`
}

// Score ranks catalog against symptoms, highest adjusted confidence first.
// Conditions with equal confidence keep their catalog order.
func Score(catalog []Condition, symptoms PatientSymptoms) []ScoredCondition {
	patient := lowerAll(symptoms.Values())

	scored := make([]ScoredCondition, 0, len(catalog))
	for _, cond := range catalog {
		matched := matchedSymptoms(patient, cond.CanonicalSymptoms)

		confidence := cond.BaseConfidence * unmatchedFactor
		if len(matched) > 0 {
			confidence = math.Min(cond.BaseConfidence+perSymptomBoost*float64(len(matched)), MaxMatchedConfidence)
		}

		scored = append(scored, ScoredCondition{
			Condition:          cond.clone(),
			AdjustedConfidence: confidence,
			MatchedSymptoms:    matched,
			Percent:            int(math.Round(confidence * 100)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].AdjustedConfidence > scored[j].AdjustedConfidence
	})
	return scored
}

// matchedSymptoms returns the canonical symptoms contained in at least one
// patient symptom. patient must already be lower-cased.
func matchedSymptoms(patient []string, canonical []string) []string {
	out := []string{}
	for _, c := range canonical {
		needle := strings.ToLower(c)
		for _, p := range patient {
			if strings.Contains(p, needle) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}
