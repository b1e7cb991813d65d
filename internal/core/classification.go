package core

import "math"

// Classification is the outcome of classifying a booking: a category
// machine name plus the classifier's probability distribution, or a
// creditor-match sentinel when a known recurring creditor was found and
// classification was bypassed.
type Classification struct {
	Category      Category
	Probabilities [][]float64
	CreditorMatch bool
}

// Confidence returns the top confidence as a percentage and whether a
// numeric confidence applies at all. Creditor matches and empty
// distributions carry no confidence ("n/a" at the boundary).
func (c Classification) Confidence() (float64, bool) {
	if c.CreditorMatch {
		return 0, false
	}
	return TopConfidence(c.Probabilities)
}

// TopConfidence extracts the single top confidence value from a nested
// probability distribution: the maximum over all entries, rounded to 4
// decimals, times 100. Returns false when the distribution is empty.
func TopConfidence(probabilities [][]float64) (float64, bool) {
	found := false
	max := 0.0
	for _, row := range probabilities {
		for _, p := range row {
			if !found || p > max {
				max = p
				found = true
			}
		}
	}
	if !found {
		return 0, false
	}
	return math.Round(max*10000) / 10000 * 100, true
}
