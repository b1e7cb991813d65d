package core

import "testing"

func TestTopConfidence(t *testing.T) {
	tests := []struct {
		name  string
		probs [][]float64
		want  float64
		ok    bool
	}{
		{"single row", [][]float64{{0.1, 0.82, 0.08}}, 82.0, true},
		{"max in later row", [][]float64{{0.3, 0.3}, {0.4}}, 40.0, true},
		{"rounds to four decimals", [][]float64{{0.123456}}, 12.35, true},
		{"certainty", [][]float64{{1.0}}, 100.0, true},
		{"empty", nil, 0, false},
		{"empty rows", [][]float64{{}, {}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TopConfidence(tt.probs)
			if ok != tt.ok {
				t.Fatalf("TopConfidence() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("TopConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassificationConfidence(t *testing.T) {
	c := Classification{Category: Sonstiges, Probabilities: [][]float64{{0.3, 0.3, 0.4}}}
	got, ok := c.Confidence()
	if !ok || got != 40.0 {
		t.Fatalf("Confidence() = (%v, %v), want (40.0, true)", got, ok)
	}

	// Creditor match carries no numeric confidence.
	skip := Classification{Category: Finanzen, CreditorMatch: true, Probabilities: [][]float64{{0.9}}}
	if _, ok := skip.Confidence(); ok {
		t.Fatal("creditor match should report no confidence")
	}
}
