package core

import "strings"

// Category is one of the fixed spending categories a booking can be
// assigned to. The zero value is not valid; Sonstiges is the fallback
// for anything the classifier cannot place.
type Category string

const (
	Barentnahme       Category = "BARENTNAHME"
	Finanzen          Category = "FINANZEN"
	FreizeitLifestyle Category = "FREIZEITLIFESTYLE"
	Lebenshaltung     Category = "LEBENSHALTUNG"
	MobilitaetVerkehr Category = "MOBILITAETVERKEHR"
	Versicherungen    Category = "VERSICHERUNGEN"
	WohnenHaushalt    Category = "WOHNENHAUSHALT"

	// Sonstiges is the fallback category. Classifying into it triggers
	// the feedback workflow.
	Sonstiges Category = "SONSTIGES"
)

// categoryLabels maps every machine name to exactly one display label.
var categoryLabels = map[Category]string{
	Barentnahme:       "Barentnahme",
	Finanzen:          "Finanzen",
	FreizeitLifestyle: "Freizeit & Lifestyle",
	Lebenshaltung:     "Lebenshaltung",
	MobilitaetVerkehr: "Mobilitaet & Verkehrsmittel",
	Versicherungen:    "Versicherungen",
	WohnenHaushalt:    "Wohnen & Haushalt",
	Sonstiges:         "Sonstiges",
}

// Categories returns all categories including the fallback, in a stable order.
func Categories() []Category {
	return []Category{
		Barentnahme,
		Finanzen,
		FreizeitLifestyle,
		Lebenshaltung,
		MobilitaetVerkehr,
		Versicherungen,
		WohnenHaushalt,
		Sonstiges,
	}
}

// ParseCategory maps a machine name or display label to a Category.
// Matching is case-insensitive. Unrecognized input degrades to the
// fallback; the second return value reports whether the input matched
// a known category.
func ParseCategory(s string) (Category, bool) {
	needle := strings.ToUpper(strings.TrimSpace(s))
	for c, label := range categoryLabels {
		if needle == string(c) || needle == strings.ToUpper(label) {
			return c, true
		}
	}
	return Sonstiges, false
}

// DisplayLabel returns the human-readable label for a category machine
// name. Total over all string inputs: unknown names return the fallback
// label rather than an error.
func DisplayLabel(name string) string {
	c, _ := ParseCategory(name)
	return c.Label()
}

// Label returns the display label for the category.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return categoryLabels[Sonstiges]
}

// IsFallback reports whether the category is the fallback bucket.
func (c Category) IsFallback() bool {
	return c == Sonstiges
}
