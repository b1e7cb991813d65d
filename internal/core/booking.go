package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Booking is a single bank-transaction record submitted for
// categorization. Optional fields are normalized from empty string to
// absent; a Booking is immutable once validated within a request.
type Booking struct {
	Text        string // description text
	Usage       string // free-text purpose/reference
	Amount      string
	Currency    string
	BookingDate string // optional, YYYY-MM-DD
	ValutaDate  string // optional, YYYY-MM-DD
	CreditorID  string // optional
	IBAN        string // optional
	BIC         string // optional
}

// CategorizedBooking is a Booking that additionally carries a confirmed
// category label drawn from the closed category set.
type CategorizedBooking struct {
	Booking
	Category Category
}

// ValidationError enumerates, per field, which constraint was violated.
// It is a recoverable value, reported to the boundary as a client error.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "booking validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "booking validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, constraint string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = constraint
}

const (
	constraintRequired = "missing required field"
	constraintAmount   = "not a valid amount"
	constraintDate     = "not a valid date (expected YYYY-MM-DD)"
	constraintCategory = "not a known category"
)

// BookingFromValues builds a validated Booking from raw string field
// values as received over HTTP. It returns either a Booking or a
// ValidationError listing every violated constraint; it never panics on
// malformed input.
func BookingFromValues(values map[string]string) (Booking, *ValidationError) {
	verr := &ValidationError{}

	b := Booking{
		Text:        strings.TrimSpace(values["text"]),
		Usage:       strings.TrimSpace(values["usage"]),
		Amount:      strings.TrimSpace(values["amount"]),
		Currency:    strings.TrimSpace(values["currency"]),
		BookingDate: strings.TrimSpace(values["booking_date"]),
		ValutaDate:  strings.TrimSpace(values["valuta_date"]),
		CreditorID:  strings.TrimSpace(values["creditor_id"]),
		IBAN:        strings.TrimSpace(values["iban"]),
		BIC:         strings.TrimSpace(values["bic"]),
	}

	if b.Text == "" {
		verr.add("text", constraintRequired)
	}
	if b.Usage == "" {
		verr.add("usage", constraintRequired)
	}
	if b.Currency == "" {
		verr.add("currency", constraintRequired)
	}
	switch {
	case b.Amount == "":
		verr.add("amount", constraintRequired)
	case !validAmount(b.Amount):
		verr.add("amount", constraintAmount)
	}
	if b.BookingDate != "" && !validDate(b.BookingDate) {
		verr.add("booking_date", constraintDate)
	}
	if b.ValutaDate != "" && !validDate(b.ValutaDate) {
		verr.add("valuta_date", constraintDate)
	}

	if len(verr.Fields) > 0 {
		return Booking{}, verr
	}
	return b, nil
}

// CategorizedBookingFromValues is the categorized schema variant: it
// additionally requires a `category` field valid against the closed set.
func CategorizedBookingFromValues(values map[string]string) (CategorizedBooking, *ValidationError) {
	b, verr := BookingFromValues(values)
	if verr == nil {
		verr = &ValidationError{}
	}

	raw := strings.TrimSpace(values["category"])
	var cat Category
	if raw == "" {
		verr.add("category", constraintRequired)
	} else if c, ok := ParseCategory(raw); ok {
		cat = c
	} else {
		verr.add("category", constraintCategory)
	}

	if len(verr.Fields) > 0 {
		return CategorizedBooking{}, verr
	}
	return CategorizedBooking{Booking: b, Category: cat}, nil
}

// Values returns the booking as a raw field map, the inverse of
// BookingFromValues. Absent optional fields are omitted.
func (b Booking) Values() map[string]string {
	values := map[string]string{
		"text":     b.Text,
		"usage":    b.Usage,
		"amount":   b.Amount,
		"currency": b.Currency,
	}
	optional := map[string]string{
		"booking_date": b.BookingDate,
		"valuta_date":  b.ValutaDate,
		"creditor_id":  b.CreditorID,
		"iban":         b.IBAN,
		"bic":          b.BIC,
	}
	for k, v := range optional {
		if v != "" {
			values[k] = v
		}
	}
	return values
}

// validAmount accepts signed decimal amounts with a dot or comma
// separator, e.g. "-23.45" or "11,99". Grouping separators are not
// accepted.
func validAmount(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return false
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return parts[0] != "" || (len(parts) == 2 && parts[1] != "")
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
