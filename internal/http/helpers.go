package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// bookingFields enumerates every field a request may carry. Unknown
// keys are dropped rather than rejected.
var bookingFields = []string{
	"text", "usage", "amount", "currency",
	"booking_date", "valuta_date", "creditor_id", "iban", "bic",
	"category",
}

// jsonValues decodes a JSON object body into the raw field map the
// workflow consumes. Scalar values are coerced to strings so that
// clients sending `"amount": -23.45` are treated like those sending
// `"amount": "-23.45"`.
func jsonValues(r *http.Request) (map[string]string, error) {
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	values := make(map[string]string, len(bookingFields))
	for _, field := range bookingFields {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			values[field] = sanitizeInput(t)
		case float64:
			values[field] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			values[field] = strconv.FormatBool(t)
		default:
			return nil, fmt.Errorf("field %q: unsupported value type", field)
		}
	}
	return values, nil
}

// formValues collects the booking fields from an already-parsed form.
func formValues(r *http.Request) map[string]string {
	values := make(map[string]string, len(bookingFields))
	for _, field := range bookingFields {
		if v := sanitizeInput(r.Form.Get(field)); v != "" {
			values[field] = v
		}
	}
	return values
}

// sanitizeInput removes potentially dangerous characters and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
