package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"buchungen/internal/core"
	"buchungen/internal/services"
	"buchungen/internal/session"
	"buchungen/internal/storage"
)

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, &fakeWorkflow{})

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/howto", nil))

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range headers {
		if got := rr.Header().Get(name); got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request 61 within a minute should be rejected")
	}
	// Other clients are unaffected.
	if !rl.allow("10.0.0.2") {
		t.Error("different client should be allowed")
	}
}

func TestRateLimitOnPost(t *testing.T) {
	s := newTestServer(t, &fakeWorkflow{termLabel: "Finanzen"})

	var last *httptest.ResponseRecorder
	for i := 0; i < 61; i++ {
		form := url.Values{"term": {"REWE"}}
		req := httptest.NewRequest(http.MethodPost, "/classifyterm", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "10.1.2.3:40000"
		last = doRequest(s, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("request 61 = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Error("rate-limited response should carry Retry-After")
	}
}

// e2eClassifier always falls back to the unrecognized category.
type e2eClassifier struct{}

func (e2eClassifier) Classify(_ context.Context, _ core.Booking) (core.Classification, error) {
	return core.Classification{
		Category:      core.Sonstiges,
		Probabilities: [][]float64{{0.3, 0.3, 0.4}},
	}, nil
}

func (e2eClassifier) ClassifyTerm(_ context.Context, _ string) (string, error) {
	return "Sonstiges", nil
}

type e2eWriter struct {
	rows []core.Category
}

func (w *e2eWriter) Append(_ context.Context, _ core.Booking, c core.Category) (string, error) {
	w.rows = append(w.rows, c)
	return fmt.Sprintf("csv:%d", len(w.rows)), nil
}

// TestFallbackFeedbackFlow exercises the full loop: classify an unknown
// booking, receive the session cookie, answer the feedback form, and
// observe the labeled training example.
func TestFallbackFeedbackFlow(t *testing.T) {
	store := storage.NewMemoryStore()
	writer := &e2eWriter{}
	sessions := session.NewSerializer("test-secret", 30*time.Minute)
	svc := services.NewBookingService(e2eClassifier{}, store, writer, sessions, nil)
	s := NewServer(":0", svc, sessions)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	body := `{"text":"LASTSCHRIFT","usage":"OMINOESE ZAHLUNG 123","amount":"-50.00","currency":"EUR"}`
	req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := doRequest(s, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("categorize = %d, want 200", rr.Code)
	}
	if !strings.Contains(bodyOf(rr), `action="/feedback"`) {
		t.Fatal("expected the feedback view")
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if store.Len() != 1 {
		t.Fatalf("pending store has %d entries, want 1", store.Len())
	}

	form := url.Values{"category": {"LEBENSHALTUNG"}}
	fb := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(form.Encode()))
	fb.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	fb.AddCookie(cookies[0])
	rr = doRequest(s, fb)

	if rr.Code != http.StatusOK {
		t.Fatalf("feedback = %d, want 200", rr.Code)
	}
	if len(writer.rows) != 1 || writer.rows[0] != core.Lebenshaltung {
		t.Fatalf("corpus rows = %v, want [LEBENSHALTUNG]", writer.rows)
	}
	if store.Len() != 0 {
		t.Errorf("pending store has %d entries after feedback, want 0", store.Len())
	}
}

// TestCorrectionFlow mirrors the feedback loop through /correctbooking.
func TestCorrectionFlow(t *testing.T) {
	store := storage.NewMemoryStore()
	writer := &e2eWriter{}
	sessions := session.NewSerializer("test-secret", 30*time.Minute)
	svc := services.NewBookingService(e2eClassifier{}, store, writer, sessions, nil)
	s := NewServer(":0", svc, sessions)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	body := `{"text":"LASTSCHRIFT","usage":"OMINOESE ZAHLUNG 123","amount":"-50.00","currency":"EUR"}`
	req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := doRequest(s, req)
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	correction := `{"text":"LASTSCHRIFT","usage":"OMINOESE ZAHLUNG 123","amount":"-50.00","currency":"EUR","category":"Finanzen"}`
	cr := httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correction))
	cr.Header.Set("Content-Type", "application/json")
	cr.AddCookie(cookies[0])
	rr = doRequest(s, cr)

	if rr.Code != http.StatusOK || bodyOf(rr) != "ok" {
		t.Fatalf("correctbooking = %d %q, want 200 ok", rr.Code, bodyOf(rr))
	}
	if len(writer.rows) != 1 || writer.rows[0] != core.Finanzen {
		t.Fatalf("corpus rows = %v, want [FINANZEN]", writer.rows)
	}

	// A tampered cookie must not produce a second row.
	tampered := &http.Cookie{Name: session.CookieName, Value: cookies[0].Value + "x"}
	cr = httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correction))
	cr.Header.Set("Content-Type", "application/json")
	cr.AddCookie(tampered)
	rr = doRequest(s, cr)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("tampered correctbooking = %d, want 400", rr.Code)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("corpus rows = %d after tampered token, want 1", len(writer.rows))
	}
}
