package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"buchungen/internal/core"
	"buchungen/internal/services"
	"buchungen/internal/session"
)

// fakeWorkflow scripts the service layer for handler tests.
type fakeWorkflow struct {
	categorizeResult services.CategorizeResult
	categorizeErr    error
	correctErr       error
	feedbackErr      error
	addErr           error
	termLabel        string
	termErr          error

	categorizeCalls []map[string]string
	correctTokens   []string
	feedbackInputs  [][2]string
	addCalls        []map[string]string
}

func (f *fakeWorkflow) Categorize(_ context.Context, values map[string]string) (services.CategorizeResult, error) {
	f.categorizeCalls = append(f.categorizeCalls, values)
	return f.categorizeResult, f.categorizeErr
}

func (f *fakeWorkflow) Correct(_ context.Context, _ map[string]string, token string) error {
	f.correctTokens = append(f.correctTokens, token)
	return f.correctErr
}

func (f *fakeWorkflow) Feedback(_ context.Context, category, token string) error {
	f.feedbackInputs = append(f.feedbackInputs, [2]string{category, token})
	return f.feedbackErr
}

func (f *fakeWorkflow) AddBooking(_ context.Context, values map[string]string) error {
	f.addCalls = append(f.addCalls, values)
	return f.addErr
}

func (f *fakeWorkflow) ClassifyTerm(_ context.Context, _ string) (string, error) {
	return f.termLabel, f.termErr
}

func newTestServer(t *testing.T, wf Workflow) *Server {
	t.Helper()
	s := NewServer(":0", wf, session.NewSerializer("test-secret", 30*time.Minute))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	if s.templates == nil {
		t.Fatal("templates failed to parse")
	}
	return s
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func bodyOf(rr *httptest.ResponseRecorder) string {
	b, _ := io.ReadAll(rr.Body)
	return string(b)
}

func TestStaticViews(t *testing.T) {
	s := newTestServer(t, &fakeWorkflow{})

	for _, path := range []string{"/", "/howto"} {
		rr := doRequest(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rr.Code)
		}
		if !strings.Contains(bodyOf(rr), "Buchungsklassifikation") {
			t.Errorf("GET %s body misses title", path)
		}
	}

	rr := doRequest(s, httptest.NewRequest(http.MethodGet, "/inputform", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /inputform = %d, want 200", rr.Code)
	}
	if !strings.Contains(bodyOf(rr), `action="/classifyform"`) {
		t.Error("input form misses classify action")
	}

	rr = doRequest(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d, want 404", rr.Code)
	}

	rr = doRequest(s, httptest.NewRequest(http.MethodPost, "/howto", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /howto = %d, want 405", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeWorkflow{})

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := doRequest(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK || bodyOf(rr) != want {
			t.Errorf("GET %s = %d %q, want 200 %q", path, rr.Code, bodyOf(rr), want)
		}
	}
}

func TestClassifyTerm(t *testing.T) {
	t.Run("returns raw label", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{termLabel: "Lebenshaltung"})

		form := url.Values{"term": {"REWE"}}
		req := httptest.NewRequest(http.MethodPost, "/classifyterm", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rr := doRequest(s, req)
		if rr.Code != http.StatusOK || bodyOf(rr) != "Lebenshaltung" {
			t.Fatalf("got %d %q, want 200 Lebenshaltung", rr.Code, bodyOf(rr))
		}
	})

	t.Run("missing term", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{})
		req := httptest.NewRequest(http.MethodPost, "/classifyterm", nil)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		if rr := doRequest(s, req); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})

	t.Run("classifier down", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{termErr: errors.New("down")})
		form := url.Values{"term": {"REWE"}}
		req := httptest.NewRequest(http.MethodPost, "/classifyterm", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		if rr := doRequest(s, req); rr.Code != http.StatusBadGateway {
			t.Fatalf("got %d, want 502", rr.Code)
		}
	})
}

func TestCategorize(t *testing.T) {
	bookingJSON := `{"text":"LASTSCHRIFT","usage":"REWE SAGT DANKE","amount":"-23.45","currency":"EUR"}`

	t.Run("confident classification renders result", func(t *testing.T) {
		wf := &fakeWorkflow{categorizeResult: services.CategorizeResult{
			Category:      core.Lebenshaltung,
			Label:         "Lebenshaltung",
			Confidence:    82.0,
			HasConfidence: true,
		}}
		s := newTestServer(t, wf)

		req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(bookingJSON))
		req.Header.Set("Content-Type", "application/json")

		rr := doRequest(s, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rr.Code)
		}
		body := bodyOf(rr)
		if !strings.Contains(body, "Lebenshaltung") || !strings.Contains(body, "82") {
			t.Errorf("result body misses category or confidence: %s", body)
		}
		if len(rr.Result().Cookies()) != 0 {
			t.Error("confident classification must not set a session cookie")
		}
		if got := wf.categorizeCalls[0]["usage"]; got != "REWE SAGT DANKE" {
			t.Errorf("forwarded usage = %q", got)
		}
	})

	t.Run("creditor match renders n/a", func(t *testing.T) {
		wf := &fakeWorkflow{categorizeResult: services.CategorizeResult{
			Category: core.Versicherungen,
			Label:    "Versicherungen",
		}}
		s := newTestServer(t, wf)

		req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(bookingJSON))
		req.Header.Set("Content-Type", "application/json")

		rr := doRequest(s, req)
		if !strings.Contains(bodyOf(rr), "n/a") {
			t.Errorf("creditor match should render n/a confidence: %s", bodyOf(rr))
		}
	})

	t.Run("fallback renders feedback view and sets cookie", func(t *testing.T) {
		wf := &fakeWorkflow{categorizeResult: services.CategorizeResult{
			Category:      core.Sonstiges,
			Label:         "Sonstiges",
			Confidence:    40.0,
			HasConfidence: true,
			NeedsFeedback: true,
			Token:         "signed-token",
		}}
		s := newTestServer(t, wf)

		req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(bookingJSON))
		req.Header.Set("Content-Type", "application/json")

		rr := doRequest(s, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rr.Code)
		}
		if !strings.Contains(bodyOf(rr), `action="/feedback"`) {
			t.Error("fallback should render the feedback form")
		}
		cookies := rr.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != session.CookieName || cookies[0].Value != "signed-token" {
			t.Fatalf("expected session cookie with token, got %v", cookies)
		}
	})

	t.Run("validation failure renders 400 with fields", func(t *testing.T) {
		verr := &core.ValidationError{Fields: map[string]string{"amount": "not a valid amount"}}
		s := newTestServer(t, &fakeWorkflow{categorizeErr: verr})

		req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(`{"text":"x"}`))
		req.Header.Set("Content-Type", "application/json")

		rr := doRequest(s, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
		if !strings.Contains(bodyOf(rr), "amount") {
			t.Error("400 view should list the failing field")
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{})
		req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, req); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})

	t.Run("classifier failure is a server error", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{categorizeErr: errors.New("classify booking: connection refused")})
		req := httptest.NewRequest(http.MethodPost, "/categorize", strings.NewReader(bookingJSON))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, req); rr.Code != http.StatusInternalServerError {
			t.Fatalf("got %d, want 500", rr.Code)
		}
	})

	t.Run("form endpoint feeds the same workflow", func(t *testing.T) {
		wf := &fakeWorkflow{categorizeResult: services.CategorizeResult{
			Category:      core.Finanzen,
			Label:         "Finanzen",
			Confidence:    91.5,
			HasConfidence: true,
		}}
		s := newTestServer(t, wf)

		form := url.Values{
			"text":     {"GUTSCHRIFT"},
			"usage":    {"GEHALT AUGUST"},
			"amount":   {"2500.00"},
			"currency": {"EUR"},
		}
		req := httptest.NewRequest(http.MethodPost, "/classifyform", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rr := doRequest(s, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rr.Code)
		}
		if got := wf.categorizeCalls[0]["usage"]; got != "GEHALT AUGUST" {
			t.Errorf("forwarded usage = %q", got)
		}
	})
}

func TestCorrectBooking(t *testing.T) {
	correctionJSON := `{"text":"LASTSCHRIFT","usage":"REWE","amount":"-23.45","currency":"EUR","category":"LEBENSHALTUNG"}`

	withCookie := func(req *http.Request, token string) *http.Request {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
		return req
	}

	t.Run("success clears cookie", func(t *testing.T) {
		wf := &fakeWorkflow{}
		s := newTestServer(t, wf)

		req := httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correctionJSON))
		req.Header.Set("Content-Type", "application/json")
		rr := doRequest(s, withCookie(req, "tok"))

		if rr.Code != http.StatusOK || bodyOf(rr) != "ok" {
			t.Fatalf("got %d %q, want 200 ok", rr.Code, bodyOf(rr))
		}
		if wf.correctTokens[0] != "tok" {
			t.Errorf("forwarded token = %q", wf.correctTokens[0])
		}
		cookies := rr.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge != -1 {
			t.Error("successful correction should clear the session cookie")
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{})
		req := httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correctionJSON))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, req); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{correctErr: session.ErrInvalidToken})
		req := httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correctionJSON))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, withCookie(req, "tampered")); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{correctErr: session.ErrExpiredToken})
		req := httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correctionJSON))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, withCookie(req, "old")); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		verr := &core.ValidationError{Fields: map[string]string{"category": "not a known category"}}
		s := newTestServer(t, &fakeWorkflow{correctErr: verr})
		req := httptest.NewRequest(http.MethodPost, "/correctbooking", strings.NewReader(correctionJSON))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, withCookie(req, "tok")); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})
}

func TestAddBooking(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		wf := &fakeWorkflow{}
		s := newTestServer(t, wf)

		body := `{"text":"DAUERAUFTRAG","usage":"MIETE","amount":"-900.00","currency":"EUR","category":"WOHNENHAUSHALT"}`
		req := httptest.NewRequest(http.MethodPost, "/addbooking", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		rr := doRequest(s, req)
		if rr.Code != http.StatusOK || bodyOf(rr) != "booking added" {
			t.Fatalf("got %d %q, want 200 booking added", rr.Code, bodyOf(rr))
		}
		if got := wf.addCalls[0]["category"]; got != "WOHNENHAUSHALT" {
			t.Errorf("forwarded category = %q", got)
		}
	})

	t.Run("validation failure is 400", func(t *testing.T) {
		verr := &core.ValidationError{Fields: map[string]string{"usage": "required"}}
		s := newTestServer(t, &fakeWorkflow{addErr: verr})

		req := httptest.NewRequest(http.MethodPost, "/addbooking", strings.NewReader(`{"text":"x"}`))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, req); rr.Code != http.StatusBadRequest {
			t.Fatalf("got %d, want 400", rr.Code)
		}
	})

	t.Run("corpus failure is 500", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{addErr: errors.New("append training example: disk full")})

		body := `{"text":"X","usage":"Y","amount":"1","currency":"EUR"}`
		req := httptest.NewRequest(http.MethodPost, "/addbooking", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		if rr := doRequest(s, req); rr.Code != http.StatusInternalServerError {
			t.Fatalf("got %d, want 500", rr.Code)
		}
	})
}

func TestFeedback(t *testing.T) {
	post := func(s *Server, form url.Values, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
		}
		return doRequest(s, req)
	}

	t.Run("acknowledges with category and cookie", func(t *testing.T) {
		wf := &fakeWorkflow{}
		s := newTestServer(t, wf)

		rr := post(s, url.Values{"category": {"Finanzen"}}, "tok")
		if rr.Code != http.StatusOK || bodyOf(rr) != "Feedback sent" {
			t.Fatalf("got %d %q, want 200 Feedback sent", rr.Code, bodyOf(rr))
		}
		if wf.feedbackInputs[0] != [2]string{"Finanzen", "tok"} {
			t.Errorf("forwarded feedback = %v", wf.feedbackInputs[0])
		}
	})

	t.Run("acknowledges without cookie", func(t *testing.T) {
		wf := &fakeWorkflow{}
		s := newTestServer(t, wf)

		rr := post(s, url.Values{"category": {"Finanzen"}}, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rr.Code)
		}
		if wf.feedbackInputs[0][1] != "" {
			t.Errorf("token should be empty, got %q", wf.feedbackInputs[0][1])
		}
	})

	t.Run("acknowledges without category", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{})
		if rr := post(s, url.Values{}, ""); rr.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rr.Code)
		}
	})

	t.Run("corpus failure is 500", func(t *testing.T) {
		s := newTestServer(t, &fakeWorkflow{feedbackErr: errors.New("append training example: disk full")})
		if rr := post(s, url.Values{"category": {"Finanzen"}}, "tok"); rr.Code != http.StatusInternalServerError {
			t.Fatalf("got %d, want 500", rr.Code)
		}
	})
}
