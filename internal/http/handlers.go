package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"buchungen/internal/core"
	"buchungen/internal/services"
	"buchungen/internal/session"
)

// categoryOption feeds the category select on the feedback view.
type categoryOption struct {
	Value string
	Label string
}

func categoryOptions() []categoryOption {
	cats := core.Categories()
	opts := make([]categoryOption, 0, len(cats))
	for _, c := range cats {
		opts = append(opts, categoryOption{Value: string(c), Label: c.Label()})
	}
	return opts
}

// resultView renders result.html and feedback.html.
type resultView struct {
	Category   string
	Confidence string
	Options    []categoryOption
}

func confidenceString(res services.CategorizeResult) string {
	if !res.HasConfidence {
		return "n/a"
	}
	return strconv.FormatFloat(res.Confidence, 'f', -1, 64)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.render(w, r, http.StatusNotFound, "404.html", nil)
		return
	}
	s.handleHowto(w, r)
}

func (s *Server) handleHowto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.render(w, r, http.StatusOK, "howto.html", nil)
}

func (s *Server) handleInputForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.render(w, r, http.StatusOK, "inputform.html", categoryOptions())
}

// Deprecated diagnostic endpoint: classifies a bare term and returns
// the raw label.
func (s *Server) handleClassifyTerm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}
	term := sanitizeInput(r.Form.Get("term"))
	if term == "" {
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}

	label, err := s.workflow.ClassifyTerm(r.Context(), term)
	if err != nil {
		slog.ErrorContext(r.Context(), "Term classification failed", "error", err)
		http.Error(w, "classifier unavailable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(label))
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	values, err := jsonValues(r)
	if err != nil {
		slog.WarnContext(r.Context(), "Malformed JSON body", "error", err)
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}
	s.categorize(w, r, values)
}

func (s *Server) handleClassifyForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}
	s.categorize(w, r, formValues(r))
}

// categorize runs the shared classification workflow behind both the
// JSON and the form endpoint.
func (s *Server) categorize(w http.ResponseWriter, r *http.Request, values map[string]string) {
	res, err := s.workflow.Categorize(r.Context(), values)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			slog.WarnContext(r.Context(), "Booking failed validation", "error", verr)
			s.render(w, r, http.StatusBadRequest, "400.html", verr.Fields)
			return
		}
		slog.ErrorContext(r.Context(), "Classification failed", "error", err)
		http.Error(w, "classification failed", http.StatusInternalServerError)
		return
	}

	view := resultView{
		Category:   res.Label,
		Confidence: confidenceString(res),
	}
	if res.NeedsFeedback {
		s.sessions.SetCookie(w, res.Token)
		view.Options = categoryOptions()
		s.render(w, r, http.StatusOK, "feedback.html", view)
		return
	}
	s.render(w, r, http.StatusOK, "result.html", view)
}

func (s *Server) handleCorrectBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	values, err := jsonValues(r)
	if err != nil {
		slog.WarnContext(r.Context(), "Malformed JSON body", "error", err)
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}

	token, err := session.TokenFromRequest(r)
	if err != nil {
		slog.WarnContext(r.Context(), "Correction without session cookie")
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}

	if err := s.workflow.Correct(r.Context(), values, token); err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			slog.WarnContext(r.Context(), "Correction failed validation", "error", verr)
			s.render(w, r, http.StatusBadRequest, "400.html", verr.Fields)
		case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrExpiredToken):
			slog.WarnContext(r.Context(), "Correction with unusable session token", "error", err)
			s.render(w, r, http.StatusBadRequest, "400.html", nil)
		default:
			slog.ErrorContext(r.Context(), "Correction failed", "error", err)
			http.Error(w, "correction failed", http.StatusInternalServerError)
		}
		return
	}

	session.ClearCookie(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleAddBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	values, err := jsonValues(r)
	if err != nil {
		slog.WarnContext(r.Context(), "Malformed JSON body", "error", err)
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}

	if err := s.workflow.AddBooking(r.Context(), values); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			slog.WarnContext(r.Context(), "Booking failed validation", "error", verr)
			s.render(w, r, http.StatusBadRequest, "400.html", verr.Fields)
			return
		}
		slog.ErrorContext(r.Context(), "Adding booking failed", "error", err)
		http.Error(w, "adding booking failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("booking added"))
}

// handleFeedback acknowledges regardless of outcome: the user already
// did their part by answering.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "400.html", nil)
		return
	}
	category := sanitizeInput(r.Form.Get("category"))

	token, err := session.TokenFromRequest(r)
	if err != nil {
		token = ""
	}

	if err := s.workflow.Feedback(r.Context(), category, token); err != nil {
		slog.ErrorContext(r.Context(), "Recording feedback failed", "error", err)
		http.Error(w, "recording feedback failed", http.StatusInternalServerError)
		return
	}

	session.ClearCookie(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Feedback sent"))
}

// render executes a template with the given status, degrading to a bare
// status code when templates are unavailable.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
	}
}
