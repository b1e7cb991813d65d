// Package services implements the booking classification and
// correction workflow. All collaborators are injected; the service owns
// no global state.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"buchungen/internal/classifier"
	"buchungen/internal/core"
	"buchungen/internal/corpus"
	"buchungen/internal/session"
	"buchungen/internal/storage"
)

// EventPublisher announces appended training examples. Publishing is
// best effort; failures are logged, never surfaced to the caller.
type EventPublisher interface {
	PublishTrainingExample(ctx context.Context, category, source string) error
}

// BookingService drives a booking through classification, pending
// feedback and correction.
type BookingService struct {
	classifier classifier.Classifier
	store      storage.PendingStore
	writer     corpus.TrainingWriter
	sessions   *session.Serializer
	events     EventPublisher // nil disables retrain events
}

func NewBookingService(
	cl classifier.Classifier,
	store storage.PendingStore,
	writer corpus.TrainingWriter,
	sessions *session.Serializer,
	events EventPublisher,
) *BookingService {
	return &BookingService{
		classifier: cl,
		store:      store,
		writer:     writer,
		sessions:   sessions,
		events:     events,
	}
}

// CategorizeResult is the resolved outcome of classifying one booking.
type CategorizeResult struct {
	Booking       core.Booking
	Category      core.Category
	Label         string
	Confidence    float64
	HasConfidence bool // false renders as "n/a" (creditor match)
	// NeedsFeedback is set when the classifier fell back to the
	// unrecognized category; Token then carries the signed reference
	// to the stored pending booking.
	NeedsFeedback bool
	Token         string
}

// Categorize validates the raw payload, classifies it and, when the
// classifier falls back to the unrecognized category, parks the booking
// in the pending store and issues a signed session token referencing it.
func (s *BookingService) Categorize(ctx context.Context, values map[string]string) (CategorizeResult, error) {
	booking, verr := core.BookingFromValues(values)
	if verr != nil {
		return CategorizeResult{}, verr
	}

	cls, err := s.classifier.Classify(ctx, booking)
	if err != nil {
		return CategorizeResult{}, fmt.Errorf("classify booking: %w", err)
	}

	result := CategorizeResult{
		Booking:  booking,
		Category: cls.Category,
		Label:    cls.Category.Label(),
	}

	if cls.CreditorMatch {
		// Known recurring creditor, classification bypassed.
		return result, nil
	}
	result.Confidence, result.HasConfidence = cls.Confidence()

	if cls.Category.IsFallback() {
		slog.InfoContext(ctx, "Unknown booking, parking for feedback",
			"category", string(cls.Category),
			"confidence", result.Confidence)
		id, err := s.store.Put(ctx, booking.Values())
		if err != nil {
			return CategorizeResult{}, fmt.Errorf("store pending booking: %w", err)
		}
		result.NeedsFeedback = true
		result.Token = s.sessions.Sign(id)
	}

	return result, nil
}

// Correct accepts the user's corrected, categorized booking together
// with the session token issued during classification. The corrected
// example is appended to the corpus even when the referenced pending
// booking has meanwhile disappeared; the correction carries all data
// itself.
func (s *BookingService) Correct(ctx context.Context, values map[string]string, token string) error {
	cb, verr := core.CategorizedBookingFromValues(values)
	if verr != nil {
		return verr
	}

	id, err := s.sessions.Verify(token)
	if err != nil {
		return err
	}

	if _, err := s.store.Get(ctx, id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("lookup pending booking: %w", err)
		}
		slog.WarnContext(ctx, "Pending booking already gone, keeping correction",
			"pending_id", id)
	}

	if err := s.appendExample(ctx, cb.Booking, cb.Category, "correction"); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate pending booking", "pending_id", id, "error", err)
	}
	return nil
}

// Feedback resolves a pending booking with just a category choice. It
// is deliberately permissive: a missing category, an absent token or a
// vanished pending booking all acknowledge without writing anything.
// Only a corpus write failure surfaces as an error.
func (s *BookingService) Feedback(ctx context.Context, category, token string) error {
	if category == "" {
		slog.InfoContext(ctx, "Feedback without category, nothing to record")
		return nil
	}

	id, err := s.sessions.Verify(token)
	if err != nil {
		slog.WarnContext(ctx, "Feedback with unusable session token", "error", err)
		return nil
	}

	payload, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Feedback for unknown pending booking", "pending_id", id)
			return nil
		}
		return fmt.Errorf("lookup pending booking: %w", err)
	}

	merged := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["category"] = category

	if err := s.addBooking(ctx, merged, "feedback"); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			// The stored payload predates this request; a schema
			// failure here is our data, not the user's.
			slog.WarnContext(ctx, "Stored pending booking fails validation", "pending_id", id, "error", verr)
			return nil
		}
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate pending booking", "pending_id", id, "error", err)
	}
	return nil
}

// AddBooking validates a plain booking and appends it to the training
// corpus. An optional category field selects the label; anything else,
// including no category at all, labels the example with the fallback.
// Duplicate submissions append duplicate rows.
func (s *BookingService) AddBooking(ctx context.Context, values map[string]string) error {
	return s.addBooking(ctx, values, "manual")
}

func (s *BookingService) addBooking(ctx context.Context, values map[string]string, source string) error {
	booking, verr := core.BookingFromValues(values)
	if verr != nil {
		return verr
	}
	category, _ := core.ParseCategory(values["category"])
	return s.appendExample(ctx, booking, category, source)
}

func (s *BookingService) appendExample(ctx context.Context, b core.Booking, category core.Category, source string) error {
	ref, err := s.writer.Append(ctx, b, category)
	if err != nil {
		return fmt.Errorf("append training example: %w", err)
	}
	slog.InfoContext(ctx, "Training example recorded",
		"category", string(category),
		"source", source,
		"corpus_ref", ref)

	if s.events != nil {
		if err := s.events.PublishTrainingExample(ctx, string(category), source); err != nil {
			slog.WarnContext(ctx, "Failed to publish training example event", "error", err)
		}
	}
	return nil
}

// ClassifyTerm forwards a bare term to the classifier. Diagnostic only.
func (s *BookingService) ClassifyTerm(ctx context.Context, term string) (string, error) {
	return s.classifier.ClassifyTerm(ctx, term)
}
