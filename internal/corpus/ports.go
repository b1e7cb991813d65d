// Package corpus appends labeled bookings to the training corpus the
// classifier is retrained from. The corpus is write-only from this
// service's perspective and append-only: duplicate submissions produce
// duplicate rows, no deduplication is performed.
package corpus

import (
	"context"

	"buchungen/internal/core"
)

// TrainingWriter appends one labeled booking per call and returns a
// backend-specific row reference.
type TrainingWriter interface {
	Append(ctx context.Context, b core.Booking, category core.Category) (rowRef string, err error)
}
