// Package worker contains the background consumer that turns appended
// training examples into classifier retraining runs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"buchungen/internal/amqp"
	"buchungen/internal/classifier"
)

// minRetrainInterval keeps a burst of corrections from triggering
// back-to-back retraining runs.
const minRetrainInterval = 5 * time.Minute

// RetrainWorker counts appended training examples and triggers a
// retraining run on the classifier after every full batch.
type RetrainWorker struct {
	retrainer classifier.Retrainer
	batchSize int

	mu          sync.Mutex
	pending     int
	lastRetrain time.Time
}

func NewRetrainWorker(retrainer classifier.Retrainer, batchSize int) *RetrainWorker {
	return &RetrainWorker{
		retrainer: retrainer,
		batchSize: batchSize,
	}
}

// HandleTrainingExample processes one training-example message. The
// returned error requeues the message.
func (w *RetrainWorker) HandleTrainingExample(ctx context.Context, msg *amqp.TrainingExampleMessage) error {
	slog.InfoContext(ctx, "Processing training example",
		"category", msg.Category,
		"source", msg.Source)

	if !w.recordExample() {
		return nil
	}

	slog.InfoContext(ctx, "Batch complete, triggering retraining",
		"batch_size", w.batchSize)
	if err := w.retrainer.Retrain(ctx); err != nil {
		w.restoreBatch()
		return fmt.Errorf("trigger retraining: %w", err)
	}
	return nil
}

// recordExample counts one example and reports whether a retraining run
// is due.
func (w *RetrainWorker) recordExample() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending++
	if w.pending < w.batchSize {
		return false
	}
	if time.Since(w.lastRetrain) < minRetrainInterval {
		return false
	}
	w.pending = 0
	w.lastRetrain = time.Now()
	return true
}

// restoreBatch puts the counted batch back after a failed retraining
// run so the next message retries it.
func (w *RetrainWorker) restoreBatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending += w.batchSize
	w.lastRetrain = time.Time{}
}

// Pending returns the number of examples counted since the last run.
func (w *RetrainWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}
