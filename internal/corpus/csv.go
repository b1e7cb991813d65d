package corpus

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"buchungen/internal/core"
)

// csvHeader is the fixed column order of the training corpus file.
var csvHeader = []string{
	"booking_date", "valuta_date", "text", "usage",
	"creditor_id", "iban", "bic", "amount", "currency", "category",
}

// CSVWriter appends labeled bookings to a shared CSV file. Appends are
// serialized through a mutex so concurrent requests cannot interleave
// partial rows.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	rows int64
}

var _ TrainingWriter = (*CSVWriter)(nil)

// NewCSVWriter opens (or creates) the corpus file at path, writing the
// header row when the file is new.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create corpus directory: %w", err)
	}

	w := &CSVWriter{path: path}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err) || (err == nil && info.Size() == 0):
		if err := w.writeRow(csvHeader); err != nil {
			return nil, fmt.Errorf("write corpus header: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat corpus file: %w", err)
	}

	return w, nil
}

// Append serializes the labeled booking to one CSV row. The category is
// always a machine name drawn from the closed set.
func (w *CSVWriter) Append(ctx context.Context, b core.Booking, category core.Category) (string, error) {
	row := []string{
		b.BookingDate, b.ValutaDate, b.Text, b.Usage,
		b.CreditorID, b.IBAN, b.BIC, b.Amount, b.Currency, string(category),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeRow(row); err != nil {
		return "", fmt.Errorf("append corpus row: %w", err)
	}
	w.rows++

	slog.InfoContext(ctx, "Training example appended",
		"category", string(category),
		"corpus", w.path)
	return fmt.Sprintf("csv:%d", w.rows), nil
}

// writeRow appends a single record; callers hold the mutex (or are the
// constructor, before the writer is shared).
func (w *CSVWriter) writeRow(record []string) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}
