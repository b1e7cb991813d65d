// Package classifier adapts the external text-classifier service. The
// classifier itself lives outside this repository; this package only
// speaks its HTTP interface.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"buchungen/internal/cache"
	"buchungen/internal/core"
)

// Classifier is the port the workflow depends on.
type Classifier interface {
	// Classify returns the predicted category and probability
	// distribution for a validated booking, or a creditor-match
	// sentinel when classification was bypassed.
	Classify(ctx context.Context, b core.Booking) (core.Classification, error)
	// ClassifyTerm classifies a single raw term and returns the bare
	// label. Diagnostic use only.
	ClassifyTerm(ctx context.Context, term string) (string, error)
}

// Retrainer triggers a retraining run on the classifier service.
type Retrainer interface {
	Retrain(ctx context.Context) error
}

// HTTPClient talks to the classifier service over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	// termCache avoids re-classifying the same diagnostic term within
	// a short window.
	termCache *cache.LRUCache[string]
}

var (
	_ Classifier = (*HTTPClient)(nil)
	_ Retrainer  = (*HTTPClient)(nil)
)

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    newPooledClient(),
		termCache: cache.NewLRUCache[string](200, 5*time.Minute),
	}
}

// classifyResponse matches the classifier service's wire format. The
// probabilities field is either a nested float matrix or the literal
// string "0", meaning the booking matched a known recurring creditor
// and classification was skipped.
type classifyResponse struct {
	Category      string          `json:"category"`
	Probabilities json.RawMessage `json:"probabilities"`
}

func (c *HTTPClient) Classify(ctx context.Context, b core.Booking) (core.Classification, error) {
	body, err := json.Marshal(b.Values())
	if err != nil {
		return core.Classification{}, fmt.Errorf("marshal booking: %w", err)
	}

	respBody, err := c.post(ctx, "/classify", "application/json", body)
	if err != nil {
		return core.Classification{}, err
	}

	var resp classifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return core.Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}

	cat, _ := core.ParseCategory(resp.Category)
	result := core.Classification{Category: cat}

	if isSkipSentinel(resp.Probabilities) {
		result.CreditorMatch = true
		return result, nil
	}
	if len(resp.Probabilities) > 0 {
		if err := json.Unmarshal(resp.Probabilities, &result.Probabilities); err != nil {
			return core.Classification{}, fmt.Errorf("decode probabilities: %w", err)
		}
	}

	slog.DebugContext(ctx, "Booking classified",
		"category", resp.Category,
		"rows", len(result.Probabilities))
	return result, nil
}

func (c *HTTPClient) ClassifyTerm(ctx context.Context, term string) (string, error) {
	if label, ok := c.termCache.Get(term); ok {
		return label, nil
	}

	body, err := json.Marshal(map[string]string{"term": term})
	if err != nil {
		return "", fmt.Errorf("marshal term: %w", err)
	}
	respBody, err := c.post(ctx, "/classifyterm", "application/json", body)
	if err != nil {
		return "", err
	}

	label := strings.TrimSpace(string(respBody))
	c.termCache.Set(term, label)
	return label, nil
}

func (c *HTTPClient) Retrain(ctx context.Context) error {
	_, err := c.post(ctx, "/retrain", "application/json", nil)
	return err
}

func (c *HTTPClient) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d for %s", resp.StatusCode, path)
	}
	return respBody, nil
}

// isSkipSentinel reports whether the probabilities field carries the
// creditor-match marker: the string or number literal 0.
func isSkipSentinel(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == `"0"` || trimmed == `0`
}

// newPooledClient builds an HTTP client with connection pooling and
// timeouts suited for a sidecar classifier service.
func newPooledClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
