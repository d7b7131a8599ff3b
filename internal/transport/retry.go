package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const excerptLimit = 200

// Transport executes one logical JSON request against the remote API
// with rate limiting and exponential-backoff retries. HTTP failures and
// network failures are retried identically up to MaxRetries; the terminal
// error carries the last failure's detail.
type Transport struct {
	client     *http.Client
	limiter    *RateLimiter
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New creates a Transport. backoff is the base factor of the
// backoff * 2^(attempt-1) schedule.
func New(timeout time.Duration, limiter *RateLimiter, maxRetries int, backoff time.Duration, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		client:     &http.Client{Timeout: timeout},
		limiter:    limiter,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// PostJSON posts the payload to url and returns the response body.
// Every attempt passes through the rate limiter first and is logged with
// its outcome.
func (t *Transport) PostJSON(ctx context.Context, url string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= t.maxRetries+1; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := t.attempt(ctx, url, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt > t.maxRetries {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		delay := t.backoff * (1 << (attempt - 1))
		t.logger.Debug("retrying request", "target", url, "attempt", attempt, "delay", delay)
		t.sleep(delay)
	}

	attempts := t.maxRetries + 1
	switch e := lastErr.(type) {
	case *APIError:
		e.Attempts = attempts
		return nil, e
	default:
		return nil, &TransportError{Attempts: attempts, Err: lastErr}
	}
}

func (t *Transport) attempt(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("request failed", "target", url, "error", err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Warn("read body failed", "target", url, "error", err)
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := Excerpt(body, resp.Header.Get("Content-Type"), excerptLimit)
		t.logger.Warn("request rejected",
			"target", url,
			"status", resp.StatusCode,
			"body", excerpt,
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Excerpt: excerpt}
	}

	t.logger.Info("request succeeded", "target", url, "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}
