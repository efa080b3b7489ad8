package sigfox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultBackoff   = 500 * time.Millisecond
	maxBackoff       = 8 * time.Second
	maxResponseBytes = 8 << 20
	userAgent        = "sigfox-decoder/1.0"
)

var (
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrMalformedResponse = errors.New("malformed response")
)

type Options struct {
	URL       string
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration
	UserAgent string
}

// Client fetches records from the Sigfox callback endpoint.
type Client struct {
	opts   Options
	client *http.Client
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	if opts.Retries < 0 {
		opts.Retries = 0
	}

	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = userAgent
	}

	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Fetch downloads the current record set. Network errors, 429 and 5xx
// responses are retried with exponential backoff.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	backoff := c.opts.Backoff

	for attempt := 0; ; attempt++ {
		records, err := c.fetchOnce(ctx)
		if err == nil {
			return records, nil
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) || attempt >= c.opts.Retries {
			return nil, err
		}

		slog.WarnContext(ctx, "sigfox fetch failed, retrying",
			"attempt", attempt+1, "retries", c.opts.Retries, "backoff", backoff, "error", err)

		timer := time.NewTimer(backoff)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, fmt.Errorf("fetch: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Client) fetchOnce(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}

		return nil, &retryableError{err: fmt.Errorf("fetch: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, &retryableError{err: err}
		}

		return nil, err
	}

	return ParseRecords(body)
}

// ParseRecords accepts a top-level JSON array or an object wrapping the
// array in a "data" field. Entries that are not valid records are kept
// with only their raw form.
func ParseRecords(body []byte) ([]Record, error) {
	body = bytes.TrimSpace(body)

	var raws []json.RawMessage

	switch {
	case len(body) > 0 && body[0] == '[':
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	case len(body) > 0 && body[0] == '{':
		var envelope struct {
			Data []json.RawMessage `json:"data"`
		}

		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}

		raws = envelope.Data
	default:
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedResponse)
	}

	records := make([]Record, 0, len(raws))

	for i, raw := range raws {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("skipping unparsable sigfox record", "index", i, "error", err)

			rec = Record{}
		}

		rec.Raw = raw
		records = append(records, rec)
	}

	return records, nil
}
