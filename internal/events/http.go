package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"hogsim/internal/core"
	"hogsim/internal/ratelimit"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultAttempts    = 3
	defaultBackoff     = 500 * time.Millisecond
	maxResponseBody    = 64 * 1024
)

// ErrRejected is returned when the sink answers with a 4xx status.
var ErrRejected = errors.New("sink rejected request")

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	Host        string // e.g. https://us.i.posthog.com
	APIKey      string
	Client      *http.Client
	RateLimiter *ratelimit.RateLimiter
	Clock       core.Clock
	MaxAttempts int
	Backoff     time.Duration
	Debug       *DebugLogger
}

// HTTPTransport posts records to a PostHog-compatible capture API:
// one record goes to /capture/, several go to /batch/.
type HTTPTransport struct {
	cfg HTTPConfig
}

type batchPayload struct {
	APIKey string   `json:"api_key"`
	Batch  []Record `json:"batch"`
}

func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &HTTPTransport{cfg: cfg}
}

func (t *HTTPTransport) Send(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	var (
		path string
		body []byte
		err  error
	)
	if len(records) == 1 {
		rec := records[0]
		if rec.APIKey == "" {
			rec.APIKey = t.cfg.APIKey
		}
		path = "/capture/"
		body, err = json.Marshal(rec)
	} else {
		path = "/batch/"
		body, err = json.Marshal(batchPayload{APIKey: t.cfg.APIKey, Batch: records})
	}
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	if t.cfg.RateLimiter != nil {
		if err := t.cfg.RateLimiter.WaitN(ctx, len(records)); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		retry, err := t.post(ctx, path, body, len(records), attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
		if attempt < t.cfg.MaxAttempts {
			if err := t.cfg.Clock.Sleep(ctx, t.cfg.Backoff*time.Duration(attempt)); err != nil {
				return errors.Join(lastErr, err)
			}
		}
	}
	return lastErr
}

// post performs one attempt and reports whether a failure is worth retrying.
func (t *HTTPTransport) post(ctx context.Context, path string, body []byte, n, attempt int) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Host+path, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", LibName)

	t.cfg.Debug.LogRequest(req, n)

	start := time.Now()
	resp, err := t.cfg.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		t.cfg.Debug.LogError(attempt, err, duration)
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	t.cfg.Debug.LogResponse(resp, respBody, duration)

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("sink %s: %s", resp.Status, responseDetail(respBody))
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, responseDetail(respBody))
	}
	return false, nil
}

// responseDetail pulls a human-readable message out of an error body.
func responseDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return truncateBody(body)
	}
	for _, path := range []string{"detail", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			return v.String()
		}
	}
	return truncateBody(body)
}

func (t *HTTPTransport) Close() error {
	t.cfg.Client.CloseIdleConnections()
	return nil
}
