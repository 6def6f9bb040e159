// Package prediction talks to the external prediction service. Responses come
// back in several shapes; everything is normalized into a single Result at
// this boundary so downstream code never branches on shape again.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Status is the external job status, normalized.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// ErrMissingOutput indicates a succeeded response carried no usable output
// reference in any of the accepted shapes.
var ErrMissingOutput = errors.New("prediction succeeded but returned no output reference")

// APIError is a non-2xx response from the prediction service. 4xx responses
// are never retried; a malformed request cannot become valid by retrying.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prediction API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the error is transport-level (timeout, connection
// error, 5xx) rather than a validation-type rejection.
func (e *APIError) Retryable() bool { return e.StatusCode >= 500 }

// malformedError marks a 2xx response whose body failed normalization. The
// service will keep returning the same body for the same request, so dispatch
// never retries it.
type malformedError struct{ err error }

func (e *malformedError) Error() string { return e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// Result is the normalized view of a prediction response.
type Result struct {
	ID              string
	Status          Status
	OutputRef       string
	DurationSeconds float64
	Progress        int
	PollingURL      string
	ErrorMessage    string
}

// Terminal reports whether the job is in a state after which it is no longer
// polled.
func (r *Result) Terminal() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Config configures the prediction client.
type Config struct {
	BaseURL string
	Token   string
	// Attempts is the dispatch retry budget, delay between attempts fixed.
	Attempts   int
	RetryDelay time.Duration
}

// Client issues dispatch and poll calls against the prediction service.
type Client struct {
	baseURL    string
	token      string
	attempts   int
	retryDelay time.Duration
	httpClient *http.Client

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a prediction client. Zero retry settings take the
// defaults of 3 attempts, 2 seconds apart.
func NewClient(cfg Config) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{},
		sleep:      sleepCtx,
	}
}

// Dispatch POSTs {version, input} to the prediction service, retrying
// transport failures up to the attempt budget. timeout bounds each individual
// attempt; voice-cloning payloads are large base64 blobs and need the longer
// budget.
func (c *Client) Dispatch(ctx context.Context, version string, input map[string]any, timeout time.Duration) (*Result, error) {
	body, err := json.Marshal(map[string]any{
		"version": version,
		"input":   input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		res, err := c.post(ctx, bytes.NewReader(body), timeout)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		var malformed *malformedError
		if errors.As(err, &malformed) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Printf("[Prediction] Dispatch attempt %d/%d failed: %v", attempt, c.attempts, err)
		if attempt < c.attempts {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("dispatch failed after %d attempts: %w", c.attempts, lastErr)
}

// Poll fetches the current state of a job via its polling handle.
func (c *Client) Poll(ctx context.Context, pollingURL string, timeout time.Duration) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pollingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll prediction: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: preview(raw)}
	}
	return Normalize(raw)
}

func (c *Client) post(ctx context.Context, body io.Reader, timeout time.Duration) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/predictions", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send prediction request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: preview(raw)}
	}
	res, err := Normalize(raw)
	if err != nil {
		return nil, &malformedError{err: err}
	}
	return res, nil
}

// rawPrediction covers every response shape the service is known to produce.
type rawPrediction struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Output     json.RawMessage `json:"output"`
	PollingURL string          `json:"polling_url"`
	URLs       struct {
		Get string `json:"get"`
	} `json:"urls"`
	Error    string `json:"error"`
	Progress *int   `json:"progress"`
	Metrics  struct {
		AudioDuration float64 `json:"audio_duration"`
		PredictTime   float64 `json:"predict_time"`
	} `json:"metrics"`
}

type rawOutput struct {
	URL      string  `json:"url"`
	AudioURL string  `json:"audio_url"`
	VoiceID  string  `json:"voice_id"`
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// Normalize converts a raw prediction response into a Result. A succeeded
// response with no extractable output reference returns ErrMissingOutput.
func Normalize(raw []byte) (*Result, error) {
	var p rawPrediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prediction response: %w", err)
	}

	res := &Result{
		ID:              p.ID,
		ErrorMessage:    p.Error,
		DurationSeconds: p.Metrics.AudioDuration,
		PollingURL:      p.PollingURL,
	}
	if res.PollingURL == "" {
		res.PollingURL = p.URLs.Get
	}
	if p.Progress != nil {
		res.Progress = *p.Progress
	}

	switch strings.ToLower(p.Status) {
	case "succeeded", "success", "completed":
		res.Status = StatusSucceeded
	case "failed", "error":
		res.Status = StatusFailed
	case "canceled", "cancelled":
		res.Status = StatusCanceled
	case "starting", "queued", "pending":
		res.Status = StatusStarting
	case "processing", "running":
		res.Status = StatusProcessing
	default:
		return nil, fmt.Errorf("unexpected prediction status %q", p.Status)
	}

	if len(p.Output) > 0 {
		// Output comes back as a bare string, an object with url/audio_url,
		// a voice id, or transcript text with a duration.
		var s string
		if err := json.Unmarshal(p.Output, &s); err == nil {
			res.OutputRef = s
		} else {
			var out rawOutput
			if err := json.Unmarshal(p.Output, &out); err == nil {
				switch {
				case out.URL != "":
					res.OutputRef = out.URL
				case out.AudioURL != "":
					res.OutputRef = out.AudioURL
				case out.VoiceID != "":
					res.OutputRef = out.VoiceID
				case out.Text != "":
					res.OutputRef = out.Text
				}
				if out.Duration > 0 {
					res.DurationSeconds = out.Duration
				}
			}
		}
	}

	if res.Status == StatusSucceeded && res.OutputRef == "" {
		return nil, ErrMissingOutput
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
