// Package remote implements the resilient HTTP transport to the
// backend.
//
// Every outbound request carries the correlation id in the
// X-Correlation-ID header and expects it echoed back; a missing echo
// is logged as a contract violation but does not fail the call.
// General outbound calls retry on server errors and rate limiting with
// a linearly increasing backoff; peer exchanges never retry — retries
// for those belong to the caller's policy layer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/metrics"
	"github.com/planline/planlink/types"
)

// Correlation headers per the backend wire contract.
const (
	// HeaderCorrelationID carries the request correlation id and must
	// be echoed by the backend.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is assigned by the backend per request.
	HeaderRequestID = "X-Request-ID"
)

// Backend routes consumed by this core.
const (
	// HealthPath is the backend reachability probe endpoint.
	HealthPath = "/health"
	// CommandPath is the AI command endpoint.
	CommandPath = "/v1/ai/commands"
	// AnalysisPath is the project validation analysis endpoint.
	AnalysisPath = "/v1/validation/analyze/project"
)

// DefaultTimeout is the default per-request timeout for payload sends.
const DefaultTimeout = 30 * time.Second

// DefaultProbeTimeout is the default timeout for health probes.
const DefaultProbeTimeout = 2 * time.Second

// DefaultRetryAttempts is the default total attempt count for
// retryable outbound calls.
const DefaultRetryAttempts = 3

// DefaultRetryBaseDelay is the backoff unit: the wait before attempt
// n+1 is DefaultRetryBaseDelay * n.
const DefaultRetryBaseDelay = 350 * time.Millisecond

// Config configures the remote transport.
type Config struct {
	// BaseURL is the backend base URL (required).
	BaseURL string
	// Timeout is the per-request timeout for payload sends (default 30s).
	Timeout time.Duration
	// ProbeTimeout is the health probe timeout (default 2s).
	ProbeTimeout time.Duration
	// RetryAttempts is the total attempt count for retryable calls (default 3).
	RetryAttempts int
	// RetryBaseDelay is the linear backoff unit (default 350ms).
	RetryBaseDelay time.Duration
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
}

// Transport performs HTTP request/response exchanges with the backend.
type Transport struct {
	config    Config
	client    *http.Client
	logger    *log.Logger
	collector *metrics.Collector
}

// StatusError is returned for non-2xx HTTP responses. The response
// body is captured verbatim so callers see exactly what the backend
// said. Wrapping the status code allows callers to distinguish
// retriable (5xx, 429) from non-retriable failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status warrants a retry: server
// errors and rate limiting only.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// NewTransport creates a remote transport from the given config.
// Returns an error if the base URL is empty or unparseable.
func NewTransport(cfg Config, logger *log.Logger, collector *metrics.Collector) (*Transport, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote transport requires a base URL")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote transport: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Transport{
		config:    cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		collector: collector,
	}, nil
}

// Exchange posts a request envelope to the given path and decodes the
// response envelope. Used for peer-style request/response traffic; no
// retries are performed here. All failures are captured into a
// failure Response.
func (t *Transport) Exchange(ctx context.Context, path string, msg *types.Message) *types.Response {
	body, err := json.Marshal(msg)
	if err != nil {
		return types.Fail(msg.MessageType, msg.CorrelationID, fmt.Sprintf("encode request: %v", err))
	}

	respBody, err := t.doRequest(ctx, http.MethodPost, path, body, msg.CorrelationID)
	if err != nil {
		wrapped := classifyTransportErr(err)
		return types.Fail(msg.MessageType, msg.CorrelationID, wrapped.Error())
	}

	var resp types.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		wrapped := types.WrapError(types.KindProtocolMismatch, "malformed response body", err)
		return types.Fail(msg.MessageType, msg.CorrelationID, wrapped.Error())
	}
	return &resp
}

// Post sends an opaque payload to the given path with the bounded
// retry policy: retry only on 5xx or 429, up to the configured attempt
// count, with linearly increasing backoff. Each retry is logged with
// the attempt number and the status observed.
func (t *Transport) Post(ctx context.Context, path string, payload []byte, correlationID string) ([]byte, error) {
	logger := t.logger.WithCorrelation(correlationID)

	var lastErr error
	for attempt := 1; attempt <= t.config.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, types.WrapError(types.KindTransportUnavailable, "remote call cancelled", err)
		}

		// Linear backoff before retries, not before the first attempt.
		if attempt > 1 {
			backoff := t.config.RetryBaseDelay * time.Duration(attempt-1)
			select {
			case <-ctx.Done():
				return nil, types.WrapError(types.KindTransportUnavailable, "remote call cancelled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := t.doRequest(ctx, http.MethodPost, path, payload, correlationID)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if !statusErr.Retryable() {
				return nil, err
			}
			if attempt < t.config.RetryAttempts {
				t.collector.IncRemoteRetry()
				logger.Warn("retrying remote call", map[string]any{
					"path":    path,
					"attempt": attempt,
					"status":  statusErr.Code,
				})
			}
			continue
		}

		// Network-level failure: retryable for remote calls.
		if attempt < t.config.RetryAttempts {
			t.collector.IncRemoteRetry()
			logger.Warn("retrying remote call", map[string]any{
				"path":    path,
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
	}

	return nil, classifyTransportErr(fmt.Errorf("failed after %d attempts: %w", t.config.RetryAttempts, lastErr))
}

// Healthy reports backend reachability via GET /health. Never returns
// an error and completes within the probe timeout.
func (t *Transport) Healthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, t.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, t.config.BaseURL+HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// doRequest performs a single HTTP exchange and returns the response
// body on 2xx. Non-2xx responses become a StatusError carrying the
// body verbatim.
func (t *Transport) doRequest(ctx context.Context, method, path string, payload []byte, correlationID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCorrelationID, correlationID)
	for key, value := range t.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(resp.Body)

	t.checkCorrelationEcho(resp, correlationID)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// checkCorrelationEcho logs a contract violation when the backend does
// not echo the correlation id. The call itself is not failed.
func (t *Transport) checkCorrelationEcho(resp *http.Response, correlationID string) {
	echo := resp.Header.Get(HeaderCorrelationID)
	if echo != correlationID {
		t.logger.WithCorrelation(correlationID).Warn("backend did not echo correlation id", map[string]any{
			"echoed":     echo,
			"request_id": resp.Header.Get(HeaderRequestID),
		})
	}
}

// classifyTransportErr wraps non-status errors as transport
// unavailability; StatusError passes through unchanged.
func classifyTransportErr(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	return types.WrapError(types.KindTransportUnavailable, "backend unreachable", err)
}
