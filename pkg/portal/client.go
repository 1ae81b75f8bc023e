// Package portal provides the HTTP client for the course-registration portal API
// and its credential-exchange endpoint, with error classification and metrics.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dkhp_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dkhp_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dkhp_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Default upstream locations.
const (
	DefaultBaseURL     = "https://portal.ut.edu.vn/api/v1/dkhp"
	DefaultExchangeURL = "https://api.ngnsusinn.io.vn/get_token_uth.php"
)

// HTTPDoer is the subset of *http.Client used by the client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Observer receives the outcome of every upstream call.
// statusCode is 0 when no response was received.
type Observer interface {
	Observe(ctx context.Context, endpoint string, statusCode int, err error)
}

// Client talks to the portal API on behalf of a caller-supplied bearer token.
// It holds no per-user state and is safe for concurrent use.
type Client struct {
	httpClient HTTPDoer
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the portal API root, e.g. https://portal.ut.edu.vn/api/v1/dkhp
	BaseURL string

	// ExchangeURL is the credential-exchange endpoint used by Login.
	ExchangeURL string

	// UserAgent header sent upstream
	UserAgent string

	// Timeout bounds a single upstream call (ignored when HTTPClient is set).
	Timeout time.Duration

	// HTTPClient overrides the default *http.Client (for testing).
	HTTPClient HTTPDoer

	// Observer is notified of every call outcome. Optional.
	Observer Observer
}

// DefaultConfig returns the configuration pointing at the production portal.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		ExchangeURL: DefaultExchangeURL,
		UserAgent:   "dkhp-proxy/0.1.0",
		Timeout:     30 * time.Second,
	}
}

// New creates a new portal client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.ExchangeURL == "" {
		return nil, fmt.Errorf("exchange url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if _, err := url.ParseRequestURI(cfg.ExchangeURL); err != nil {
		return nil, fmt.Errorf("parse exchange url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.Timeout <= 0 {
			return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
		}
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     log.With().Str("component", "portal-client").Logger(),
	}, nil
}

type requestIDKey struct{}

// WithRequestID returns a context whose upstream calls carry the given X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Request performs an authenticated portal call and decodes the response envelope.
// It fails with *UpstreamError when url or token is empty, when the upstream answers
// outside 2xx, when the transport fails, or when the body is not a JSON envelope.
// The envelope's success flag is not interpreted here.
func (c *Client) Request(ctx context.Context, rawURL, token, method string, body any) (*Envelope, error) {
	return c.request(ctx, endpointName(rawURL), rawURL, token, method, body)
}

func (c *Client) request(ctx context.Context, endpoint, rawURL, token, method string, body any) (*Envelope, error) {
	if rawURL == "" {
		return nil, &UpstreamError{ErrorClass: ErrorClassContract, Message: "URL and token are required", Err: ErrMissingURL}
	}
	if token == "" {
		return nil, &UpstreamError{ErrorClass: ErrorClassContract, Message: "URL and token are required", Err: ErrMissingToken}
	}
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil && hasBody(method) {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &UpstreamError{ErrorClass: ErrorClassContract, Message: "invalid upstream request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if hasBody(method) {
		req.Header.Set("Content-Type", "application/json")
	}

	var env Envelope
	if err := c.do(req, endpoint, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// do executes req and decodes a JSON response into out.
// Responses are never cached: seat counts and eligibility change constantly.
func (c *Client) do(req *http.Request, endpoint string, out any) (err error) {
	ctx := req.Context()
	status := 0

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			upstreamErrorsTotal.WithLabelValues(string(upErr.ErrorClass)).Inc()
		}
		if c.config.Observer != nil {
			c.config.Observer.Observe(ctx, endpoint, status, err)
		}
	}()

	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if id := requestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing upstream request")

	resp, reqErr := c.httpClient.Do(req)
	if reqErr != nil {
		// *url.Error embeds the full URL, which carries credentials for the exchange call.
		var urlErr *url.Error
		if errors.As(reqErr, &urlErr) {
			reqErr = urlErr.Err
		}
		c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("Upstream request failed")
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return newNetworkError(reqErr)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

	if status < 200 || status > 299 {
		upErr := newStatusError(status)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", status).
			Str("error_class", string(upErr.ErrorClass)).
			Msg("Upstream request error")
		return upErr
	}

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return newNetworkError(readErr)
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Upstream returned malformed JSON")
		return newMalformedError(err)
	}
	return nil
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// endpointName returns the last path segment of rawURL, used as a low-cardinality metric label.
func endpointName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return "unknown"
	}
	return path
}
