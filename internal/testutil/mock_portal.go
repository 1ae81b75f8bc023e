// Package testutil provides a mock DKHP portal for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Paths served by the mock. The portal base URL is URL()+PortalPrefix.
const (
	PortalPrefix = "/api/v1/dkhp"
	ExchangePath = "/get_token.php"
)

// MockResponse defines the behavior for a mock portal endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request seen by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// MockPortal is a configurable mock of the portal and the token exchange.
type MockPortal struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest
}

// NewMockPortal creates a new mock portal server.
func NewMockPortal() *MockPortal {
	mock := &MockPortal{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"not found"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPortal) URL() string {
	return m.server.URL
}

// BaseURL returns the portal base URL to configure a client with.
func (m *MockPortal) BaseURL() string {
	return m.server.URL + PortalPrefix
}

// ExchangeURL returns the token exchange URL to configure a client with.
func (m *MockPortal) ExchangeURL() string {
	return m.server.URL + ExchangePath
}

// Close shuts down the mock server.
func (m *MockPortal) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockPortal) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a portal endpoint such as "getDot".
// Paths starting with "/" are used as-is.
func (m *MockPortal) SetHandler(endpoint string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[m.path(endpoint)] = handler
}

// SetResponse configures a fixed response for an endpoint.
func (m *MockPortal) SetResponse(endpoint string, resp MockResponse) {
	m.SetHandler(endpoint, resp.Handler())
}

// SetEnvelope configures a successful envelope response with the given body.
func (m *MockPortal) SetEnvelope(endpoint string, body any) {
	m.SetResponse(endpoint, NewEnvelopeResponse(body))
}

// SetToken configures the exchange to issue token for any credentials.
// An empty token makes the exchange answer without one.
func (m *MockPortal) SetToken(token string) {
	m.SetHandler(ExchangePath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if token == "" {
			w.Write([]byte(`{"error":"wrong username or password"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}

// Requests returns a copy of the recorded requests.
func (m *MockPortal) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPortal) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestsTo returns the recorded requests for one endpoint.
func (m *MockPortal) RequestsTo(endpoint string) []RecordedRequest {
	path := m.path(endpoint)
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (m *MockPortal) path(endpoint string) string {
	if strings.HasPrefix(endpoint, "/") {
		return endpoint
	}
	return PortalPrefix + "/" + endpoint
}

// Handler returns an http handler serving the response.
func (resp MockResponse) Handler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// NewEnvelopeResponse creates a 200 response with {"success":true,"body":body}.
func NewEnvelopeResponse(body any) MockResponse {
	payload, _ := json.Marshal(map[string]any{"success": true, "body": body})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(payload),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRejectedResponse creates a 200 response with {"success":false,"message":message}.
func NewRejectedResponse(message string) MockResponse {
	payload, _ := json.Marshal(map[string]any{"success": false, "message": message})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(payload),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewStatusResponse creates a bare error response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"message":"error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewHTMLResponse creates a 200 response whose body is not JSON, like the portal's login page.
func NewHTMLResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<!DOCTYPE html><html><body>Đăng nhập</body></html>",
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
	}
}
