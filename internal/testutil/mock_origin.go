// Package testutil provides testing utilities for the ESI assembler.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock fragment response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable fragment server for testing.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount  int
	pathCounts    map[string]int
	lastHeader    http.Header
	lastUserAgent string
}

// NewMockOrigin creates a new mock fragment server. Unknown paths answer 404.
func NewMockOrigin() *MockOrigin {
	return newMockOrigin(httptest.NewServer)
}

// NewMockTLSOrigin creates a mock fragment server speaking HTTPS.
// Use Client() to obtain a client that trusts its certificate.
func NewMockTLSOrigin() *MockOrigin {
	return newMockOrigin(httptest.NewTLSServer)
}

func newMockOrigin(start func(http.Handler) *httptest.Server) *MockOrigin {
	mock := &MockOrigin{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		mock.lastUserAgent = r.UserAgent()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Client returns an HTTP client configured for the mock server.
func (m *MockOrigin) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastHeader = nil
	m.lastUserAgent = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
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
	})
}

// SetFragment serves body as text/html with status 200 at path.
func (m *MockOrigin) SetFragment(path, body string) {
	m.SetResponse(path, NewFragmentResponse(body))
}

// SetRedirect answers path with status and a Location header.
func (m *MockOrigin) SetRedirect(path string, status int, location string) {
	m.SetResponse(path, MockResponse{
		StatusCode: status,
		Body:       "moved",
		Headers:    map[string]string{"Location": location},
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockOrigin) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made for path.
func (m *MockOrigin) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastHeader returns the headers of the most recent request.
func (m *MockOrigin) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockOrigin) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// NewFragmentResponse creates a standard 200 OK HTML fragment response.
func NewFragmentResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
	}
}

// NewFlakyHandler fails with 503 for the first failures requests, then
// serves body.
func NewFlakyHandler(failures int, body string) http.HandlerFunc {
	var (
		mu    sync.Mutex
		calls int
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}
}
