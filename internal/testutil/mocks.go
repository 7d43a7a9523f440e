package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockServer serves canned responses by path and records requests
type MockServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []MockRequest
}

// MockResponse holds response data for a path
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// MockRequest records a request made to the mock server
type MockRequest struct {
	Method string
	Path   string
}

// NewMockServer creates a mock HTTP server closed at test cleanup
func NewMockServer(t *testing.T) *MockServer {
	t.Helper()

	mock := &MockServer{responses: make(map[string]MockResponse)}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, MockRequest{Method: r.Method, Path: r.URL.Path})
		response, ok := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
			return
		}

		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		if response.StatusCode != 0 {
			w.WriteHeader(response.StatusCode)
		}
		w.Write(response.Body)
	}))

	t.Cleanup(mock.Server.Close)
	return mock
}

// SetJSON sets a 200 JSON response for path
func (m *MockServer) SetJSON(t *testing.T, path string, data any) {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal mock response: %v", err)
	}
	m.SetRaw(path, http.StatusOK, body, map[string]string{"Content-Type": "application/json"})
}

// SetRaw sets a raw response for path
func (m *MockServer) SetRaw(path string, statusCode int, body []byte, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{StatusCode: statusCode, Body: body, Headers: headers}
}

// SetError sets an error status for path
func (m *MockServer) SetError(path string, statusCode int) {
	m.SetRaw(path, statusCode, []byte(`{"message":"error"}`), nil)
}

// RequestCount returns the number of GET requests made to a path
func (m *MockServer) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if req.Path == path && req.Method == http.MethodGet {
			count++
		}
	}
	return count
}

// Endpoint returns the absolute URL for path
func (m *MockServer) Endpoint(path string) string {
	return m.Server.URL + path
}
