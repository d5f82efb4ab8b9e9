package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration, keyed by path
	Responses map[string][]byte

	// Error injection, keyed by path
	Errors map[string]error

	// Request tracking
	Requests []Request

	token  string
	closed bool
}

// Request tracks a call made through the mock.
type Request struct {
	Path     string
	Query    url.Values
	Filename string
	Data     []byte

	SingleAttempt bool
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses: make(map[string][]byte),
		Errors:    make(map[string]error),
	}
}

// Call mocks an RPC.
func (m *MockTransport) Call(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return m.record(ctx, Request{Path: path, Query: query})
}

// Upload mocks a multipart upload.
func (m *MockTransport) Upload(ctx context.Context, path string, query url.Values, filename string, data []byte) ([]byte, error) {
	return m.record(ctx, Request{
		Path:     path,
		Query:    query,
		Filename: filename,
		Data:     append([]byte(nil), data...),
	})
}

func (m *MockTransport) record(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("transport closed")
	}

	req.SingleAttempt = IsSingleAttempt(ctx)
	m.Requests = append(m.Requests, req)

	if err, ok := m.Errors[req.Path]; ok {
		return nil, err
	}

	resp, ok := m.Responses[req.Path]
	if !ok {
		return nil, &APIError{StatusCode: 404, Message: "no mock response for " + req.Path}
	}
	return resp, nil
}

// AddResponse sets the body returned for a path.
func (m *MockTransport) AddResponse(path string, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[path] = []byte(body)
}

// AddError makes every call to path fail with err.
func (m *MockTransport) AddError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[path] = err
}

// RequestCount returns how many calls hit path.
func (m *MockTransport) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.Requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// SetToken records the token.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// GetToken returns the recorded token.
func (m *MockTransport) GetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
