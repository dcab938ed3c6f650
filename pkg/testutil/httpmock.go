package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

// errNoResponse is returned by MockTransport when nothing is queued and no
// default is set.
var errNoResponse = errors.New("mock transport: no response queued")

// MockResponse is one canned answer. A non-nil Error fails the round trip
// instead of producing a response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Error      error
}

// MockTransport is an http.RoundTripper that answers from a FIFO queue and
// records every request with its body. It stands in for the ClickHouse HTTP
// interface in storage tests.
type MockTransport struct {
	mu       sync.Mutex
	queue    []MockResponse
	fallback *MockResponse
	requests []*http.Request
	bodies   [][]byte
}

// NewMockTransport creates an empty transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// AddResponse queues resp for the next unanswered request.
func (m *MockTransport) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
}

// SetDefaultResponse answers every request once the queue is empty.
func (m *MockTransport) SetDefaultResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &resp
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	var resp MockResponse
	switch {
	case len(m.queue) > 0:
		resp, m.queue = m.queue[0], m.queue[1:]
	case m.fallback != nil:
		resp = *m.fallback
	default:
		return nil, errNoResponse
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	header := make(http.Header, len(resp.Headers))
	for k, v := range resp.Headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
		Request:    req,
	}, nil
}

// Requests returns every request seen so far.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// LastRequestBody returns the body of the most recent request.
func (m *MockTransport) LastRequestBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return nil
	}
	return m.bodies[len(m.bodies)-1]
}

// MockJSONEachRow answers with one JSON object per line, the way ClickHouse
// does for FORMAT JSONEachRow.
func MockJSONEachRow(rows ...any) MockResponse {
	var b strings.Builder
	for _, row := range rows {
		line, _ := json.Marshal(row)
		b.Write(line)
		b.WriteByte('\n')
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       b.String(),
		Headers:    map[string]string{"Content-Type": "application/x-ndjson"},
	}
}

// MockErrorResponse answers with a plain-text error body.
func MockErrorResponse(statusCode int, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body:       message,
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}

// MockConnectionError fails the round trip as a refused connection would.
func MockConnectionError() MockResponse {
	return MockResponse{Error: errors.New("dial tcp: connection refused")}
}
