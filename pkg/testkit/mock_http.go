package testkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Stub is one canned upstream response.
type Stub struct {
	Method string
	// Prefix matches the start of the request URL; empty matches any.
	Prefix string
	Status int
	Body   any
}

// MockTransport answers outgoing requests from stubs, first match wins.
// Unmatched requests get a 404 and are recorded as misses.
type MockTransport struct {
	mu     sync.Mutex
	stubs  []Stub
	calls  []string
	misses []string
}

func NewMockTransport(stubs ...Stub) *MockTransport {
	return &MockTransport{stubs: stubs}
}

// Client returns an *http.Client using mt.
func (mt *MockTransport) Client() *http.Client { return &http.Client{Transport: mt} }

func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	line := req.Method + " " + req.URL.String()
	mt.calls = append(mt.calls, line)
	for _, s := range mt.stubs {
		if s.Method != "" && !strings.EqualFold(s.Method, req.Method) {
			continue
		}
		if s.Prefix != "" && !strings.HasPrefix(req.URL.String(), s.Prefix) {
			continue
		}
		return respond(req, s)
	}
	mt.misses = append(mt.misses, line)
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{"message":"no stub"}`)),
		Request:    req,
	}, nil
}

// Calls lists "METHOD url" for every request seen.
func (mt *MockTransport) Calls() []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return append([]string(nil), mt.calls...)
}

// Misses lists the requests no stub matched.
func (mt *MockTransport) Misses() []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return append([]string(nil), mt.misses...)
}

func respond(req *http.Request, s Stub) (*http.Response, error) {
	code := s.Status
	if code == 0 {
		code = http.StatusOK
	}
	var body []byte
	switch b := s.Body.(type) {
	case nil:
	case string:
		body = []byte(b)
	case []byte:
		body = b
	default:
		var err error
		if body, err = json.Marshal(b); err != nil {
			return nil, fmt.Errorf("testkit: encode stub body: %w", err)
		}
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}, nil
}
