// Package ledgertest provides a scriptable in-memory stand-in for the ledger
// service, covering the OAuth discovery and token endpoints, plain entity
// calls and the multipart batch endpoint.
package ledgertest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// Call is one recorded entity request, with the JSON body decoded exactly as
// it appeared on the wire (camelCase keys).
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   map[string]any
}

// Response is one scripted response.
type Response struct {
	Status int
	Body   string
}

// Server simulates the ledger service on a local listener.
type Server struct {
	HTTP *httptest.Server

	// ExpiresIn is the token lifetime advertised by the token endpoint.
	ExpiresIn int
	// BatchFn maps the parsed parts of a batch envelope to per-part
	// responses. Returning fewer responses than parts truncates the
	// multipart answer. When nil every part is answered 201 {}.
	BatchFn func(parts []Call) []Response
	// BatchStatus, when set, short-circuits the batch endpoint with a plain
	// status response instead of a multipart body.
	BatchStatus int
	// BreakBoundary advertises a boundary in the batch response header that
	// differs from the one used in the body.
	BreakBoundary bool

	mu        sync.Mutex
	exchanges int
	calls     []Call
	batches   [][]Call
	stubs     map[string][]Response
}

// New starts a fake ledger server.
func New() *Server {
	s := &Server{
		ExpiresIn: 3600,
		stubs:     make(map[string][]Response),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("/oauth/token", s.handleToken)
	mux.HandleFunc("/", s.handle)
	s.HTTP = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.HTTP.Close()
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.HTTP.URL
}

// Stub queues one scripted response for a method and path. Stubs pop in FIFO
// order; an exhausted queue falls back to the default response.
func (s *Server) Stub(method, path string, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.stubs[key] = append(s.stubs[key], resp)
}

// Exchanges returns the number of token exchanges performed.
func (s *Server) Exchanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// Calls returns the recorded entity calls, excluding auth and batch traffic.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Batches returns the number of batch envelopes received.
func (s *Server) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// LastBatch returns the parts of the most recent batch envelope.
func (s *Server) LastBatch() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil
	}
	return s.batches[len(s.batches)-1]
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"token_endpoint":%q}`, s.URL()+"/oauth/token")
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	s.exchanges++
	n := s.exchanges
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d}`, n, s.ExpiresIn)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/$batch") {
		s.handleBatch(w, r)
		return
	}

	payload, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &body)
	}
	call := Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	resp, ok := s.popStub(r.Method, r.URL.Path)
	s.mu.Unlock()

	if !ok {
		resp = defaultResponse(r.Method)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}

// popStub must be called with mu held.
func (s *Server) popStub(method, path string) (Response, bool) {
	key := method + " " + path
	queue := s.stubs[key]
	if len(queue) == 0 {
		return Response{}, false
	}
	s.stubs[key] = queue[1:]
	return queue[0], true
}

func defaultResponse(method string) Response {
	if method == http.MethodPost {
		return Response{Status: http.StatusCreated, Body: "{}"}
	}
	return Response{Status: http.StatusOK, Body: "{}"}
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.BatchStatus != 0 {
		w.WriteHeader(s.BatchStatus)
		return
	}

	parts, err := parseEnvelope(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.batches = append(s.batches, parts)
	s.mu.Unlock()

	responses := make([]Response, len(parts))
	for i := range responses {
		responses[i] = Response{Status: http.StatusCreated, Body: "{}"}
	}
	if s.BatchFn != nil {
		responses = s.BatchFn(parts)
	}

	const boundary = "ledgertest-response"
	var body bytes.Buffer
	for _, resp := range responses {
		body.WriteString("--" + boundary + "\r\n")
		body.WriteString("Content-Type: application/http\r\n\r\n")
		fmt.Fprintf(&body, "HTTP/1.1 %d %s\r\n", resp.Status, http.StatusText(resp.Status))
		body.WriteString("Content-Type: application/json\r\n")
		fmt.Fprintf(&body, "Content-Length: %d\r\n\r\n", len(resp.Body))
		body.WriteString(resp.Body)
		body.WriteString("\r\n")
	}
	body.WriteString("--" + boundary + "--\r\n")

	advertised := boundary
	if s.BreakBoundary {
		advertised = "some-other-boundary"
	}
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+advertised)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

// parseEnvelope splits a multipart/mixed request into the embedded logical
// requests. Each part body is a literal serialized HTTP request.
func parseEnvelope(r *http.Request) ([]Call, error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("missing boundary")
	}

	reader := multipart.NewReader(r.Body, boundary)
	var parts []Call
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		call, err := parseEmbedded(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, call)
	}
	return parts, nil
}

func parseEmbedded(raw []byte) (Call, error) {
	head, payload, _ := bytes.Cut(raw, []byte("\r\n\r\n"))
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return Call{}, fmt.Errorf("empty part")
	}
	fields := strings.SplitN(lines[0], " ", 3)
	if len(fields) < 3 {
		return Call{}, fmt.Errorf("malformed request line %q", lines[0])
	}

	target, err := url.Parse(fields[1])
	if err != nil {
		return Call{}, err
	}
	var body map[string]any
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &body)
	}
	return Call{
		Method: fields[0],
		Path:   target.Path,
		Query:  target.Query(),
		Body:   body,
	}, nil
}
