package ledgerclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/ledger"
)

const batchPath = "/$batch"

// LogicalRequest is one recorded request of a batch envelope. Correlation is
// an opaque caller reference used to recover which domain entity produced a
// given outcome without re-parsing payload bodies.
type LogicalRequest struct {
	Method      string
	Path        string
	Params      map[string]any
	Correlation any
}

// Batch records logical requests issued inside one batch scope. It is scoped
// to a single execution unit; it is not safe for concurrent use and does not
// need to be.
type Batch struct {
	requests []LogicalRequest
}

// Add records one logical request. No result is available until the scope
// closes and the batch is flushed.
func (b *Batch) Add(method, path string, params map[string]any, correlation any) {
	b.requests = append(b.requests, LogicalRequest{
		Method:      method,
		Path:        path,
		Params:      params,
		Correlation: correlation,
	})
}

// Len returns the number of recorded requests.
func (b *Batch) Len() int {
	return len(b.requests)
}

// Outcome is the decoded result of one logical request, positionally
// correlated to it.
type Outcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    LogicalRequest
}

// Success reports a 2xx status.
func (o Outcome) Success() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Created reports a 201 status.
func (o Outcome) Created() bool {
	return o.StatusCode == http.StatusCreated
}

// JSON decodes the outcome body into snake_case keys.
func (o Outcome) JSON() (map[string]any, error) {
	return decodeBody(o.Body)
}

// ErrorMessage returns the structured error message of an unsuccessful
// outcome, or "" when the body carries none.
func (o Outcome) ErrorMessage() string {
	if o.Success() {
		return ""
	}
	msg, _ := errorMessage(o.Body)
	return msg
}

// ErrorPayload echoes the request together with status and message (or the
// raw body when no structured message exists), for the report log.
func (o Outcome) ErrorPayload() map[string]any {
	message := o.ErrorMessage()
	if message == "" {
		message = string(o.Body)
	}
	return map[string]any{
		"method":  o.Request.Method,
		"path":    o.Request.Path,
		"params":  o.Request.Params,
		"status":  o.StatusCode,
		"message": message,
	}
}

type batchScopeKey struct{}

// RunBatch opens a batch scope, runs fn to record logical requests, then
// executes them as one multipart call and returns the outcomes in request
// order. An empty scope returns an empty slice without any network call.
// Opening a scope while one is already recording on the same context chain
// is a programming error and fails immediately.
func (c *Client) RunBatch(ctx context.Context, fn func(ctx context.Context, b *Batch) error) ([]Outcome, error) {
	if ctx.Value(batchScopeKey{}) != nil {
		return nil, ledger.ErrNestedBatch
	}
	ctx = context.WithValue(ctx, batchScopeKey{}, true)

	b := &Batch{}
	if err := fn(ctx, b); err != nil {
		return nil, err
	}
	if len(b.requests) == 0 {
		return []Outcome{}, nil
	}
	return c.flush(ctx, b)
}

// flush assembles the envelope into one physical POST and decodes the
// multipart response back into positionally paired outcomes.
func (c *Client) flush(ctx context.Context, b *Batch) ([]Outcome, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	// The random component keeps boundary collisions with part content
	// negligible.
	boundary := "batch-" + uuid.NewString()

	var body bytes.Buffer
	for _, r := range b.requests {
		part, err := encodePart(r.Method, r.Path, r.Params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
		}
		body.WriteString("--" + boundary + "\r\n")
		body.Write(part)
		body.WriteString("\r\n")
	}
	body.WriteString("--" + boundary + "--\r\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+c.APIRoot()+batchPath, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+boundary)

	resp, err := c.batchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: batch call returned HTTP %d", ledger.ErrRequestFailed, resp.StatusCode)
	}

	outcomes, err := decodeBatchResponse(payload, resp.Header.Get("Content-Type"), boundary, b.requests)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("ledger batch flushed",
		zap.Int("requests", len(b.requests)),
		zap.Int("outcomes", len(outcomes)),
	)
	return outcomes, nil
}

// decodeBatchResponse splits the multipart body and parses each fragment as a
// literal embedded HTTP response. A part count differing from the request
// count is a fatal protocol violation, never a partial result.
func decodeBatchResponse(body []byte, contentType, requestBoundary string, requests []LogicalRequest) ([]Outcome, error) {
	boundary := requestBoundary
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if b := params["boundary"]; b != "" {
				boundary = b
			}
		}
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	outcomes := make([]Outcome, 0, len(requests))
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrPartCountMismatch, err)
		}

		embedded, err := http.ReadResponse(bufio.NewReader(part), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: unparsable embedded response: %v", ledger.ErrPartCountMismatch, err)
		}
		partBody, err := io.ReadAll(embedded.Body)
		embedded.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrPartCountMismatch, err)
		}

		if len(outcomes) < len(requests) {
			outcomes = append(outcomes, Outcome{
				StatusCode: embedded.StatusCode,
				Header:     embedded.Header,
				Body:       partBody,
				Request:    requests[len(outcomes)],
			})
		} else {
			outcomes = append(outcomes, Outcome{
				StatusCode: embedded.StatusCode,
				Header:     embedded.Header,
				Body:       partBody,
			})
		}
	}

	if len(outcomes) != len(requests) {
		return nil, fmt.Errorf("%w: sent %d requests, received %d parts",
			ledger.ErrPartCountMismatch, len(requests), len(outcomes))
	}
	return outcomes, nil
}
