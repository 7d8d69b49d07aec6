package ledgerclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/infrastructure/config"
)

// maxResponseSize is the maximum allowed response size from the ledger
// service (10MB).
const maxResponseSize = 10 * 1024 * 1024

// Client talks to the ledger service. One instance is shared by all
// execution units; the token cache is its only shared mutable state.
type Client struct {
	cfg        *config.LedgerConfig
	httpClient *http.Client
	// batchClient carries the longer timeout: one physical batch call may
	// fold in many logical requests.
	batchClient *http.Client
	tokens      *tokenSource
	logger      *zap.Logger
}

// NewClient creates a ledger client. An incomplete ledger configuration is a
// hard error here, before any network use.
func NewClient(cfg *config.LedgerConfig, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrNotConfigured, err)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		batchClient: &http.Client{Timeout: cfg.BatchTimeout},
		tokens:      newTokenSource(cfg, httpClient),
		logger:      logger,
	}, nil
}

// APIRoot returns the mandant-scoped entity API root path.
func (c *Client) APIRoot() string {
	return "/api/entity/v1/mandants/" + c.cfg.Mandant
}

// Path returns the collection path for an entity, e.g. ".../Subjects".
func (c *Client) Path(entity string) string {
	return c.APIRoot() + "/" + entity
}

// KeyPath returns the single-record path for a scalar id predicate,
// e.g. ".../Subjects(Id=123)".
func (c *Client) KeyPath(entity string, id int64) string {
	return fmt.Sprintf("%s(Id=%d)", c.Path(entity), id)
}

// KeyPart is one component of a composite key predicate.
type KeyPart struct {
	Name  string
	Value any
}

// CompositeKeyPath renders a composite key predicate,
// e.g. ".../SalesOrders(SalesOrderId=5,SalesOrderBacklogId=0)".
func (c *Client) CompositeKeyPath(entity string, keys ...KeyPart) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k.Name, k.Value)
	}
	return fmt.Sprintf("%s(%s)", c.Path(entity), strings.Join(parts, ","))
}

// WorkflowPath returns the bound workflow action path for a sales order,
// e.g. ".../SalesOrders(...)/<namespace>.TriggerSalesOrderNextStep".
func (c *Client) WorkflowPath(key ledger.SalesOrderKey) string {
	base := c.CompositeKeyPath("SalesOrders",
		KeyPart{Name: "SalesOrderId", Value: key.OrderID},
		KeyPart{Name: "SalesOrderBacklogId", Value: key.BacklogID},
	)
	return base + "/" + c.cfg.WorkflowNamespace + ".TriggerSalesOrderNextStep"
}

// SalesOrderPath returns the single-record path for a sales order composite
// key.
func (c *Client) SalesOrderPath(key ledger.SalesOrderKey) string {
	return c.CompositeKeyPath("SalesOrders",
		KeyPart{Name: "SalesOrderId", Value: key.OrderID},
		KeyPart{Name: "SalesOrderBacklogId", Value: key.BacklogID},
	)
}

// Call executes one logical request immediately as a physical HTTP call and
// returns the decoded JSON body. Requests recorded into a batch go through
// Batch.Add instead; these are the only two call sites.
func (c *Client) Call(ctx context.Context, method, path string, params map[string]any) (map[string]any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	target := c.cfg.Host + path
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			target = target + "?" + queryString(params)
		}
	} else if params != nil {
		encoded, err := encodeParams(params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrRequestFailed, err)
	}

	c.logger.Debug("ledger call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if err := translateStatus(resp.StatusCode, method, path, payload); err != nil {
		return nil, err
	}

	decoded, err := decodeBody(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidResponse, err)
	}
	return decoded, nil
}

// translateStatus maps a non-2xx status to an error. A bad request whose body
// carries a structured message surfaces that message instead of the generic
// transport wording, so callers see the domain-specific reason.
func translateStatus(status int, method, path string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ledger.ErrNotFound, method, path)
	case status >= 400 && status < 500:
		if msg, ok := errorMessage(body); ok {
			return fmt.Errorf("%w: %s", ledger.ErrBadRequest, msg)
		}
		return fmt.Errorf("%w: %s %s returned HTTP %d", ledger.ErrBadRequest, method, path, status)
	default:
		return fmt.Errorf("%w: %s %s returned HTTP %d", ledger.ErrRequestFailed, method, path, status)
	}
}
