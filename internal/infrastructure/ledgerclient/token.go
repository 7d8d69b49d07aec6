package ledgerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/infrastructure/config"
)

// renewMargin is subtracted from the advertised token lifetime so a token is
// never handed out within 30s of its actual expiry.
const renewMargin = 30 * time.Second

const discoveryPath = "/.well-known/openid-configuration"

// tokenSource caches one bearer token per client and renews it via the
// client-credentials exchange. All state is guarded by mu, so concurrent
// callers under contention observe the token renewed by the first of them.
type tokenSource struct {
	cfg  *config.LedgerConfig
	http *http.Client
	now  func() time.Time

	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

func newTokenSource(cfg *config.LedgerConfig, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		cfg:  cfg,
		http: httpClient,
		now:  time.Now,
	}
}

// Token returns a bearer token valid for at least renewMargin. Renewal errors
// propagate unmodified; there is no retry here.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.value != "" && t.now().Before(t.expiresAt) {
		return t.value, nil
	}

	endpoint, err := t.discoverEndpoint(ctx)
	if err != nil {
		return "", err
	}

	value, expiresIn, err := t.exchange(ctx, endpoint)
	if err != nil {
		return "", err
	}

	t.value = value
	t.expiresAt = t.now().Add(time.Duration(expiresIn)*time.Second - renewMargin)
	return t.value, nil
}

// discoverEndpoint reads the token endpoint address from the well-known
// discovery document.
func (t *tokenSource) discoverEndpoint(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.Host+discoveryPath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrAuthFailed, err)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: discovery: %v", ledger.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: discovery returned HTTP %d", ledger.ErrAuthFailed, resp.StatusCode)
	}

	var doc struct {
		TokenEndpoint string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("%w: discovery: %v", ledger.ErrAuthFailed, err)
	}
	if doc.TokenEndpoint == "" {
		return "", fmt.Errorf("%w: discovery document carries no token_endpoint", ledger.ErrAuthFailed)
	}
	return doc.TokenEndpoint, nil
}

// exchange performs the client-credentials grant against the discovered
// endpoint.
func (t *tokenSource) exchange(ctx context.Context, endpoint string) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ledger.ErrAuthFailed, err)
	}
	req.SetBasicAuth(t.cfg.Username, t.cfg.Password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ledger.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ledger.ErrAuthFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: HTTP %d", ledger.ErrAuthFailed, resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ledger.ErrAuthFailed, err)
	}
	if grant.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: response carries no access_token", ledger.ErrAuthFailed)
	}
	return grant.AccessToken, grant.ExpiresIn, nil
}
