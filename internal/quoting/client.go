// Package quoting is the single authenticated gateway to the third-party
// field-service CRM that prices, quotes, schedules, and books cleaning jobs.
package quoting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahsanfaraz-WebDev/clensy-booking-api/internal/observability/metrics"
	"github.com/ahsanfaraz-WebDev/clensy-booking-api/pkg/logging"
)

const tokenExpiryBuffer = 60 * time.Second

// Config holds configuration for the quoting client.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is an authenticated HTTP client for the quoting/booking CRM.
// Token acquisition and the postal-code set fetch are each guarded so
// concurrent first callers share one network call.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.WizardMetrics

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	tokenFetch  *inflight[string]

	postalMu    sync.Mutex
	postalSet   map[string]struct{}
	postalFetch *inflight[map[string]struct{}]
}

// inflight is a shared pending call: latecomers wait on done instead of
// issuing their own request.
type inflight[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewClient creates a quoting client.
func NewClient(cfg Config, logger *logging.Logger, m *metrics.WizardMetrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("quoting: BaseURL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("quoting: credentials are required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: m,
	}, nil
}

// GetScopeGroups returns the service groups with nested scopes and frequencies.
func (c *Client) GetScopeGroups(ctx context.Context) ([]ScopeGroup, error) {
	var groups []ScopeGroup
	if err := c.call(ctx, "scope-groups", http.MethodGet, "/scope-groups", nil, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ValidPostalCode reports whether the postal code is in the service area.
// The full code set is fetched once and cached for the client's lifetime.
func (c *Client) ValidPostalCode(ctx context.Context, code string) (bool, error) {
	set, err := c.postalCodes(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[strings.TrimSpace(code)]
	return ok, nil
}

func (c *Client) postalCodes(ctx context.Context) (map[string]struct{}, error) {
	c.postalMu.Lock()
	if c.postalSet != nil {
		set := c.postalSet
		c.postalMu.Unlock()
		return set, nil
	}
	if c.postalFetch != nil {
		pending := c.postalFetch
		c.postalMu.Unlock()
		select {
		case <-pending.done:
			return pending.val, pending.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	pending := &inflight[map[string]struct{}]{done: make(chan struct{})}
	c.postalFetch = pending
	c.postalMu.Unlock()

	var codes []string
	err := c.call(ctx, "postal-codes", http.MethodGet, "/postal-codes", nil, nil, &codes)

	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[strings.TrimSpace(code)] = struct{}{}
	}

	c.postalMu.Lock()
	if err == nil {
		c.postalSet = set
	}
	c.postalFetch = nil
	c.postalMu.Unlock()

	pending.val, pending.err = set, err
	close(pending.done)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// GetQuestions returns the dynamic questions for the given scopes,
// ordered by sort order.
func (c *Client) GetQuestions(ctx context.Context, scopeIDs []string) ([]Question, error) {
	query := url.Values{}
	query.Set("scopeIds", strings.Join(scopeIDs, ","))
	var questions []Question
	if err := c.call(ctx, "questions", http.MethodGet, "/questions", query, nil, &questions); err != nil {
		return nil, err
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].SortOrder < questions[j].SortOrder
	})
	return questions, nil
}

// UpsertLead creates or updates a lead and returns its id. The id may
// arrive at the top level of the response or nested under the result
// wrapper; both are handled here so callers see one shape.
func (c *Client) UpsertLead(ctx context.Context, req LeadUpsertRequest) (string, error) {
	raw, err := c.callRaw(ctx, "lead-upsert", http.MethodPost, "/leads", nil, req)
	if err != nil {
		return "", err
	}
	id := extractID(raw, func(r leadUpsertResult) string {
		if r.LeadID != "" {
			return r.LeadID
		}
		return r.ID
	})
	if id == "" {
		return "", fmt.Errorf("quoting: lead upsert returned no lead id")
	}
	return id, nil
}

// GetRateModifications returns the add-ons offered for the scope group,
// filtered to the chosen scopes and de-duplicated by display name.
func (c *Client) GetRateModifications(ctx context.Context, scopeGroupID string, scopeIDs []string) ([]RateModification, error) {
	query := url.Values{}
	query.Set("scopeGroupId", scopeGroupID)
	var mods []RateModification
	if err := c.call(ctx, "rate-modifications", http.MethodGet, "/rate-modifications", query, nil, &mods); err != nil {
		return nil, err
	}

	chosen := make(map[string]struct{}, len(scopeIDs))
	for _, id := range scopeIDs {
		chosen[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(mods))
	out := make([]RateModification, 0, len(mods))
	for _, mod := range mods {
		if _, ok := chosen[mod.ScopeID]; !ok {
			continue
		}
		if _, dup := seen[mod.Name]; dup {
			continue
		}
		seen[mod.Name] = struct{}{}
		out = append(out, mod)
	}
	return out, nil
}

// CalculatePrice runs a price calculation for the given selections.
func (c *Client) CalculatePrice(ctx context.Context, req PriceRequest) (*PriceResult, error) {
	var result PriceResult
	if err := c.call(ctx, "calculate-price", http.MethodPost, "/calculate-price", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpsertQuote creates or updates a quote and returns the assigned quote id.
func (c *Client) UpsertQuote(ctx context.Context, req QuoteUpsertRequest) (string, error) {
	raw, err := c.callRaw(ctx, "quote-upsert", http.MethodPost, "/quotes", nil, req)
	if err != nil {
		return "", err
	}
	id := extractID(raw, func(r quoteUpsertResult) string {
		if r.QuoteID != "" {
			return r.QuoteID
		}
		return r.ID
	})
	if id == "" {
		return "", fmt.Errorf("quoting: quote upsert returned no quote id")
	}
	return id, nil
}

// GetAvailability returns the serviceable calendar dates for a scope
// group, normalized to YYYY-MM-DD strings. The CRM answers with either a
// bare date list or per-date slot objects; both shapes collapse here.
func (c *Client) GetAvailability(ctx context.Context, scopeGroupID string, hours int) ([]string, error) {
	query := url.Values{}
	query.Set("scopeGroupId", scopeGroupID)
	query.Set("hours", fmt.Sprintf("%d", hours))

	raw, err := c.callRaw(ctx, "availability", http.MethodGet, "/availability", query, nil)
	if err != nil {
		return nil, err
	}

	var dates []string
	if err := json.Unmarshal(raw, &dates); err == nil {
		return dates, nil
	}
	var slots []availabilitySlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("quoting: unrecognized availability shape: %w", err)
	}
	dates = make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Date != "" {
			dates = append(dates, s.Date)
		}
	}
	return dates, nil
}

// GetBillingTerms lists the CRM's payment-terms options.
func (c *Client) GetBillingTerms(ctx context.Context) ([]BillingTerm, error) {
	var terms []BillingTerm
	if err := c.call(ctx, "billing-terms", http.MethodGet, "/billing-terms", nil, nil, &terms); err != nil {
		return nil, err
	}
	return terms, nil
}

// BookQuote finalizes the booking and returns the booking id.
func (c *Client) BookQuote(ctx context.Context, req BookingRequest) (string, error) {
	raw, err := c.callRaw(ctx, "book-quote", http.MethodPost, "/book-quote", nil, req)
	if err != nil {
		return "", err
	}
	id := extractID(raw, func(r bookingResult) string {
		if r.BookingID != "" {
			return r.BookingID
		}
		return r.ID
	})
	if id == "" {
		return "", fmt.Errorf("quoting: booking returned no booking id")
	}
	return id, nil
}

// CreateNote attaches a free-text note to a lead or booking. Note
// creation is a best-effort audit trail: failures are logged, never
// returned.
func (c *Client) CreateNote(ctx context.Context, req NoteRequest) {
	if _, err := c.callRaw(ctx, "note-create", http.MethodPost, "/notes", nil, req); err != nil {
		c.logger.Warn("note creation failed", "lead_id", req.LeadID, "booking_id", req.BookingID, "error", err)
	}
}

// call executes an authenticated request and decodes the envelope result
// into out.
func (c *Client) call(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) error {
	raw, err := c.callRaw(ctx, operation, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("quoting: %s: decode result: %w", operation, err)
	}
	return nil
}

// callRaw executes an authenticated request, transparently retrying once
// with a fresh token on 401, and returns the raw envelope result.
func (c *Client) callRaw(ctx context.Context, operation, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.doOnce(ctx, operation, method, path, query, body, false)
	c.metrics.ObserveCRMCall(operation, time.Since(start).Seconds())
	if err != nil {
		c.metrics.ObserveCRMFailure(operation)
	}
	return raw, err
}

func (c *Client) doOnce(ctx context.Context, operation, method, path string, query url.Values, body interface{}, retried bool) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("quoting: %s: authenticate: %w", operation, err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("quoting: %s: marshal request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("quoting: %s: create request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quoting: %s: request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("quoting: %s: read response: %w", operation, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		c.invalidateToken(token)
		return c.doOnce(ctx, operation, method, path, query, body, true)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("quoting: %s: status %d: %s", operation, resp.StatusCode, msg)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("quoting: %s: decode envelope: %w", operation, err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, fmt.Errorf("quoting: %s: %s", operation, msg)
	}
	return env.Result, nil
}

// token returns a valid bearer token, acquiring one via password grant if
// the cached token is missing or near expiry. Concurrent callers share a
// single in-flight acquisition.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Add(tokenExpiryBuffer).Before(c.tokenExpiry) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	if c.tokenFetch != nil {
		pending := c.tokenFetch
		c.mu.Unlock()
		select {
		case <-pending.done:
			return pending.val, pending.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	pending := &inflight[string]{done: make(chan struct{})}
	c.tokenFetch = pending
	c.mu.Unlock()

	token, expiry, err := c.authenticate(ctx)

	c.mu.Lock()
	if err == nil {
		c.accessToken = token
		c.tokenExpiry = expiry
	}
	c.tokenFetch = nil
	c.mu.Unlock()

	pending.val, pending.err = token, err
	close(pending.done)
	return token, err
}

// invalidateToken drops the cached token if it still matches the one the
// failed request used.
func (c *Client) invalidateToken(token string) {
	c.mu.Lock()
	if c.accessToken == token {
		c.accessToken = ""
		c.tokenExpiry = time.Time{}
	}
	c.mu.Unlock()
}

// authenticate performs the password-grant token exchange.
func (c *Client) authenticate(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("auth failed (status %d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", time.Time{}, fmt.Errorf("decode auth response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("auth response missing access token")
	}
	return tokenResp.AccessToken, time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}

// extractID decodes an id that may live at the top level of the result or
// nested one level under it.
func extractID[T any](raw json.RawMessage, pick func(T) string) string {
	var direct T
	if err := json.Unmarshal(raw, &direct); err == nil {
		if id := pick(direct); id != "" {
			return id
		}
	}
	var wrapped struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Result) > 0 {
		var nested T
		if err := json.Unmarshal(wrapped.Result, &nested); err == nil {
			return pick(nested)
		}
	}
	return ""
}
