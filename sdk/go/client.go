package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"loyaltykit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the LoyaltyKit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

func (c *Client) validateSubject(centerID, customerID string) error {
	if strings.TrimSpace(centerID) == "" {
		return ErrEmptyCenterID
	}
	if strings.TrimSpace(customerID) == "" {
		return ErrEmptyCustomerID
	}
	return nil
}

// RecordSync registers one device sync for a customer and returns the
// resulting streak, XP and level information.
func (c *Client) RecordSync(ctx context.Context, centerID, customerID string) (SyncResult, error) {
	if err := c.validateSubject(centerID, customerID); err != nil {
		return SyncResult{}, err
	}
	u := fmt.Sprintf("%s/centers/%s/customers/%s/sync",
		c.baseURL, url.PathEscape(centerID), url.PathEscape(customerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return SyncResult{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SyncResult{}, err
	}
	defer resp.Body.Close()

	var result SyncResult
	if err := decodeJSON(resp, &result); err != nil {
		return SyncResult{}, err
	}
	return result, nil
}

// UpdateProgress pushes an achievement's progress toward its unlock target.
func (c *Client) UpdateProgress(ctx context.Context, centerID, customerID, achievementType string, progress int) error {
	if err := c.validateSubject(centerID, customerID); err != nil {
		return err
	}
	if strings.TrimSpace(achievementType) == "" {
		return errors.New("achievement type is required")
	}
	u, err := url.Parse(fmt.Sprintf("%s/centers/%s/customers/%s/achievements/%s",
		c.baseURL, url.PathEscape(centerID), url.PathEscape(customerID), url.PathEscape(achievementType)))
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("progress", fmt.Sprintf("%d", progress))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		OK bool `json:"ok"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return err
	}
	if !body.OK {
		return errors.New("progress not applied")
	}
	return nil
}

// State fetches the current loyalty snapshot for a customer.
func (c *Client) State(ctx context.Context, centerID, customerID string) (Snapshot, error) {
	if err := c.validateSubject(centerID, customerID); err != nil {
		return Snapshot{}, err
	}
	u := fmt.Sprintf("%s/centers/%s/customers/%s",
		c.baseURL, url.PathEscape(centerID), url.PathEscape(customerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Snapshot{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := decodeJSON(resp, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Leaderboard fetches the top n customers ranked by XP.
func (c *Client) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	u, err := url.Parse(c.baseURL + "/leaderboard")
	if err != nil {
		return nil, err
	}
	if n > 0 {
		q := u.Query()
		q.Set("n", fmt.Sprintf("%d", n))
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
