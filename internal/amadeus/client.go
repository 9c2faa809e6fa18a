// Package amadeus is a small typed client for the Amadeus self-service API.
package amadeus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// TestBaseURL is the free test environment.
	TestBaseURL = "https://test.api.amadeus.com"

	defaultTimeout = 10 * time.Second
	// tokenSafetyMargin expires cached tokens before the server does.
	tokenSafetyMargin = 60 * time.Second
)

// Config holds client credentials and endpoints.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client is an authenticated Amadeus API client. Access tokens are fetched
// with the client-credentials grant and reused until shortly before expiry.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a client. An empty BaseURL selects the test environment.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = TestBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// accessToken returns a cached token or fetches a new one. The mutex is held
// during the refresh so concurrent callers share one token request.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}
	if !c.Configured() {
		return "", ErrMissingCredentials
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("amadeus: creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("amadeus: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("amadeus: reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w (HTTP %d)", ErrToken, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: token", ErrDecode)
	}

	parsed := gjson.ParseBytes(body)
	token := parsed.Get("access_token").String()
	if token == "" {
		return "", fmt.Errorf("%w: empty access_token", ErrDecode)
	}
	ttl := time.Duration(parsed.Get("expires_in").Int())*time.Second - tokenSafetyMargin
	if ttl < 0 {
		ttl = 0
	}

	c.token = token
	c.expiresAt = c.now().Add(ttl)
	return token, nil
}

// doRequest performs an authenticated GET and returns the raw body.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("amadeus: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.amadeus+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amadeus: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("amadeus: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, &HTTPError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// SearchLocations queries /v1/reference-data/locations for cities and
// airports matching keyword, starting at offset.
func (c *Client) SearchLocations(ctx context.Context, keyword string, offset, limit int) (*LocationsPage, error) {
	params := url.Values{
		"keyword":     {keyword},
		"subType":     {"CITY,AIRPORT"},
		"page[limit]": {strconv.Itoa(limit)},
	}
	if offset > 0 {
		params.Set("page[offset]", strconv.Itoa(offset))
	}

	body, err := c.doRequest(ctx, "/v1/reference-data/locations", params)
	if err != nil {
		return nil, err
	}
	return c.parseLocations(body)
}

func (c *Client) parseLocations(body []byte) (*LocationsPage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: locations", ErrDecode)
	}
	root := gjson.ParseBytes(body)

	page := &LocationsPage{}
	root.Get("data").ForEach(func(_, item gjson.Result) bool {
		code := item.Get("iataCode").String()
		if code == "" {
			return true
		}
		page.Locations = append(page.Locations, Location{
			ID:          item.Get("id").String(),
			IATACode:    code,
			SubType:     item.Get("subType").String(),
			Name:        item.Get("name").String(),
			CityName:    firstNonEmpty(item.Get("address.cityName").String(), item.Get("cityName").String()),
			CityCode:    firstNonEmpty(item.Get("address.cityCode").String(), item.Get("cityCode").String()),
			CountryCode: firstNonEmpty(item.Get("address.countryCode").String(), item.Get("countryCode").String()),
		})
		return true
	})
	page.NextOffset = c.parseNextOffset(root.Get("meta.links.next").String())
	return page, nil
}

// parseNextOffset extracts page[offset] from a meta.links.next URL.
func (c *Client) parseNextOffset(next string) *int {
	if next == "" {
		return nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil
	}
	u, err := base.Parse(next)
	if err != nil {
		return nil
	}
	raw := u.Query().Get("page[offset]")
	if raw == "" {
		return nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &offset
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
