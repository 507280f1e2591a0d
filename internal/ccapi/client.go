package ccapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds Cloud Commerce API configuration
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// IsConfigured returns true if API credentials are set
func (c Config) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Client is the Cloud Commerce API client
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Cloud Commerce API client. When credentials are
// set, requests are authorised with a client-credentials token that is
// refreshed as it expires.
func NewClient(ctx context.Context, cfg Config) *Client {
	base := &http.Client{Timeout: 30 * time.Second}
	httpClient := base
	if cfg.IsConfigured() {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = 30 * time.Second
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// getJSON makes an API request and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// OrdersForDispatch retrieves orders dispatched in the last days
func (c *Client) OrdersForDispatch(ctx context.Context, orderType, days int) ([]DispatchOrder, error) {
	q := url.Values{}
	q.Set("order_type", strconv.Itoa(orderType))
	q.Set("number_of_days", strconv.Itoa(days))

	var result ordersResponse
	if err := c.getJSON(ctx, "/api/orders/dispatch?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("failed to get dispatched orders: %w", err)
	}
	return result.Orders, nil
}

// CourierRules retrieves the account's courier rules
func (c *Client) CourierRules(ctx context.Context) ([]CourierRule, error) {
	var result courierRulesResponse
	if err := c.getJSON(ctx, "/api/courier-rules", &result); err != nil {
		return nil, fmt.Errorf("failed to get courier rules: %w", err)
	}
	return result.Rules, nil
}

// Product retrieves an inventory product
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	var result Product
	if err := c.getJSON(ctx, "/api/products/"+url.PathEscape(id), &result); err != nil {
		return Product{}, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return result, nil
}

// ProductOptions retrieves the option values set on an inventory product
func (c *Client) ProductOptions(ctx context.Context, id string) ([]ProductOption, error) {
	var result optionsResponse
	if err := c.getJSON(ctx, "/api/products/"+url.PathEscape(id)+"/options", &result); err != nil {
		return nil, fmt.Errorf("failed to get options for product %s: %w", id, err)
	}
	return result.Options, nil
}
