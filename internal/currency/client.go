package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public exchange-rate API used when none is configured
const DefaultBaseURL = "https://api.frankfurter.app"

// Client fetches exchange rates to a target currency
type Client struct {
	baseURL    string
	target     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a rate client converting to target (e.g. "GBP")
func NewClient(baseURL, target string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		target:     target,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate returns the value of one unit of currencyCode in the target currency
func (c *Client) Rate(ctx context.Context, currencyCode string) (decimal.Decimal, error) {
	if currencyCode == c.target {
		return decimal.NewFromInt(1), nil
	}

	q := url.Values{}
	q.Set("from", currencyCode)
	q.Set("to", c.target)
	reqURL := c.baseURL + "/latest?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch %s rate: %w", currencyCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("rate API error %d: %s", resp.StatusCode, string(body))
	}

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate response: %w", err)
	}

	rate, ok := result.Rates[c.target]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate response for %s has no %s rate", currencyCode, c.target)
	}
	c.logger.Info("resolved currency rate",
		zap.String("currency", currencyCode),
		zap.String("target", c.target),
		zap.String("rate", rate.String()),
		zap.String("date", result.Date))
	return rate, nil
}
