// Package anthropic reads organization cost reports from the Anthropic Admin API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/costreport"
	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/transport/rest"
)

const (
	// DefaultBaseURL is the public API host.
	DefaultBaseURL = "https://api.anthropic.com"

	vendor         = "anthropic"
	apiVersion     = "2023-06-01"
	requestTimeout = 30 * time.Second
	timeLayout     = "2006-01-02T15:04:05Z"
)

var _ costreport.PageFetcher = (*Client)(nil)

// Config holds the Admin API settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the cost_report and organizations/me endpoints.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a Client.
func NewClient(cfg *Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{apiKey: cfg.APIKey, baseURL: baseURL, http: httpClient, logger: logger}
}

// costReportResponse is one page of /v1/organizations/cost_report.
// Amounts are decimal strings in cents.
type costReportResponse struct {
	Data []struct {
		StartingAt string `json:"starting_at"`
		Results    []struct {
			Amount   decimal.Decimal `json:"amount"`
			Currency string          `json:"currency"`
		} `json:"results"`
	} `json:"data"`
	HasMore  bool    `json:"has_more"`
	NextPage *string `json:"next_page"`
}

// FetchPage implements costreport.PageFetcher with daily buckets.
func (c *Client) FetchPage(ctx context.Context, window domain.Window, cursor string) (costreport.Page, error) {
	q := url.Values{}
	q.Set("starting_at", window.Start.UTC().Format(timeLayout))
	q.Set("ending_at", window.End.UTC().Format(timeLayout))
	q.Set("bucket_width", "1d")
	if cursor != "" {
		q.Set("page", cursor)
	}

	body, err := rest.Get(ctx, c.http, vendor, c.baseURL+"/v1/organizations/cost_report", q, c.headers())
	if err != nil {
		return costreport.Page{}, err
	}

	var parsed costReportResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return costreport.Page{}, fmt.Errorf("anthropic: parsing cost report: %w", err)
	}

	page := costreport.Page{HasMore: parsed.HasMore}
	if parsed.NextPage != nil {
		page.NextPage = *parsed.NextPage
	}
	for _, bucket := range parsed.Data {
		for _, r := range bucket.Results {
			page.Amounts = append(page.Amounts, r.Amount)
		}
	}

	c.logger.Debug("Cost report page fetched",
		zap.Int("buckets", len(parsed.Data)),
		zap.Int("results", len(page.Amounts)),
		zap.Bool("has_more", page.HasMore),
	)
	return page, nil
}

// Me checks that the admin key is accepted.
func (c *Client) Me(ctx context.Context) error {
	if _, err := rest.Get(ctx, c.http, vendor, c.baseURL+"/v1/organizations/me", nil, c.headers()); err != nil {
		return err
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("x-api-key", c.apiKey)
	h.Set("anthropic-version", apiVersion)
	return h
}
