// Package openai reads organization costs from the OpenAI Admin API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
	DefaultBaseURL = "https://api.openai.com"

	vendor         = "openai"
	requestTimeout = 30 * time.Second
	maxBuckets     = 180
)

var _ costreport.PageFetcher = (*Client)(nil)

// Config holds the Admin API settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

// Client calls /v1/organization/costs.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
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
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{apiKey: cfg.APIKey, baseURL: baseURL, http: httpClient, logger: logger, now: now}
}

// costsResponse is one page of /v1/organization/costs. amount.value is in dollars.
type costsResponse struct {
	Data []struct {
		StartTime int64 `json:"start_time"`
		Results   []struct {
			Amount struct {
				Value    decimal.Decimal `json:"value"`
				Currency string          `json:"currency"`
			} `json:"amount"`
		} `json:"results"`
	} `json:"data"`
	HasMore  bool    `json:"has_more"`
	NextPage *string `json:"next_page"`
}

// FetchPage implements costreport.PageFetcher with daily buckets.
func (c *Client) FetchPage(ctx context.Context, window domain.Window, cursor string) (costreport.Page, error) {
	limit := window.Days()
	if limit > maxBuckets {
		limit = maxBuckets
	}
	if limit < 1 {
		limit = 1
	}

	q := url.Values{}
	q.Set("start_time", strconv.FormatInt(window.Start.Unix(), 10))
	q.Set("end_time", strconv.FormatInt(window.End.Unix(), 10))
	q.Set("bucket_width", "1d")
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("page", cursor)
	}

	body, err := rest.Get(ctx, c.http, vendor, c.baseURL+"/v1/organization/costs", q, c.headers())
	if err != nil {
		return costreport.Page{}, err
	}

	var parsed costsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return costreport.Page{}, fmt.Errorf("openai: parsing costs: %w", err)
	}

	page := costreport.Page{HasMore: parsed.HasMore}
	if parsed.NextPage != nil {
		page.NextPage = *parsed.NextPage
	}
	for _, bucket := range parsed.Data {
		for _, r := range bucket.Results {
			page.Amounts = append(page.Amounts, r.Amount.Value)
		}
	}

	c.logger.Debug("Costs page fetched",
		zap.Int("buckets", len(parsed.Data)),
		zap.Int("results", len(page.Amounts)),
		zap.Bool("has_more", page.HasMore),
	)
	return page, nil
}

// Probe issues a minimal one-bucket costs request to check the key.
func (c *Client) Probe(ctx context.Context) error {
	q := url.Values{}
	q.Set("start_time", strconv.FormatInt(c.now().Add(-24*time.Hour).Unix(), 10))
	q.Set("limit", "1")
	if _, err := rest.Get(ctx, c.http, vendor, c.baseURL+"/v1/organization/costs", q, c.headers()); err != nil {
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
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}
