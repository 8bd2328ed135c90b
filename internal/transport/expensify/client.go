// Package expensify is a rate-limited client for the Expensify Integration Server.
package expensify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/metrics"
)

const (
	// DefaultBaseURL is the single Integration Server endpoint.
	DefaultBaseURL = "https://integrations.expensify.com/Integration-Server/ExpensifyIntegrations"

	requestTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
	maxErrorBody   = 512
	formField      = "requestJobDescription"
)

// Limiter gates outbound requests.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config holds the client settings.
type Config struct {
	PartnerUserID     string
	PartnerUserSecret string
	EmployeeEmail     string
	BaseURL           string
	HTTPClient        *http.Client
	Limiter           Limiter
	Logger            *zap.Logger
}

// Client submits expenses and receipts. Create and upload share one limiter.
type Client struct {
	baseURL     string
	credentials credentials
	email       string
	http        *http.Client
	limiter     Limiter
	logger      *zap.Logger
}

// NewClient creates a Client. Limiter is required.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
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
	return &Client{
		baseURL:     baseURL,
		credentials: credentials{PartnerUserID: cfg.PartnerUserID, PartnerUserSecret: cfg.PartnerUserSecret},
		email:       cfg.EmployeeEmail,
		http:        httpClient,
		limiter:     cfg.Limiter,
		logger:      logger,
	}
}

type credentials struct {
	PartnerUserID     string `json:"partnerUserID"`
	PartnerUserSecret string `json:"partnerUserSecret"`
}

type jobDescription struct {
	Type          string      `json:"type"`
	Credentials   credentials `json:"credentials"`
	InputSettings any         `json:"inputSettings"`
}

type createSettings struct {
	Type            string        `json:"type"`
	EmployeeEmail   string        `json:"employeeEmail"`
	TransactionList []transaction `json:"transactionList"`
}

type transaction struct {
	Merchant string `json:"merchant"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Created  string `json:"created"`
	Category string `json:"category"`
	Comment  string `json:"comment"`
}

type receiptSettings struct {
	Type          string `json:"type"`
	EmployeeEmail string `json:"employeeEmail"`
	TransactionID string `json:"transactionID"`
}

// Create creates a single expense.
func (c *Client) Create(ctx context.Context, e domain.Expense) (Response, error) {
	c.logger.Info("Creating expense",
		zap.String("merchant", e.Merchant),
		zap.String("amount", domain.FormatMinorUnits(e.Amount)),
		zap.String("currency", e.Currency),
	)

	payload, err := c.job(createSettings{
		Type:          "create",
		EmployeeEmail: c.email,
		TransactionList: []transaction{{
			Merchant: e.Merchant,
			Amount:   e.Amount,
			Currency: e.Currency,
			Created:  e.Date.Format(time.DateOnly),
			Category: e.Category,
			Comment:  e.Comment,
		}},
	})
	if err != nil {
		return Response{}, err
	}

	form := url.Values{formField: {string(payload)}}
	return c.do(ctx, "create", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// UploadReceipt attaches the expense's receipt document to an existing transaction.
func (c *Client) UploadReceipt(ctx context.Context, e domain.Expense, transactionID string) (Response, error) {
	data, err := os.ReadFile(filepath.Clean(e.ReceiptPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Response{}, fmt.Errorf("%w: %s", domain.ErrReceiptNotFound, e.ReceiptPath)
		}
		return Response{}, fmt.Errorf("read receipt: %w", err)
	}

	c.logger.Info("Uploading receipt",
		zap.String("merchant", e.Merchant),
		zap.String("receipt", e.ReceiptPath),
		zap.String("transaction_id", transactionID),
	)

	payload, err := c.job(receiptSettings{
		Type:          "receiptUpload",
		EmployeeEmail: c.email,
		TransactionID: transactionID,
	})
	if err != nil {
		return Response{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField(formField, string(payload)); err != nil {
		return Response{}, fmt.Errorf("write form field: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(e.ReceiptPath)))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return Response{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Response{}, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Response{}, fmt.Errorf("close multipart: %w", err)
	}

	return c.do(ctx, "receiptUpload", &body, mw.FormDataContentType())
}

// SubmitExpense creates the expense, then uploads its receipt when the backend returned a
// transaction id and the receipt file exists.
func (c *Client) SubmitExpense(ctx context.Context, e domain.Expense) (SubmitResult, error) {
	created, err := c.Create(ctx, e)
	if err != nil {
		return SubmitResult{}, err
	}

	result := SubmitResult{Create: created, TransactionID: created.TransactionID()}
	if result.TransactionID == "" {
		c.logger.Warn("No transaction id in create response, skipping receipt upload",
			zap.String("merchant", e.Merchant))
		return result, nil
	}
	if e.ReceiptPath == "" || !fileExists(e.ReceiptPath) {
		c.logger.Warn("Receipt file missing, skipping upload",
			zap.String("merchant", e.Merchant),
			zap.String("receipt", e.ReceiptPath))
		return result, nil
	}

	receipt, err := c.UploadReceipt(ctx, e, result.TransactionID)
	if err != nil {
		return result, fmt.Errorf("upload receipt for transaction %s: %w", result.TransactionID, err)
	}
	result.Receipt = &receipt
	return result, nil
}

// Submit is SubmitExpense reduced to what the run orchestrator records.
func (c *Client) Submit(ctx context.Context, e domain.Expense) (domain.Submission, error) {
	res, err := c.SubmitExpense(ctx, e)
	return domain.Submission{TransactionID: res.TransactionID, ReceiptAttached: res.Receipt != nil}, err
}

// Ping reports whether the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("expensify unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) job(settings any) ([]byte, error) {
	payload, err := json.Marshal(jobDescription{
		Type:          "create",
		Credentials:   c.credentials,
		InputSettings: settings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal job description: %w", err)
	}
	return payload, nil
}

// do performs one rate-limited POST and decodes the envelope.
func (c *Client) do(ctx context.Context, reqType string, body io.Reader, contentType string) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return Response{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("Expensify request", zap.String("type", reqType))

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(reqType, "transport_error").Inc()
		return Response{}, fmt.Errorf("expensify %s: %w", reqType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(reqType, "transport_error").Inc()
		return Response{}, fmt.Errorf("expensify %s: read body: %w", reqType, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendRequestsTotal.WithLabelValues(reqType, "http_error").Inc()
		return Response{}, &domain.VendorError{Vendor: "expensify", Status: resp.StatusCode, Body: truncate(raw)}
	}

	parsed := decodeResponse(raw)
	if parsed.ResponseCode >= 400 {
		metrics.BackendRequestsTotal.WithLabelValues(reqType, "app_error").Inc()
		return parsed, &domain.BackendError{Code: parsed.ResponseCode, Message: parsed.ResponseMessage}
	}

	metrics.BackendRequestsTotal.WithLabelValues(reqType, "ok").Inc()
	return parsed, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
