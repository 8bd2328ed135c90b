package expensify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Helpers ---

type countingLimiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLimiter) Acquire(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.err
}

type capturedRequest struct {
	job      map[string]any
	fileName string
	fileType string
	fileBody string
}

// fakeBackend replies with the given bodies in order and records decoded requests.
type fakeBackend struct {
	t        *testing.T
	mu       sync.Mutex
	replies  []string
	requests []capturedRequest
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		f.t.Errorf("unexpected method %s", r.Method)
	}

	var cr capturedRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			f.t.Errorf("parse multipart: %v", err)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			f.t.Errorf("missing file part: %v", err)
			return
		}
		body, _ := io.ReadAll(file)
		cr.fileName = hdr.Filename
		cr.fileType = hdr.Header.Get("Content-Type")
		cr.fileBody = string(body)
	} else if err := r.ParseForm(); err != nil {
		f.t.Errorf("parse form: %v", err)
		return
	}
	if err := json.Unmarshal([]byte(r.FormValue("requestJobDescription")), &cr.job); err != nil {
		f.t.Errorf("decode job description: %v", err)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, cr)
	reply := `{"responseCode":200}`
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	_, _ = w.Write([]byte(reply))
}

func newTestClient(t *testing.T, url string, limiter Limiter) *Client {
	t.Helper()
	return NewClient(&Config{
		PartnerUserID:     "partner",
		PartnerUserSecret: "secret",
		EmployeeEmail:     "me@example.com",
		BaseURL:           url,
		Limiter:           limiter,
		Logger:            zap.NewNop(),
	})
}

func writeReceipt(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anthropic_2026-03.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testExpense(receipt string) domain.Expense {
	return domain.Expense{
		Merchant:    "Anthropic",
		Amount:      12345,
		Currency:    "USD",
		Date:        time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Category:    "Software",
		Comment:     "Anthropic API usage for 2026-03",
		ReceiptPath: receipt,
	}
}

// --- Tests ---

func TestCreate_SendsJobDescription(t *testing.T) {
	backend := &fakeBackend{t: t}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	limiter := &countingLimiter{}
	c := newTestClient(t, srv.URL, limiter)

	if _, err := c.Create(context.Background(), testExpense("")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if limiter.calls != 1 {
		t.Errorf("expected 1 limiter admission, got %d", limiter.calls)
	}
	job := backend.requests[0].job
	if job["type"] != "create" {
		t.Errorf("unexpected job type %v", job["type"])
	}
	creds := job["credentials"].(map[string]any)
	if creds["partnerUserID"] != "partner" || creds["partnerUserSecret"] != "secret" {
		t.Errorf("unexpected credentials %v", creds)
	}
	settings := job["inputSettings"].(map[string]any)
	if settings["type"] != "create" || settings["employeeEmail"] != "me@example.com" {
		t.Errorf("unexpected input settings %v", settings)
	}
	tx := settings["transactionList"].([]any)[0].(map[string]any)
	if tx["merchant"] != "Anthropic" || tx["amount"] != float64(12345) || tx["currency"] != "USD" {
		t.Errorf("unexpected transaction %v", tx)
	}
	if tx["created"] != "2026-03-01" || tx["category"] != "Software" {
		t.Errorf("unexpected transaction date/category %v", tx)
	}
}

func TestCreate_ApplicationError(t *testing.T) {
	backend := &fakeBackend{t: t, replies: []string{`{"responseCode": 410, "responseMessage": "Invalid credentials"}`}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	_, err := c.Create(context.Background(), testExpense(""))
	var be *domain.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if be.Code != 410 || !strings.Contains(err.Error(), "Invalid credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreate_HTTPErrorIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	_, err := c.Create(context.Background(), testExpense(""))
	if errors.Is(err, domain.ErrBackend) {
		t.Fatal("HTTP failure must not be reported as an application error")
	}
	var ve *domain.VendorError
	if !errors.As(err, &ve) || ve.Status != http.StatusBadGateway {
		t.Fatalf("expected VendorError 502, got %v", err)
	}
}

func TestCreate_PlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK, queued"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	resp, err := c.Create(context.Background(), testExpense(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ResponseCode != 200 || resp.ResponseMessage != "OK, queued" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCreate_LimiterErrorStopsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{err: context.Canceled})

	if _, err := c.Create(context.Background(), testExpense("")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("request must not be sent without admission")
	}
}

func TestSubmitExpense_FullFlow(t *testing.T) {
	backend := &fakeBackend{t: t, replies: []string{
		`{"responseCode":200,"transactionList":[{"transactionID":"txn_456"}]}`,
		`{"responseCode":200,"responseMessage":"receipt attached"}`,
	}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	limiter := &countingLimiter{}
	c := newTestClient(t, srv.URL, limiter)

	res, err := c.SubmitExpense(context.Background(), testExpense(writeReceipt(t)))
	if err != nil {
		t.Fatalf("SubmitExpense failed: %v", err)
	}
	if res.TransactionID != "txn_456" {
		t.Errorf("expected txn_456, got %q", res.TransactionID)
	}
	if res.Receipt == nil || res.Receipt.ResponseMessage != "receipt attached" {
		t.Errorf("expected receipt result, got %+v", res.Receipt)
	}
	if res.Create.TransactionID() != "txn_456" {
		t.Errorf("create result not kept separately: %+v", res.Create)
	}
	if limiter.calls != 2 {
		t.Errorf("expected 2 admissions, got %d", limiter.calls)
	}

	upload := backend.requests[1]
	settings := upload.job["inputSettings"].(map[string]any)
	if settings["type"] != "receiptUpload" || settings["transactionID"] != "txn_456" {
		t.Errorf("unexpected upload settings %v", settings)
	}
	if upload.fileName != "anthropic_2026-03.pdf" || upload.fileType != "application/pdf" {
		t.Errorf("unexpected file part %q %q", upload.fileName, upload.fileType)
	}
	if upload.fileBody != "%PDF-1.4 test" {
		t.Errorf("unexpected file body %q", upload.fileBody)
	}
}

func TestSubmitExpense_ErrorSkipsUpload(t *testing.T) {
	backend := &fakeBackend{t: t, replies: []string{`{"responseCode":410,"responseMessage":"Invalid credentials"}`}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	_, err := c.SubmitExpense(context.Background(), testExpense(writeReceipt(t)))
	if err == nil || !strings.Contains(err.Error(), "Invalid credentials") {
		t.Fatalf("expected Invalid credentials error, got %v", err)
	}
	if len(backend.requests) != 1 {
		t.Errorf("expected no upload call, got %d requests", len(backend.requests))
	}
}

func TestSubmitExpense_NoTransactionID(t *testing.T) {
	backend := &fakeBackend{t: t, replies: []string{`{"responseCode":200,"transactionList":[]}`}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	res, err := c.SubmitExpense(context.Background(), testExpense(writeReceipt(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TransactionID != "" || res.Receipt != nil {
		t.Errorf("expected no transaction and no upload, got %+v", res)
	}
	if len(backend.requests) != 1 {
		t.Errorf("expected a single request, got %d", len(backend.requests))
	}
}

func TestSubmitExpense_NumericTransactionID(t *testing.T) {
	backend := &fakeBackend{t: t, replies: []string{`{"responseCode":200,"transactionList":[{"transactionID":987654321}]}`}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	res, err := c.SubmitExpense(context.Background(), testExpense(filepath.Join(t.TempDir(), "missing.pdf")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TransactionID != "987654321" {
		t.Errorf("expected numeric id as string, got %q", res.TransactionID)
	}
	if res.Receipt != nil {
		t.Error("missing receipt must skip upload")
	}
}

func TestSubmit_UploadFailureKeepsTransactionID(t *testing.T) {
	backend := &fakeBackend{t: t, replies: []string{
		`{"responseCode":200,"transactionList":[{"transactionID":"txn_789"}]}`,
		`{"responseCode":500,"responseMessage":"Upload failed"}`,
	}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	c := newTestClient(t, srv.URL, &countingLimiter{})

	sub, err := c.Submit(context.Background(), testExpense(writeReceipt(t)))
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if sub.TransactionID != "txn_789" || sub.ReceiptAttached {
		t.Errorf("unexpected submission %+v", sub)
	}
}

func TestUploadReceipt_MissingFile(t *testing.T) {
	limiter := &countingLimiter{}
	c := newTestClient(t, "http://127.0.0.1:0", limiter)

	_, err := c.UploadReceipt(context.Background(), testExpense(filepath.Join(t.TempDir(), "nope.pdf")), "txn_1")
	if !errors.Is(err, domain.ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}
	if limiter.calls != 0 {
		t.Error("missing file must not consume an admission")
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"object", `{"responseCode":200,"responseMessage":"ok"}`, 200, "ok"},
		{"missing code", `{"foo":"bar"}`, 200, ""},
		{"string code", `{"responseCode":"500","responseMessage":"boom","transactionList":"weird"}`, 500, "boom"},
		{"plain text", `done`, 200, "done"},
		{"json string", `"queued"`, 200, `"queued"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := decodeResponse([]byte(tc.body))
			if r.ResponseCode != tc.code || r.ResponseMessage != tc.msg {
				t.Errorf("got %+v, want code %d msg %q", r, tc.code, tc.msg)
			}
		})
	}
}
