package plugin

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/costreport"
	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/metrics"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

var december = domain.Month{Year: 2025, Month: time.December}

// --- Mock ---

type mockAPI struct {
	pages    []costreport.Page
	checkErr error
	windows  []domain.Window
	closed   int
}

func (m *mockAPI) FetchPage(_ context.Context, w domain.Window, cursor string) (costreport.Page, error) {
	m.windows = append(m.windows, w)
	if len(m.pages) == 0 {
		return costreport.Page{}, nil
	}
	idx := 0
	if cursor != "" {
		idx = 1
	}
	return m.pages[idx], nil
}

func (m *mockAPI) Check(context.Context) error { return m.checkErr }
func (m *mockAPI) Close()                      { m.closed++ }

type mockAcquirer struct {
	path     string
	err      error
	requests []receipt.Request
}

func (m *mockAcquirer) Acquire(_ context.Context, req receipt.Request) (receipt.Receipt, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return receipt.Receipt{}, m.err
	}
	return receipt.Receipt{Path: m.path}, nil
}

func amounts(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

func newSource(api *mockAPI, real, placeholder *mockAcquirer) *CostSource {
	deps := Deps{
		Name:         "anthropic",
		Settings:     Settings{Category: "Software", Credentials: map[string]string{"admin_api_key": "k"}},
		Receipts:     real,
		Placeholders: placeholder,
		Logger:       zap.NewNop(),
	}
	spec := CostSourceSpec{Merchant: "Anthropic", Currency: "USD", Conversion: costreport.MinorUnits}
	return NewCostSource(spec, api, deps)
}

func TestCostSource_FetchExpense(t *testing.T) {
	api := &mockAPI{pages: []costreport.Page{
		{Amounts: amounts("5000.50"), HasMore: true, NextPage: "p2"},
		{Amounts: amounts("2500.25")},
	}}
	real := &mockAcquirer{path: "/downloads/anthropic/anthropic_2025-12.pdf"}
	src := newSource(api, real, &mockAcquirer{})

	exp, err := src.FetchExpense(context.Background(), december, false)
	if err != nil {
		t.Fatalf("FetchExpense failed: %v", err)
	}
	if exp == nil {
		t.Fatal("expected an expense")
	}
	if exp.Amount != 7501 || exp.Currency != "USD" || exp.Merchant != "Anthropic" {
		t.Errorf("unexpected expense %+v", exp)
	}
	if exp.Comment != "Anthropic API usage for 2025-12" || exp.Category != "Software" {
		t.Errorf("unexpected comment/category %q %q", exp.Comment, exp.Category)
	}
	if !exp.Date.Equal(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", exp.Date)
	}
	if exp.ReceiptPath != real.path || len(real.requests) != 1 {
		t.Errorf("receipt not taken from real acquirer: %+v", real.requests)
	}
	if err := exp.Validate(); err != nil {
		t.Errorf("expense must be valid: %v", err)
	}

	w := api.windows[0]
	if !w.Start.Equal(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)) ||
		!w.End.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected window %+v", w)
	}
}

func TestCostSource_ZeroTotalIsNoExpense(t *testing.T) {
	real := &mockAcquirer{}
	src := newSource(&mockAPI{}, real, &mockAcquirer{})

	exp, err := src.FetchExpense(context.Background(), december, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp != nil {
		t.Fatalf("expected no expense, got %+v", exp)
	}
	if len(real.requests) != 0 {
		t.Error("no receipt should be acquired for a zero total")
	}
}

func TestCostSource_DryRunUsesPlaceholder(t *testing.T) {
	api := &mockAPI{pages: []costreport.Page{{Amounts: amounts("100")}}}
	real := &mockAcquirer{path: "/real.pdf"}
	placeholder := &mockAcquirer{path: "/placeholder.pdf"}
	src := newSource(api, real, placeholder)

	exp, err := src.FetchExpense(context.Background(), december, true)
	if err != nil {
		t.Fatalf("FetchExpense failed: %v", err)
	}
	if exp.ReceiptPath != "/placeholder.pdf" {
		t.Errorf("expected placeholder path, got %q", exp.ReceiptPath)
	}
	if len(real.requests) != 0 {
		t.Error("dry run must not use the real acquirer")
	}
}

func TestCostSource_ReceiptFailure(t *testing.T) {
	api := &mockAPI{pages: []costreport.Page{{Amounts: amounts("100")}}}
	src := newSource(api, &mockAcquirer{err: receipt.ErrNoCommand}, &mockAcquirer{})

	_, err := src.FetchExpense(context.Background(), december, false)
	if !errors.Is(err, receipt.ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, got %v", err)
	}
}

func TestCostSource_ValidateAndCleanup(t *testing.T) {
	api := &mockAPI{}
	src := newSource(api, &mockAcquirer{}, &mockAcquirer{})
	if !src.ValidateCredentials(context.Background()) {
		t.Error("expected valid credentials")
	}
	api.checkErr = domain.ErrUnauthorized
	if src.ValidateCredentials(context.Background()) {
		t.Error("expected invalid credentials")
	}
	src.Cleanup()
	if api.closed != 1 {
		t.Errorf("expected one Close, got %d", api.closed)
	}
}

type stubPlugin struct{ deps Deps }

func (s *stubPlugin) FetchExpense(context.Context, domain.Month, bool) (*domain.Expense, error) {
	return nil, nil
}
func (s *stubPlugin) ValidateCredentials(context.Context) bool { return true }
func (s *stubPlugin) Cleanup()                                 {}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		Registration{Name: "zeta", New: func(d Deps) (Plugin, error) { return &stubPlugin{deps: d}, nil }},
		Registration{Name: "alpha", New: func(Deps) (Plugin, error) { return nil, errors.New("missing credential") }},
	)

	if got := r.Names(); len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("unexpected names %v", got)
	}
	if !r.Has("zeta") || r.Has("beta") {
		t.Error("Has mismatch")
	}

	p, err := r.Get("zeta", Deps{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.(*stubPlugin).deps.Name != "zeta" || p.(*stubPlugin).deps.Logger == nil {
		t.Errorf("deps not filled: %+v", p.(*stubPlugin).deps)
	}

	if _, err := r.Get("alpha", Deps{}); err == nil || !strings.Contains(err.Error(), "init plugin alpha") {
		t.Errorf("expected init error, got %v", err)
	}

	_, err = r.Get("nope", Deps{})
	if !errors.Is(err, domain.ErrUnknownPlugin) {
		t.Fatalf("expected ErrUnknownPlugin, got %v", err)
	}
	if !strings.Contains(err.Error(), "[alpha zeta]") {
		t.Errorf("error should list available plugins: %v", err)
	}
}

func TestSettings_Credential(t *testing.T) {
	s := Settings{Credentials: map[string]string{"admin_api_key": "k", "empty": ""}}
	if v, err := s.Credential("admin_api_key"); err != nil || v != "k" {
		t.Errorf("got %q, %v", v, err)
	}
	for _, key := range []string{"empty", "absent"} {
		if _, err := s.Credential(key); err == nil {
			t.Errorf("expected error for %q", key)
		}
	}
}
