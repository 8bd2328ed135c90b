package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/costreport"
	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
)

// CostAPI is a vendor client with a paginated cost report.
type CostAPI interface {
	costreport.PageFetcher
	// Check makes one cheap authenticated call.
	Check(ctx context.Context) error
	Close()
}

// CostSourceSpec describes a vendor billed through a cost report API.
type CostSourceSpec struct {
	Merchant   string
	Currency   string
	Conversion costreport.Conversion
}

var _ Plugin = (*CostSource)(nil)

// CostSource is a Plugin that totals a vendor cost report.
type CostSource struct {
	name       string
	spec       CostSourceSpec
	api        CostAPI
	aggregator *costreport.Aggregator
	deps       Deps
	logger     *zap.Logger
}

// NewCostSource creates a cost-report plugin.
func NewCostSource(spec CostSourceSpec, api CostAPI, deps Deps, opts ...func(*costreport.Aggregator)) *CostSource {
	agg := costreport.New(deps.Name, api, spec.Conversion, deps.Logger)
	for _, opt := range opts {
		opt(agg)
	}
	return &CostSource{
		name:       deps.Name,
		spec:       spec,
		api:        api,
		aggregator: agg,
		deps:       deps,
		logger:     deps.Logger,
	}
}

// FetchExpense totals the month and attaches a receipt. A zero total reports nothing.
func (s *CostSource) FetchExpense(ctx context.Context, month domain.Month, dryRun bool) (*domain.Expense, error) {
	window := month.Window()
	total, err := s.aggregator.FetchTotal(ctx, window)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		s.logger.Info("No charges for month", zap.String("month", month.String()))
		return nil, nil
	}

	acquirer := s.deps.Receipts
	if dryRun {
		acquirer = s.deps.Placeholders
	}
	rcpt, err := acquirer.Acquire(ctx, receipt.Request{
		Plugin:      s.name,
		Month:       month,
		Credentials: s.deps.Settings.Credentials,
	})
	if err != nil {
		return nil, fmt.Errorf("acquire receipt: %w", err)
	}

	return &domain.Expense{
		Merchant:    s.spec.Merchant,
		Amount:      total,
		Currency:    s.spec.Currency,
		Date:        month.FirstDay(),
		Category:    s.deps.Settings.Category,
		Comment:     fmt.Sprintf("%s API usage for %s", s.spec.Merchant, month),
		ReceiptPath: rcpt.Path,
	}, nil
}

// ValidateCredentials reports whether the vendor accepted one read-only call.
func (s *CostSource) ValidateCredentials(ctx context.Context) bool {
	if err := s.api.Check(ctx); err != nil {
		s.logger.Warn("Credential check failed", zap.Error(err))
		return false
	}
	return true
}

// Cleanup closes the vendor client.
func (s *CostSource) Cleanup() {
	s.api.Close()
}
