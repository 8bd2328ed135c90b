// Package vodafone reports the monthly mobile bill from the My Vodafone portal.
//
// The portal has no API. Login, amount reading and the PDF download are
// done by the configured browser command.
package vodafone

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
)

// Name is the registry identifier.
const Name = "vodafone"

const (
	merchant = "Vodafone"
	currency = "EUR"
)

// Registration wires the plugin into a registry.
var Registration = plugin.Registration{
	Name:        Name,
	Description: "Vodafone mobile subscription via the My Vodafone portal (username, password; needs browser.command)",
	New:         New,
}

var _ plugin.Plugin = (*Plugin)(nil)

// Plugin reads the bill through a receipt acquirer.
type Plugin struct {
	deps   plugin.Deps
	logger *zap.Logger
}

// New builds the plugin. Credentials are checked by the portal, not here.
func New(deps plugin.Deps) (plugin.Plugin, error) {
	if deps.Receipts == nil {
		return nil, errors.New("receipt acquirer is required")
	}
	return &Plugin{deps: deps, logger: deps.Logger}, nil
}

// FetchExpense reads the month's bill. A missing or zero amount reports nothing.
func (p *Plugin) FetchExpense(ctx context.Context, month domain.Month, dryRun bool) (*domain.Expense, error) {
	p.logger.Info("Fetching invoice", zap.String("month", month.String()), zap.Bool("dry_run", dryRun))

	rcpt, err := p.deps.Receipts.Acquire(ctx, receipt.Request{
		Plugin:      p.deps.Name,
		Month:       month,
		Credentials: p.deps.Settings.Credentials,
		DryRun:      dryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("read invoice: %w", err)
	}

	cents, ok, err := ParseEuroAmount(rcpt.AmountText)
	if err != nil {
		return nil, err
	}
	if !ok || cents == 0 {
		p.logger.Info("No invoice amount for month", zap.String("month", month.String()))
		return nil, nil
	}

	if dryRun {
		rcpt, err = p.deps.Placeholders.Acquire(ctx, receipt.Request{Plugin: p.deps.Name, Month: month})
		if err != nil {
			return nil, fmt.Errorf("write placeholder: %w", err)
		}
	}

	return &domain.Expense{
		Merchant:    merchant,
		Amount:      cents,
		Currency:    currency,
		Date:        month.FirstDay(),
		Category:    p.deps.Settings.Category,
		Comment:     fmt.Sprintf("Vodafone mobile subscription for %s", month),
		ReceiptPath: rcpt.Path,
	}, nil
}

// ValidateCredentials logs into the portal through the browser command.
func (p *Plugin) ValidateCredentials(ctx context.Context) bool {
	checker, ok := p.deps.Receipts.(receipt.Checker)
	if !ok {
		p.logger.Warn("Receipt acquirer cannot check credentials")
		return false
	}
	if err := checker.Check(ctx, p.deps.Name, p.deps.Settings.Credentials); err != nil {
		p.logger.Warn("Credential check failed", zap.Error(err))
		return false
	}
	return true
}

// Cleanup is a no-op; each browser command run owns its own session.
func (p *Plugin) Cleanup() {}

// euroAmount matches "€45,23", "€ 45,23", "€1.045,23" and "€45.23".
var (
	euroAmount = regexp.MustCompile(`€\s*([\d.,]*\d)`)
	dotDecimal = regexp.MustCompile(`^\d+\.\d{2}$`)
)

// ParseEuroAmount extracts a euro amount in cents from portal text.
// Comma is the decimal separator unless the number only has a dot
// followed by two digits. ok is false when text holds no amount.
func ParseEuroAmount(text string) (cents int64, ok bool, err error) {
	m := euroAmount.FindStringSubmatch(text)
	if m == nil {
		return 0, false, nil
	}
	raw := m[1]
	normalized := raw
	if !dotDecimal.MatchString(raw) {
		normalized = strings.ReplaceAll(strings.ReplaceAll(raw, ".", ""), ",", ".")
	}
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, false, fmt.Errorf("parse invoice amount %q: %w", raw, err)
	}
	return amount.Shift(2).IntPart(), true, nil
}
