package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCategory is used when a plugin has no category configured.
const DefaultCategory = "Uncategorized"

// Expense is a normalized expense ready for submission.
// Amount is in integer minor units (cents).
type Expense struct {
	Merchant    string
	Amount      int64
	Currency    string
	Date        time.Time
	Category    string
	Comment     string
	ReceiptPath string
}

// Validate checks the invariants of an expense before submission.
func (e Expense) Validate() error {
	if e.Merchant == "" {
		return fmt.Errorf("expense merchant is required")
	}
	if e.Amount < 0 {
		return fmt.Errorf("expense amount must be >= 0, got %d", e.Amount)
	}
	if len(e.Currency) != 3 {
		return fmt.Errorf("expense currency must be a 3-letter code, got %q", e.Currency)
	}
	return nil
}

// FormatMinorUnits renders minor units as a major-unit decimal string ("12345" -> "123.45").
func FormatMinorUnits(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
