package run

import (
	"context"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
)

// Plugins builds plugin instances by name.
type Plugins interface {
	Get(name string, deps plugin.Deps) (plugin.Plugin, error)
}

// Submitter sends an expense to the backend.
type Submitter interface {
	Submit(ctx context.Context, e domain.Expense) (domain.Submission, error)
}

// Ledger remembers submitted plugin months.
type Ledger interface {
	Lookup(ctx context.Context, plugin string, month domain.Month) (domain.LedgerEntry, bool, error)
	Record(ctx context.Context, entry domain.LedgerEntry) error
}

// Notifier publishes a run summary.
type Notifier interface {
	Notify(ctx context.Context, s domain.Summary) error
}
