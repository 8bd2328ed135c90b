package domain

// RunStatus is the outcome of one plugin in a run.
type RunStatus string

const (
	// RunSuccess means the expense was submitted (or would have been, in dry-run).
	RunSuccess RunStatus = "success"
	// RunSkipped means there was nothing to submit.
	RunSkipped RunStatus = "skipped"
	// RunError means fetching or submitting failed.
	RunError RunStatus = "error"
)

// RunResult is the immutable per-plugin record of a run.
type RunResult struct {
	Plugin        string    `json:"plugin"`
	Status        RunStatus `json:"status"`
	Amount        int64     `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Summary counts run outcomes.
type Summary struct {
	Month     string      `json:"month"`
	DryRun    bool        `json:"dry_run"`
	Results   []RunResult `json:"results"`
	Submitted int         `json:"submitted"`
	Skipped   int         `json:"skipped"`
	Errors    int         `json:"errors"`
}

// NewSummary tallies results.
func NewSummary(month Month, dryRun bool, results []RunResult) Summary {
	s := Summary{Month: month.String(), DryRun: dryRun, Results: results}
	for _, r := range results {
		switch r.Status {
		case RunSuccess:
			s.Submitted++
		case RunSkipped:
			s.Skipped++
		case RunError:
			s.Errors++
		}
	}
	return s
}

// Failed reports whether any plugin recorded an error.
func (s Summary) Failed() bool { return s.Errors > 0 }
