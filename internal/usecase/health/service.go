// Package health aggregates dependency checks for the control plane.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	backend Pinger
	ledger  Pinger
}

// New creates a Service. ledger can be nil when no ledger is configured.
func New(backend, ledger Pinger) *Service {
	return &Service{backend: backend, ledger: ledger}
}

// Check pings the expense backend and, when configured, the ledger store.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{"backend": probe(ctx, s.backend)}
	if s.ledger != nil {
		checks["ledger"] = probe(ctx, s.ledger)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	return Report{Status: status, Checks: checks}
}

func probe(ctx context.Context, p Pinger) CheckResult {
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
