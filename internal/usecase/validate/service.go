// Package validate checks plugin credentials without submitting anything.
package validate

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
)

// Status is the outcome of checking one plugin.
type Status string

const (
	StatusOK       Status = "OK"
	StatusInvalid  Status = "INVALID"
	StatusDisabled Status = "disabled"
	StatusUnknown  Status = "UNKNOWN PLUGIN"
)

// maxConcurrent bounds simultaneous vendor calls; browser checks are heavy.
const maxConcurrent = 4

// Target is one configured plugin.
type Target struct {
	Name     string
	Enabled  bool
	Settings plugin.Settings
}

// Result is the check outcome for one plugin.
type Result struct {
	Plugin string `json:"plugin"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the plugin blocks a clean validation.
func (r Result) Failed() bool {
	return r.Status == StatusInvalid || r.Status == StatusUnknown
}

// Config wires the Service.
type Config struct {
	Plugins  Plugins
	Receipts receipt.Acquirer
	Logger   *zap.Logger
}

// Service checks credentials of configured plugins.
type Service struct {
	plugins  Plugins
	receipts receipt.Acquirer
	logger   *zap.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{plugins: cfg.Plugins, receipts: cfg.Receipts, logger: logger}
}

// Check validates every target concurrently and returns results sorted by name.
func (s *Service) Check(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = s.checkOne(gctx, t)
			return nil
		})
	}
	_ = g.Wait() // checkOne never fails the group

	sort.Slice(results, func(i, j int) bool { return results[i].Plugin < results[j].Plugin })
	return results
}

func (s *Service) checkOne(ctx context.Context, t Target) Result {
	switch {
	case !s.plugins.Has(t.Name):
		return Result{Plugin: t.Name, Status: StatusUnknown}
	case !t.Enabled:
		return Result{Plugin: t.Name, Status: StatusDisabled}
	}

	p, err := s.plugins.Get(t.Name, plugin.Deps{
		Settings: t.Settings,
		Receipts: s.receipts,
		Logger:   s.logger,
	})
	if err != nil {
		return Result{Plugin: t.Name, Status: StatusInvalid, Error: err.Error()}
	}
	defer p.Cleanup()

	if t.Settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Settings.Timeout)
		defer cancel()
	}

	if !p.ValidateCredentials(ctx) {
		return Result{Plugin: t.Name, Status: StatusInvalid}
	}
	return Result{Plugin: t.Name, Status: StatusOK}
}

// AnyFailed reports whether any result failed.
func AnyFailed(results []Result) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}
