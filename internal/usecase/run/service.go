// Package run drives one expense run across the selected plugins.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/metrics"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
)

// ErrBusy is returned when a run is already in progress on this Service.
var ErrBusy = errors.New("a run is already in progress")

// Reasons recorded on skipped results.
const (
	ReasonNoCharges        = "no charges"
	ReasonAlreadySubmitted = "already submitted"
)

// Target is one configured plugin.
type Target struct {
	Name     string
	Enabled  bool
	Settings plugin.Settings
}

// Request describes one run.
type Request struct {
	Month   domain.Month
	Targets []Target
	DryRun  bool
	// Force submits even when the ledger already has the month.
	Force bool
}

// Config wires the Service.
type Config struct {
	Plugins      Plugins
	Submitter    Submitter
	Ledger       Ledger // nil disables duplicate protection
	Notifiers    []Notifier
	Receipts     receipt.Acquirer
	Placeholders receipt.Acquirer
	Logger       *zap.Logger
	Now          func() time.Time
}

// Service runs plugins sequentially and collects one result per plugin.
type Service struct {
	plugins      Plugins
	submitter    Submitter
	ledger       Ledger
	notifiers    []Notifier
	receipts     receipt.Acquirer
	placeholders receipt.Acquirer
	logger       *zap.Logger
	now          func() time.Time
	running      atomic.Bool
}

// New creates a Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		plugins:      cfg.Plugins,
		submitter:    cfg.Submitter,
		ledger:       cfg.Ledger,
		notifiers:    cfg.Notifiers,
		receipts:     cfg.Receipts,
		placeholders: cfg.Placeholders,
		logger:       logger,
		now:          now,
	}
}

// SelectTargets picks what to run. Named sources run in the given order when
// configured and enabled; ignored lists the rest. Without sources every
// enabled, registered plugin runs in name order.
func SelectTargets(configured []Target, sources []string, registered func(string) bool) (targets, ignored []Target) {
	byName := make(map[string]Target, len(configured))
	for _, t := range configured {
		byName[t.Name] = t
	}

	if len(sources) > 0 {
		for _, name := range sources {
			t, ok := byName[name]
			if !ok || !t.Enabled {
				ignored = append(ignored, Target{Name: name, Enabled: ok && t.Enabled})
				continue
			}
			targets = append(targets, t)
		}
		return targets, ignored
	}

	for _, t := range configured {
		if t.Enabled && registered(t.Name) {
			targets = append(targets, t)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
	return targets, nil
}

// Run processes every target in order. A failing plugin is recorded and the
// run continues. Cleanup is called once for every plugin that was built.
func (s *Service) Run(ctx context.Context, req Request) (domain.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.Summary{}, ErrBusy
	}
	defer s.running.Store(false)

	s.logger.Info("Starting run",
		zap.String("month", req.Month.String()),
		zap.Int("plugins", len(req.Targets)),
		zap.Bool("dry_run", req.DryRun),
		zap.Bool("force", req.Force),
	)

	results := make([]domain.RunResult, 0, len(req.Targets))
	for _, t := range req.Targets {
		res := s.runOne(ctx, t, req)
		metrics.PluginResultsTotal.WithLabelValues(t.Name, string(res.Status)).Inc()
		results = append(results, res)
	}

	summary := domain.NewSummary(req.Month, req.DryRun, results)
	s.logger.Info("Run complete",
		zap.Int("submitted", summary.Submitted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)

	s.notify(ctx, summary)
	return summary, nil
}

// Running reports whether a run is in progress.
func (s *Service) Running() bool {
	return s.running.Load()
}

func (s *Service) runOne(ctx context.Context, t Target, req Request) (res domain.RunResult) {
	log := s.logger.With(zap.String("plugin", t.Name), zap.String("month", req.Month.String()))

	p, err := s.plugins.Get(t.Name, plugin.Deps{
		Settings:     t.Settings,
		Receipts:     s.receipts,
		Placeholders: s.placeholders,
		Logger:       s.logger,
	})
	if err != nil {
		return failed(log, t.Name, err)
	}
	defer p.Cleanup()
	defer func() {
		if r := recover(); r != nil {
			res = failed(log, t.Name, fmt.Errorf("plugin panicked: %v", r))
		}
	}()

	if t.Settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Settings.Timeout)
		defer cancel()
	}

	if s.ledger != nil && !req.Force {
		entry, found, err := s.ledger.Lookup(ctx, t.Name, req.Month)
		switch {
		case err != nil:
			log.Warn("Ledger lookup failed, continuing without it", zap.Error(err))
		case found:
			log.Info("Already submitted, skipping", zap.String("transaction_id", entry.TransactionID))
			return domain.RunResult{
				Plugin:        t.Name,
				Status:        domain.RunSkipped,
				Amount:        entry.Amount,
				Currency:      entry.Currency,
				TransactionID: entry.TransactionID,
				Reason:        ReasonAlreadySubmitted,
			}
		}
	}

	expense, err := p.FetchExpense(ctx, req.Month, req.DryRun)
	if err != nil {
		return failed(log, t.Name, err)
	}
	if expense == nil {
		log.Info("No expense to report")
		return domain.RunResult{Plugin: t.Name, Status: domain.RunSkipped, Reason: ReasonNoCharges}
	}
	if err := expense.Validate(); err != nil {
		return failed(log, t.Name, err)
	}

	res = domain.RunResult{
		Plugin:   t.Name,
		Status:   domain.RunSuccess,
		Amount:   expense.Amount,
		Currency: expense.Currency,
	}

	if req.DryRun {
		log.Info("Dry run, not submitting",
			zap.String("amount", domain.FormatMinorUnits(expense.Amount)),
			zap.String("currency", expense.Currency),
			zap.String("receipt", expense.ReceiptPath),
		)
		return res
	}

	sub, err := s.submitter.Submit(ctx, *expense)
	if sub.TransactionID != "" {
		// The expense exists on the backend even when the receipt upload failed.
		s.record(ctx, log, t.Name, req.Month, *expense, sub, err)
	}
	if err != nil {
		out := failed(log, t.Name, err)
		out.TransactionID = sub.TransactionID
		return out
	}

	metrics.SubmittedMinorUnitsTotal.WithLabelValues(t.Name, expense.Currency).Add(float64(expense.Amount))
	log.Info("Expense submitted",
		zap.String("transaction_id", sub.TransactionID),
		zap.String("amount", domain.FormatMinorUnits(expense.Amount)),
		zap.String("currency", expense.Currency),
		zap.Bool("receipt_attached", sub.ReceiptAttached),
	)
	res.TransactionID = sub.TransactionID
	return res
}

func (s *Service) record(
	ctx context.Context, log *zap.Logger, name string, month domain.Month,
	e domain.Expense, sub domain.Submission, submitErr error,
) {
	if s.ledger == nil {
		return
	}
	entry := domain.LedgerEntry{
		Plugin:        name,
		Month:         month.String(),
		TransactionID: sub.TransactionID,
		Amount:        e.Amount,
		Currency:      e.Currency,
		SubmittedAt:   s.now().UTC(),
	}
	if submitErr != nil {
		entry.ReceiptError = submitErr.Error()
	}
	// Recorded on a fresh context so a plugin timeout does not lose the entry.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.ledger.Record(recCtx, entry); err != nil {
		log.Error("Failed to record submission in ledger", zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, summary domain.Summary) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			s.logger.Warn("Notification failed", zap.Error(err))
		}
	}
}

func failed(log *zap.Logger, name string, err error) domain.RunResult {
	log.Error("Plugin failed", zap.Error(err))
	return domain.RunResult{Plugin: name, Status: domain.RunError, Error: err.Error()}
}
