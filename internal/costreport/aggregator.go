// Package costreport reduces a vendor's cursor-paginated cost report to an integer minor-unit total.
package costreport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/metrics"
)

// Page is one response of a cost report endpoint.
type Page struct {
	Amounts  []decimal.Decimal // raw amounts of every result in every bucket, in vendor units
	HasMore  bool
	NextPage string
}

// PageFetcher fetches one page of a vendor cost report. An empty cursor requests the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, window domain.Window, cursor string) (Page, error)
}

// Conversion maps a vendor amount to minor units.
type Conversion struct {
	Name  string
	scale int32 // power of ten applied to the vendor amount
}

var (
	// MinorUnits is for vendors that already report minor units (possibly fractional).
	MinorUnits = Conversion{Name: "minor_units", scale: 0}
	// MajorUnits is for vendors that report major units (dollars); amounts are multiplied by 100.
	MajorUnits = Conversion{Name: "major_units", scale: 2}
)

// Apply converts one vendor amount to minor units without rounding.
func (c Conversion) Apply(amount decimal.Decimal) decimal.Decimal {
	if c.scale == 0 {
		return amount
	}
	return amount.Shift(c.scale)
}

// Aggregator walks all pages of a cost report and sums them exactly.
type Aggregator struct {
	vendor     string
	fetcher    PageFetcher
	conversion Conversion
	policy     RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// New creates an Aggregator with the default retry policy.
func New(vendor string, fetcher PageFetcher, conversion Conversion, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		vendor:     vendor,
		fetcher:    fetcher,
		conversion: conversion,
		policy:     DefaultRetryPolicy(),
		sleep:      sleepContext,
		logger:     logger.With(zap.String("vendor", vendor)),
	}
}

// WithRetryPolicy overrides the retry policy.
func (a *Aggregator) WithRetryPolicy(p RetryPolicy) *Aggregator {
	a.policy = p
	return a
}

// WithSleep overrides the backoff sleeper (tests).
func (a *Aggregator) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Aggregator {
	a.sleep = fn
	return a
}

// FetchTotal returns the window's total in minor units, rounded up.
// A failure on any page restarts pagination from the first page on the next attempt.
func (a *Aggregator) FetchTotal(ctx context.Context, window domain.Window) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= a.policy.Attempts; attempt++ {
		metrics.CostReportAttemptsTotal.WithLabelValues(a.vendor).Inc()

		total, pages, err := a.fetchAll(ctx, window)
		if err == nil {
			metrics.CostReportFetchesTotal.WithLabelValues(a.vendor, "ok").Inc()
			a.logger.Debug("Cost report aggregated",
				zap.Int("pages", pages),
				zap.Int("attempt", attempt),
				zap.Int64("total_minor_units", total),
			)
			return total, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == a.policy.Attempts {
			break
		}

		delay := a.policy.Backoff(attempt)
		a.logger.Warn("Cost report fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := a.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	metrics.CostReportFetchesTotal.WithLabelValues(a.vendor, "error").Inc()
	return 0, fmt.Errorf("%s cost report: %w", a.vendor, lastErr)
}

func (a *Aggregator) fetchAll(ctx context.Context, window domain.Window) (int64, int, error) {
	sum := decimal.Zero
	cursor := ""
	pages := 0
	for {
		page, err := a.fetcher.FetchPage(ctx, window, cursor)
		if err != nil {
			return 0, pages, fmt.Errorf("page %d: %w", pages+1, err)
		}
		pages++

		for _, amount := range page.Amounts {
			sum = sum.Add(a.conversion.Apply(amount))
		}

		if !page.HasMore {
			break
		}
		if page.NextPage == "" {
			return 0, pages, fmt.Errorf("page %d: has_more without next_page cursor", pages)
		}
		cursor = page.NextPage
	}

	return sum.Ceil().IntPart(), pages, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
