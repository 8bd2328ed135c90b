package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/expensify-os/internal/domain"
)

// FormatRunSummary renders a run as Slack markdown.
func FormatRunSummary(s domain.Summary) string {
	var submitted, skipped, failed []domain.RunResult
	for _, r := range s.Results {
		switch r.Status {
		case domain.RunSuccess:
			submitted = append(submitted, r)
		case domain.RunSkipped:
			skipped = append(skipped, r)
		case domain.RunError:
			failed = append(failed, r)
		}
	}

	var b strings.Builder
	b.WriteString(":receipt: *expensify-os Run Summary*")
	if s.Month != "" {
		fmt.Fprintf(&b, " (%s)", s.Month)
	}
	if s.DryRun {
		b.WriteString(" [dry run]")
	}
	b.WriteString("\n")

	if len(submitted) > 0 {
		b.WriteString("\n*Submitted:*")
		for _, r := range submitted {
			fmt.Fprintf(&b, "\n  • %s: %s %s", r.Plugin, r.Currency, domain.FormatMinorUnits(r.Amount))
		}
	}
	if len(skipped) > 0 {
		b.WriteString("\n*No charges:*")
		for _, r := range skipped {
			fmt.Fprintf(&b, "\n  • %s", r.Plugin)
			if r.Reason != "" && r.Reason != "no charges" {
				fmt.Fprintf(&b, " (%s)", r.Reason)
			}
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n*Failed:*")
		for _, r := range failed {
			msg := r.Error
			if msg == "" {
				msg = "unknown error"
			}
			fmt.Fprintf(&b, "\n  • %s: %s", r.Plugin, msg)
		}
	}

	if totals := totalsByCurrency(submitted); totals != "" {
		fmt.Fprintf(&b, "\n\n*Total submitted:* %s", totals)
	}
	return b.String()
}

// DesktopMessage is the one-line body of a desktop notification.
func DesktopMessage(s domain.Summary) string {
	msg := fmt.Sprintf("%s: %d submitted, %d skipped, %d failed", s.Month, s.Submitted, s.Skipped, s.Errors)
	if s.DryRun {
		msg += " (dry run)"
	}
	return msg
}

// totalsByCurrency sums amounts per currency, e.g. "EUR 39.99, USD 12.35".
func totalsByCurrency(results []domain.RunResult) string {
	sums := map[string]int64{}
	for _, r := range results {
		sums[r.Currency] += r.Amount
	}
	currencies := make([]string, 0, len(sums))
	for c, v := range sums {
		if v != 0 {
			currencies = append(currencies, c)
		}
	}
	sort.Strings(currencies)

	parts := make([]string, len(currencies))
	for i, c := range currencies {
		parts[i] = c + " " + decimal.New(sums[c], -2).StringFixed(2)
	}
	return strings.Join(parts, ", ")
}
