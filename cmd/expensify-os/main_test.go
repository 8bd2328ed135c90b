package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/version"
)

func TestParseMonthFlag(t *testing.T) {
	now := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

	m, err := parseMonthFlag("", now)
	if err != nil || m.String() != "2025-12" {
		t.Fatalf("expected 2025-12, got %s (%v)", m, err)
	}

	m, err = parseMonthFlag("2026-03", now)
	if err != nil || m.String() != "2026-03" {
		t.Fatalf("expected 2026-03, got %s (%v)", m, err)
	}

	for _, bad := range []string{"2026-13", "march", "2026"} {
		_, err := parseMonthFlag(bad, now)
		var ec *exitCodeError
		if !errors.As(err, &ec) || ec.code != exitUsage {
			t.Fatalf("%q: expected usage error, got %v", bad, err)
		}
		want := "'" + bad + "' is not a valid month (expected YYYY-MM)"
		if ec.msg != want {
			t.Errorf("got %q, want %q", ec.msg, want)
		}
	}
}

func TestPrintResults(t *testing.T) {
	month := domain.Month{Year: 2026, Month: time.February}
	summary := domain.NewSummary(month, false, []domain.RunResult{
		{Plugin: "openai", Status: domain.RunSuccess, Amount: 8736, Currency: "USD", TransactionID: "T1"},
		{Plugin: "anthropic", Status: domain.RunSkipped, Reason: "no charges"},
		{Plugin: "vodafone", Status: domain.RunSkipped, Reason: "already submitted"},
		{Plugin: "broken", Status: domain.RunError, Error: "boom"},
	})

	var buf bytes.Buffer
	printResults(&buf, month, summary)

	want := strings.Join([]string{
		"",
		"--- openai ---",
		"  Amount: USD 87.36",
		"  Submitted! Transaction: T1",
		"",
		"--- anthropic ---",
		"  No charges for 2026-02",
		"",
		"--- vodafone ---",
		"  Skipped: already submitted",
		"",
		"--- broken ---",
		"  ERROR: boom",
		"",
		"=== Summary ===",
		"Submitted: 1, Skipped: 2, Errors: 1",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrintResults_DryRun(t *testing.T) {
	month := domain.Month{Year: 2026, Month: time.February}
	summary := domain.NewSummary(month, true, []domain.RunResult{
		{Plugin: "vodafone", Status: domain.RunSuccess, Amount: 3999, Currency: "EUR"},
	})

	var buf bytes.Buffer
	printResults(&buf, month, summary)

	if !strings.Contains(buf.String(), "  Amount: EUR 39.99\n  [DRY RUN] Would submit to Expensify\n") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestPrintPlugins(t *testing.T) {
	var buf bytes.Buffer
	printPlugins(&buf, []plugin.Registration{{Name: "openai", Description: "OpenAI API usage"}})

	want := "Available plugins:\n  openai          OpenAI API usage\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	printPlugins(&buf, nil)
	if buf.String() != "No plugins registered.\n" {
		t.Errorf("unexpected empty output %q", buf.String())
	}
}

func TestRootCmd_Version(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--env-file", ""})

	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if out.String() != version.String()+"\n" {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestRootCmd_PluginsListsBuiltins(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"plugins", "--env-file", ""})

	if err := root.Execute(); err != nil {
		t.Fatalf("plugins failed: %v", err)
	}
	for _, name := range []string{"anthropic", "openai", "vodafone"} {
		if !strings.Contains(out.String(), "  "+name) {
			t.Errorf("expected %s in output:\n%s", name, out.String())
		}
	}
}

func TestExecute_InvalidMonthIsUsageError(t *testing.T) {
	if code := execute([]string{"run", "--month", "2026-13", "--env-file", ""}); code != exitUsage {
		t.Errorf("expected exit %d, got %d", exitUsage, code)
	}
}

func TestExecute_MissingConfigFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if code := execute([]string{"run", "-c", missing, "--env-file", ""}); code != exitError {
		t.Errorf("expected exit %d, got %d", exitError, code)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file must be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("EXPENSIFY_OS_TEST_VAR=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EXPENSIFY_OS_TEST_VAR", "")
	if err := os.Unsetenv("EXPENSIFY_OS_TEST_VAR"); err != nil {
		t.Fatal(err)
	}
	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile failed: %v", err)
	}
	if got := os.Getenv("EXPENSIFY_OS_TEST_VAR"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
}
