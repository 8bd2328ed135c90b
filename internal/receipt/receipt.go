// Package receipt obtains invoice PDFs for vendor sources.
//
// Real downloads are delegated to an external browser-automation command;
// dry runs write a placeholder file instead.
package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/expensify-os/internal/domain"
)

// Request describes the receipt to obtain.
type Request struct {
	Plugin      string
	Month       domain.Month
	Credentials map[string]string
	// DryRun asks the acquirer to read what it can without downloading.
	DryRun bool
}

// Receipt is what an acquirer produced.
type Receipt struct {
	// Path is the local PDF, empty when nothing was downloaded.
	Path string
	// AmountText is the bill amount as shown by the vendor portal, if read.
	AmountText string
}

// Acquirer produces a receipt for one plugin and month.
type Acquirer interface {
	Acquire(ctx context.Context, req Request) (Receipt, error)
}

// Checker verifies vendor portal credentials without downloading anything.
type Checker interface {
	Check(ctx context.Context, plugin string, credentials map[string]string) error
}

// Path returns <dir>/<plugin>/<plugin>_YYYY-MM.pdf.
func Path(dir, plugin string, month domain.Month) string {
	return filepath.Join(dir, plugin, fmt.Sprintf("%s_%s.pdf", plugin, month))
}

// StateDir returns and creates the per-plugin browser state directory.
func StateDir(base, plugin string) (string, error) {
	dir := filepath.Join(base, plugin)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create browser state dir: %w", err)
	}
	return dir, nil
}

var _ Acquirer = (*Placeholder)(nil)

// Placeholder writes a stand-in PDF so dry runs have a path to reference.
type Placeholder struct {
	dir string
}

// NewPlaceholder creates a Placeholder rooted at the downloads dir.
func NewPlaceholder(dir string) *Placeholder {
	return &Placeholder{dir: dir}
}

// Acquire writes "[DRY RUN] Invoice for YYYY-MM".
func (p *Placeholder) Acquire(_ context.Context, req Request) (Receipt, error) {
	path := Path(p.dir, req.Plugin, req.Month)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Receipt{}, fmt.Errorf("create downloads dir: %w", err)
	}
	content := fmt.Sprintf("[DRY RUN] Invoice for %s", req.Month)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return Receipt{}, fmt.Errorf("write placeholder receipt: %w", err)
	}
	return Receipt{Path: path}, nil
}
