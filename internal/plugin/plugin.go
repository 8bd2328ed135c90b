// Package plugin defines vendor sources and the registry that builds them.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
	"github.com/kailas-cloud/expensify-os/internal/receipt"
)

// Plugin is one vendor source of monthly expenses.
type Plugin interface {
	// FetchExpense returns the month's expense, or nil when there is nothing to report.
	FetchExpense(ctx context.Context, month domain.Month, dryRun bool) (*domain.Expense, error)
	// ValidateCredentials makes one cheap read-only call. Any failure reports false.
	ValidateCredentials(ctx context.Context) bool
	// Cleanup releases clients and sessions. Safe to call once after any outcome.
	Cleanup()
}

// Settings is the per-plugin configuration.
type Settings struct {
	Credentials map[string]string
	Category    string
	BaseURL     string
	Timeout     time.Duration
}

// Credential returns a required credential.
func (s Settings) Credential(key string) (string, error) {
	v := s.Credentials[key]
	if v == "" {
		return "", fmt.Errorf("missing credential %q", key)
	}
	return v, nil
}

// Deps are the collaborators handed to a factory.
type Deps struct {
	Name     string
	Settings Settings
	// Receipts performs real downloads.
	Receipts receipt.Acquirer
	// Placeholders writes dry-run stand-ins.
	Placeholders receipt.Acquirer
	Logger       *zap.Logger
}

// Factory builds a plugin instance.
type Factory func(deps Deps) (Plugin, error)

// Registration is one entry of the registry.
type Registration struct {
	Name        string
	Description string
	New         Factory
}

// Registry maps vendor identifiers to factories. It is built explicitly at startup.
type Registry struct {
	entries map[string]Registration
}

// NewRegistry creates a registry from the given registrations. Later duplicates win.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{entries: make(map[string]Registration, len(regs))}
	for _, reg := range regs {
		r.entries[reg.Name] = reg
	}
	return r
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns registered identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registrations sorted by name.
func (r *Registry) List() []Registration {
	out := make([]Registration, 0, len(r.entries))
	for _, name := range r.Names() {
		out = append(out, r.entries[name])
	}
	return out
}

// Get builds the named plugin. Unknown names return domain.ErrUnknownPlugin.
func (r *Registry) Get(name string, deps Deps) (Plugin, error) {
	reg, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", domain.ErrUnknownPlugin, name, r.Names())
	}
	deps.Name = name
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.String("plugin", name))
	p, err := reg.New(deps)
	if err != nil {
		return nil, fmt.Errorf("init plugin %s: %w", name, err)
	}
	return p, nil
}
