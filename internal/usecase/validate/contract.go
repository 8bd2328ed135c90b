package validate

import "github.com/kailas-cloud/expensify-os/internal/plugin"

// Plugins builds plugin instances by name.
type Plugins interface {
	Has(name string) bool
	Get(name string, deps plugin.Deps) (plugin.Plugin, error)
}
