// Package builtin lists the vendor sources shipped with expensify-os.
package builtin

import (
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	"github.com/kailas-cloud/expensify-os/internal/plugin/anthropic"
	"github.com/kailas-cloud/expensify-os/internal/plugin/openai"
	"github.com/kailas-cloud/expensify-os/internal/plugin/vodafone"
)

// Registry returns a registry with every built-in plugin.
func Registry() *plugin.Registry {
	return plugin.NewRegistry(
		anthropic.Registration,
		openai.Registration,
		vodafone.Registration,
	)
}
