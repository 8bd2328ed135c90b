// Package anthropic reports Claude API spend from the Admin cost report.
package anthropic

import (
	"context"

	"github.com/kailas-cloud/expensify-os/internal/costreport"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	api "github.com/kailas-cloud/expensify-os/internal/transport/anthropic"
)

// Name is the registry identifier.
const Name = "anthropic"

// Spec bills in USD. The cost report returns amounts already in cents.
var Spec = plugin.CostSourceSpec{
	Merchant:   "Anthropic",
	Currency:   "USD",
	Conversion: costreport.MinorUnits,
}

// Registration wires the plugin into a registry.
var Registration = plugin.Registration{
	Name:        Name,
	Description: "Anthropic API usage from the Admin cost report (admin_api_key)",
	New:         New,
}

// New builds the plugin from the admin_api_key credential.
func New(deps plugin.Deps) (plugin.Plugin, error) {
	key, err := deps.Settings.Credential("admin_api_key")
	if err != nil {
		return nil, err
	}
	client := api.NewClient(&api.Config{
		APIKey:  key,
		BaseURL: deps.Settings.BaseURL,
		Logger:  deps.Logger,
	})
	return plugin.NewCostSource(Spec, adminAPI{client}, deps), nil
}

type adminAPI struct {
	*api.Client
}

func (a adminAPI) Check(ctx context.Context) error { return a.Me(ctx) }
