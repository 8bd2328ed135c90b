// Package openai reports OpenAI API spend from the organization costs endpoint.
package openai

import (
	"context"

	"github.com/kailas-cloud/expensify-os/internal/costreport"
	"github.com/kailas-cloud/expensify-os/internal/plugin"
	api "github.com/kailas-cloud/expensify-os/internal/transport/openai"
)

// Name is the registry identifier.
const Name = "openai"

// Spec bills in USD. The costs endpoint returns dollars.
var Spec = plugin.CostSourceSpec{
	Merchant:   "OpenAI",
	Currency:   "USD",
	Conversion: costreport.MajorUnits,
}

// Registration wires the plugin into a registry.
var Registration = plugin.Registration{
	Name:        Name,
	Description: "OpenAI API usage from the organization costs endpoint (admin_api_key)",
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
	return plugin.NewCostSource(Spec, costsAPI{client}, deps), nil
}

type costsAPI struct {
	*api.Client
}

func (c costsAPI) Check(ctx context.Context) error { return c.Probe(ctx) }
