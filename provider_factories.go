package crmsync

import (
	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers/hubspot"
	"github.com/goliatone/go-crm-sync/providers/salesforce"
	"github.com/goliatone/go-crm-sync/transport"
)

func HubSpotProvider(cfg hubspot.Config, rest *transport.RESTClient) (core.Provider, error) {
	return hubspot.New(cfg, rest)
}

func SalesforceProvider(cfg salesforce.Config, rest *transport.RESTClient) (core.Provider, error) {
	return salesforce.New(cfg, rest)
}

// RegisterBuiltinProviders wires every provider with a non-empty config
// into the registry. Providers left unconfigured are skipped, not errors.
func RegisterBuiltinProviders(registry core.Registry, rest *transport.RESTClient, hubspotCfg *hubspot.Config, salesforceCfg *salesforce.Config) error {
	if hubspotCfg != nil {
		provider, err := hubspot.New(*hubspotCfg, rest)
		if err != nil {
			return err
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
	}
	if salesforceCfg != nil {
		provider, err := salesforce.New(*salesforceCfg, rest)
		if err != nil {
			return err
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
	}
	return nil
}
