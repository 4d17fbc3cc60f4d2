package crmsync

import (
	"fmt"

	gocronadapter "github.com/goliatone/go-crm-sync/adapters/gocron"
	crmcommand "github.com/goliatone/go-crm-sync/command"
	"github.com/goliatone/go-crm-sync/core"
	crmquery "github.com/goliatone/go-crm-sync/query"
	syncengine "github.com/goliatone/go-crm-sync/sync"
)

type Commands struct {
	TriggerSync        *crmcommand.TriggerSyncCommand
	RunDueBatch        *crmcommand.RunDueBatchCommand
	ReclaimStale       *crmcommand.ReclaimStaleCommand
	SetSyncEnabled     *crmcommand.SetSyncEnabledCommand
	DisableIntegration *crmcommand.DisableIntegrationCommand
	DeleteCredentials  *crmcommand.DeleteCredentialsCommand
}

type Queries struct {
	GetIntegration *crmquery.GetIntegrationQuery
	ListSyncLog    *crmquery.ListSyncLogQuery
	ListDue        *crmquery.ListDueQuery
}

// Facade assembles the sync engine and its command/query surface from a
// configured Service. The worker and orchestrator share the service's
// stores, so a facade per service instance is the expected shape.
type Facade struct {
	service      *core.Service
	worker       *syncengine.Worker
	orchestrator *syncengine.Orchestrator
	commands     Commands
	queries      Queries
}

func NewFacade(service *core.Service) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("crmsync: service is required")
	}
	deps := service.Dependencies()

	worker, err := syncengine.NewWorker(syncengine.WorkerDependencies{
		Registry:          deps.Registry,
		Vault:             deps.Vault,
		Integrations:      deps.IntegrationStore,
		SyncLogs:          deps.SyncLogStore,
		ContactLinks:      deps.ContactLinkStore,
		CallActivityLinks: deps.CallActivityLinkStore,
		Calls:             deps.CallStore,
	}, service.Config(), deps.Logger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := syncengine.NewOrchestrator(worker, deps.IntegrationStore, service.Config(), deps.Logger)
	if err != nil {
		return nil, err
	}

	facade := &Facade{
		service:      service,
		worker:       worker,
		orchestrator: orchestrator,
	}
	facade.commands = Commands{
		TriggerSync:        crmcommand.NewTriggerSyncCommand(orchestrator),
		RunDueBatch:        crmcommand.NewRunDueBatchCommand(orchestrator),
		ReclaimStale:       crmcommand.NewReclaimStaleCommand(service),
		SetSyncEnabled:     crmcommand.NewSetSyncEnabledCommand(service),
		DisableIntegration: crmcommand.NewDisableIntegrationCommand(service),
		DeleteCredentials:  crmcommand.NewDeleteCredentialsCommand(deps.Vault),
	}
	facade.queries = Queries{
		GetIntegration: crmquery.NewGetIntegrationQuery(service),
		ListSyncLog:    crmquery.NewListSyncLogQuery(service),
		ListDue:        crmquery.NewListDueQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *core.Service {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Orchestrator() *syncengine.Orchestrator {
	if f == nil {
		return nil
	}
	return f.orchestrator
}

func (f *Facade) Worker() *syncengine.Worker {
	if f == nil {
		return nil
	}
	return f.worker
}

// Scheduler builds the interval runner for this facade's orchestrator
// using the configured sync interval. The caller owns Start and Stop.
func (f *Facade) Scheduler() (*gocronadapter.Runner, error) {
	if f == nil || f.orchestrator == nil {
		return nil, fmt.Errorf("crmsync: facade is not configured")
	}
	return gocronadapter.NewRunner(f.orchestrator, f.service.Config().SyncInterval, f.service.Logger())
}
