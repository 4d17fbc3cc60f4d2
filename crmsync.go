package crmsync

import "github.com/goliatone/go-crm-sync/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Integration = core.Integration
type IntegrationStatus = core.IntegrationStatus
type SyncDirection = core.SyncDirection
type SyncLogEntry = core.SyncLogEntry
type TokenSet = core.TokenSet
type ContactLink = core.ContactLink
type CallActivityLink = core.CallActivityLink
type CallRecord = core.CallRecord
type RemoteContact = core.RemoteContact
type ProviderSettings = core.ProviderSettings

type Provider = core.Provider
type Registry = core.Registry
type TokenVault = core.TokenVault
type IntegrationStore = core.IntegrationStore
type SyncLogStore = core.SyncLogStore
type ContactLinkStore = core.ContactLinkStore
type CallActivityLinkStore = core.CallActivityLinkStore
type CallStore = core.CallStore
type StoreProvider = core.StoreProvider
type RepositoryStoreFactory = core.RepositoryStoreFactory

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithRegistry              = core.WithRegistry
	WithTokenVault            = core.WithTokenVault
	WithIntegrationStore      = core.WithIntegrationStore
	WithSyncLogStore          = core.WithSyncLogStore
	WithContactLinkStore      = core.WithContactLinkStore
	WithCallActivityLinkStore = core.WithCallActivityLinkStore
	WithCallStore             = core.WithCallStore
	WithPersistenceClient     = core.WithPersistenceClient
	WithRepositoryFactory     = core.WithRepositoryFactory
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
