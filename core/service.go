package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// StoreProvider exposes the persisted stores built by a repository factory.
type StoreProvider interface {
	IntegrationStore() IntegrationStore
	TokenRecordStore() TokenRecordStore
	SyncLogStore() SyncLogStore
	ContactLinkStore() ContactLinkStore
	CallActivityLinkStore() CallActivityLinkStore
	CallStore() CallStore
}

// RepositoryStoreFactory builds stores from a persistence client.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// Service carries the resolved configuration and shared dependencies for
// the sync engine: provider registry, token vault, and the persisted stores.
type Service struct {
	config                Config
	logger                Logger
	loggerProvider        LoggerProvider
	errorFactory          ErrorFactory
	errorMapper           ErrorMapper
	configProvider        ConfigProvider
	optionsResolver       OptionsResolver
	registry              Registry
	vault                 TokenVault
	integrationStore      IntegrationStore
	syncLogStore          SyncLogStore
	contactLinkStore      ContactLinkStore
	callActivityLinkStore CallActivityLinkStore
	callStore             CallStore
	persistenceClient     any
	repositoryFactory     any
}

type ServiceDependencies struct {
	Logger                Logger
	LoggerProvider        LoggerProvider
	ErrorFactory          ErrorFactory
	ErrorMapper           ErrorMapper
	Registry              Registry
	Vault                 TokenVault
	IntegrationStore      IntegrationStore
	SyncLogStore          SyncLogStore
	ContactLinkStore      ContactLinkStore
	CallActivityLinkStore CallActivityLinkStore
	CallStore             CallStore
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("crmsync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("crmsync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.integrationStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				applyStoreProvider(&builder, storeProvider)
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			applyStoreProvider(&builder, storeProvider)
		}
	}

	return &Service{
		config:                finalConfig,
		logger:                logger,
		loggerProvider:        provider,
		errorFactory:          builder.errorFactory,
		errorMapper:           builder.errorMapper,
		configProvider:        builder.configProvider,
		optionsResolver:       builder.optionsResolver,
		registry:              builder.registry,
		vault:                 builder.vault,
		integrationStore:      builder.integrationStore,
		syncLogStore:          builder.syncLogStore,
		contactLinkStore:      builder.contactLinkStore,
		callActivityLinkStore: builder.callActivityLinkStore,
		callStore:             builder.callStore,
		persistenceClient:     builder.persistenceClient,
		repositoryFactory:     builder.repositoryFactory,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func applyStoreProvider(builder *serviceBuilder, provider StoreProvider) {
	if builder.integrationStore == nil {
		builder.integrationStore = provider.IntegrationStore()
	}
	if builder.syncLogStore == nil {
		builder.syncLogStore = provider.SyncLogStore()
	}
	if builder.contactLinkStore == nil {
		builder.contactLinkStore = provider.ContactLinkStore()
	}
	if builder.callActivityLinkStore == nil {
		builder.callActivityLinkStore = provider.CallActivityLinkStore()
	}
	if builder.callStore == nil {
		builder.callStore = provider.CallStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Vault() TokenVault {
	if s == nil {
		return nil
	}
	return s.vault
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:                s.logger,
		LoggerProvider:        s.loggerProvider,
		ErrorFactory:          s.errorFactory,
		ErrorMapper:           s.errorMapper,
		Registry:              s.registry,
		Vault:                 s.vault,
		IntegrationStore:      s.integrationStore,
		SyncLogStore:          s.syncLogStore,
		ContactLinkStore:      s.contactLinkStore,
		CallActivityLinkStore: s.callActivityLinkStore,
		CallStore:             s.callStore,
	}
}

// GetIntegration returns the tenant-visible integration row, including
// status and last error.
func (s *Service) GetIntegration(ctx context.Context, id string) (Integration, error) {
	if s == nil || s.integrationStore == nil {
		return Integration{}, fmt.Errorf("core: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Integration{}, s.mapError(fmt.Errorf("core: integration id is required"))
	}
	integration, err := s.integrationStore.Get(ctx, id)
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return integration, nil
}

// ListSyncLog returns the append-only run history for one integration,
// newest first.
func (s *Service) ListSyncLog(ctx context.Context, integrationID string, limit int) ([]SyncLogEntry, error) {
	if s == nil || s.syncLogStore == nil {
		return nil, fmt.Errorf("core: sync log store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil, s.mapError(fmt.Errorf("core: integration id is required"))
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.syncLogStore.ListByIntegration(ctx, integrationID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	return entries, nil
}

// ListDue previews the integrations the next scheduler tick would pick up.
func (s *Service) ListDue(ctx context.Context, limit int) ([]Integration, error) {
	if s == nil || s.integrationStore == nil {
		return nil, fmt.Errorf("core: integration store is not configured")
	}
	if limit <= 0 {
		limit = s.config.BatchSize
	}
	due, err := s.integrationStore.ListDue(ctx, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return due, nil
}

func (s *Service) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	if s == nil || s.integrationStore == nil {
		return fmt.Errorf("core: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.mapError(fmt.Errorf("core: integration id is required"))
	}
	if err := s.integrationStore.SetSyncEnabled(ctx, id, enabled); err != nil {
		return s.mapError(err)
	}
	s.logInfo(ctx, "integration sync toggled", map[string]any{
		"integration_id": id,
		"sync_enabled":   enabled,
	})
	return nil
}

// DisableIntegration soft-retires an integration; the row stays for audit.
func (s *Service) DisableIntegration(ctx context.Context, id string, reason string) error {
	if s == nil || s.integrationStore == nil {
		return fmt.Errorf("core: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.mapError(fmt.Errorf("core: integration id is required"))
	}
	if err := s.integrationStore.Disable(ctx, id, strings.TrimSpace(reason)); err != nil {
		return s.mapError(err)
	}
	s.logInfo(ctx, "integration disabled", map[string]any{
		"integration_id": id,
		"reason":         strings.TrimSpace(reason),
	})
	return nil
}

// ReclaimStale recovers integrations left in syncing by a crashed or
// timed-out run, using the configured threshold.
func (s *Service) ReclaimStale(ctx context.Context) (int, error) {
	if s == nil || s.integrationStore == nil {
		return 0, fmt.Errorf("core: integration store is not configured")
	}
	olderThan := s.config.ResolveStaleThreshold()
	reclaimed, err := s.integrationStore.ReclaimStale(ctx, olderThan)
	if err != nil {
		return 0, s.mapError(err)
	}
	if reclaimed > 0 {
		s.logInfo(ctx, "stale syncing integrations reclaimed", map[string]any{
			"reclaimed":  reclaimed,
			"older_than": olderThan.String(),
		})
	}
	return reclaimed, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	redacted := RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(redacted)
	}
	args := flattenFields(redacted)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
