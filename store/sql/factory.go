package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-crm-sync/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed stores once per database handle
// and hands them to the service as a StoreProvider.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	integrationStore      *IntegrationStore
	tokenStore            *TokenStore
	syncLogStore          *SyncLogStore
	contactLinkStore      core.ContactLinkStore
	callActivityLinkStore *CallActivityLinkStore
	callStore             *CallStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

// WithContactLinkCache decorates the contact link store with a read cache.
// Must be applied before BuildStores.
func (f *RepositoryFactory) WithContactLinkCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.cache = cacheService
	}
	return f
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.integrationStore != nil && f.tokenStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) initStores() error {
	integrationStore, err := NewIntegrationStore(f.db)
	if err != nil {
		return err
	}
	f.integrationStore = integrationStore

	tokenStore, err := NewTokenStore(f.db)
	if err != nil {
		return err
	}
	f.tokenStore = tokenStore

	syncLogStore, err := NewSyncLogStore(f.db)
	if err != nil {
		return err
	}
	f.syncLogStore = syncLogStore

	contactLinkStore, err := NewContactLinkStore(f.db)
	if err != nil {
		return err
	}
	if f.cache != nil {
		cached, cacheErr := NewCachedContactLinkStore(contactLinkStore, f.cache)
		if cacheErr != nil {
			return cacheErr
		}
		f.contactLinkStore = cached
	} else {
		f.contactLinkStore = contactLinkStore
	}

	callActivityLinkStore, err := NewCallActivityLinkStore(f.db)
	if err != nil {
		return err
	}
	f.callActivityLinkStore = callActivityLinkStore

	callStore, err := NewCallStore(f.db)
	if err != nil {
		return err
	}
	f.callStore = callStore

	return nil
}

func (f *RepositoryFactory) IntegrationStore() core.IntegrationStore {
	if f == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) TokenRecordStore() core.TokenRecordStore {
	if f == nil {
		return nil
	}
	return f.tokenStore
}

func (f *RepositoryFactory) SyncLogStore() core.SyncLogStore {
	if f == nil {
		return nil
	}
	return f.syncLogStore
}

func (f *RepositoryFactory) ContactLinkStore() core.ContactLinkStore {
	if f == nil {
		return nil
	}
	return f.contactLinkStore
}

func (f *RepositoryFactory) CallActivityLinkStore() core.CallActivityLinkStore {
	if f == nil {
		return nil
	}
	return f.callActivityLinkStore
}

func (f *RepositoryFactory) CallStore() core.CallStore {
	if f == nil {
		return nil
	}
	return f.callStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
)
