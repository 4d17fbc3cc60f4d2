package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-crm-sync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const contactLinkCacheKeyPrefix = "go-crm-sync::contact_link::v1"

type contactLinkLookup struct {
	Link  core.ContactLink
	Found bool
}

// CachedContactLinkStore fronts the contact link store with a read cache.
// The outbound push resolves one phone lookup per candidate call, and those
// lookups repeat across runs; the cache keeps them off the database.
type CachedContactLinkStore struct {
	base  core.ContactLinkStore
	cache repositorycache.CacheService
}

func NewCachedContactLinkStore(
	base core.ContactLinkStore,
	cacheService repositorycache.CacheService,
) (*CachedContactLinkStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base contact link store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: contact link cache service is required")
	}
	return &CachedContactLinkStore{base: base, cache: cacheService}, nil
}

// ContactLinkPhoneCacheKey returns the deterministic cache key for phone
// lookups: go-crm-sync::contact_link::v1::phone::<integration>::<phone>
// with each segment URL-path escaped.
func ContactLinkPhoneCacheKey(integrationID string, phone string) string {
	return contactLinkCacheKey("phone", integrationID, phone)
}

// ContactLinkRemoteCacheKey returns the deterministic cache key for remote
// object lookups.
func ContactLinkRemoteCacheKey(integrationID string, objectType string, objectID string) string {
	return contactLinkCacheKey("remote", integrationID, objectType, objectID)
}

func contactLinkCacheKey(kind string, segments ...string) string {
	parts := []string{contactLinkCacheKeyPrefix, kind}
	for _, segment := range segments {
		parts = append(parts, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(parts, "::")
}

// Upsert writes through to the base store and drops the affected keys so
// the next read observes the refreshed row.
func (s *CachedContactLinkStore) Upsert(ctx context.Context, link core.ContactLink) (core.ContactLink, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ContactLink{}, fmt.Errorf("sqlstore: cached contact link store is not configured")
	}
	stored, err := s.base.Upsert(ctx, link)
	if err != nil {
		return core.ContactLink{}, err
	}

	_ = s.cache.Delete(ctx, ContactLinkRemoteCacheKey(stored.IntegrationID, stored.RemoteObjectType, stored.RemoteObjectID))
	if phone := strings.TrimSpace(stored.Phone); phone != "" {
		_ = s.cache.Delete(ctx, ContactLinkPhoneCacheKey(stored.IntegrationID, phone))
	}
	if phone := strings.TrimSpace(link.Phone); phone != "" && phone != strings.TrimSpace(stored.Phone) {
		_ = s.cache.Delete(ctx, ContactLinkPhoneCacheKey(stored.IntegrationID, phone))
	}
	return stored, nil
}

func (s *CachedContactLinkStore) FindByPhone(ctx context.Context, integrationID string, phone string) (core.ContactLink, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ContactLink{}, false, fmt.Errorf("sqlstore: cached contact link store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	phone = strings.TrimSpace(phone)
	if integrationID == "" || phone == "" {
		return core.ContactLink{}, false, nil
	}

	lookup, err := repositorycache.GetOrFetch(ctx, s.cache, ContactLinkPhoneCacheKey(integrationID, phone), func(ctx context.Context) (contactLinkLookup, error) {
		link, found, fetchErr := s.base.FindByPhone(ctx, integrationID, phone)
		if fetchErr != nil {
			return contactLinkLookup{}, fetchErr
		}
		return contactLinkLookup{Link: link, Found: found}, nil
	})
	if err != nil {
		return core.ContactLink{}, false, err
	}
	return lookup.Link, lookup.Found, nil
}

func (s *CachedContactLinkStore) FindByRemote(ctx context.Context, integrationID string, objectType string, objectID string) (core.ContactLink, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ContactLink{}, false, fmt.Errorf("sqlstore: cached contact link store is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	objectType = strings.TrimSpace(objectType)
	objectID = strings.TrimSpace(objectID)
	if integrationID == "" || objectType == "" || objectID == "" {
		return core.ContactLink{}, false, nil
	}

	lookup, err := repositorycache.GetOrFetch(ctx, s.cache, ContactLinkRemoteCacheKey(integrationID, objectType, objectID), func(ctx context.Context) (contactLinkLookup, error) {
		link, found, fetchErr := s.base.FindByRemote(ctx, integrationID, objectType, objectID)
		if fetchErr != nil {
			return contactLinkLookup{}, fetchErr
		}
		return contactLinkLookup{Link: link, Found: found}, nil
	})
	if err != nil {
		return core.ContactLink{}, false, err
	}
	return lookup.Link, lookup.Found, nil
}

var _ core.ContactLinkStore = (*CachedContactLinkStore)(nil)
