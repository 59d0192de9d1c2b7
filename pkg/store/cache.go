package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// DefaultCacheTTL is how long cached integration reads may be served.
const DefaultCacheTTL = 5 * time.Minute

// CachedIntegrationStore is a bounded read-through cache over an
// IntegrationStore. Reads may be up to TTL stale; writes revalidate; the
// token-cache and signing operations always go to the backing store and drop
// the cached row, because token freshness cannot tolerate the TTL.
type CachedIntegrationStore struct {
	backing IntegrationStore
	ttl     time.Duration

	mu    sync.RWMutex
	byID  map[string]cachedConfig
	lists map[string]cachedList
}

type cachedConfig struct {
	ic        *models.IntegrationConfig
	expiresAt time.Time
}

type cachedList struct {
	ics       []*models.IntegrationConfig
	expiresAt time.Time
}

// NewCachedIntegrationStore wraps backing with a TTL cache.
func NewCachedIntegrationStore(backing IntegrationStore, ttl time.Duration) *CachedIntegrationStore {
	return &CachedIntegrationStore{
		backing: backing,
		ttl:     ttl,
		byID:    make(map[string]cachedConfig),
		lists:   make(map[string]cachedList),
	}
}

func (c *CachedIntegrationStore) GetByID(ctx context.Context, id string) (*models.IntegrationConfig, error) {
	c.mu.RLock()
	entry, ok := c.byID[id]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.ic, nil
	}

	ic, err := c.backing.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byID[id] = cachedConfig{ic: ic, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return ic, nil
}

func (c *CachedIntegrationStore) ListForTenantsAndEvent(ctx context.Context, tenantIDs []int64, eventType string) ([]*models.IntegrationConfig, error) {
	key := listKey(tenantIDs, eventType)
	c.mu.RLock()
	entry, ok := c.lists[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.ics, nil
	}

	ics, err := c.backing.ListForTenantsAndEvent(ctx, tenantIDs, eventType)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.lists[key] = cachedList{ics: ics, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return ics, nil
}

// ListScheduled is not cached: the job runner's scan is periodic and must
// see config changes promptly.
func (c *CachedIntegrationStore) ListScheduled(ctx context.Context) ([]*models.IntegrationConfig, error) {
	return c.backing.ListScheduled(ctx)
}

func (c *CachedIntegrationStore) Save(ctx context.Context, ic *models.IntegrationConfig) error {
	if err := c.backing.Save(ctx, ic); err != nil {
		return err
	}
	c.invalidate(ic.ID)
	return nil
}

func (c *CachedIntegrationStore) UpdateTokenCache(ctx context.Context, id string, patch TokenCachePatch) error {
	if err := c.backing.UpdateTokenCache(ctx, id, patch); err != nil {
		return err
	}
	c.invalidate(id)
	return nil
}

func (c *CachedIntegrationStore) RotateSigningSecret(ctx context.Context, id string) (*models.SigningSecret, error) {
	secret, err := c.backing.RotateSigningSecret(ctx, id)
	if err != nil {
		return nil, err
	}
	c.invalidate(id)
	return secret, nil
}

func (c *CachedIntegrationStore) RemoveSigningSecret(ctx context.Context, id string, secret string) error {
	if err := c.backing.RemoveSigningSecret(ctx, id, secret); err != nil {
		return err
	}
	c.invalidate(id)
	return nil
}

// invalidate drops the row and all cached lists. Lists are dropped wholesale
// because membership may have changed.
func (c *CachedIntegrationStore) invalidate(id string) {
	c.mu.Lock()
	delete(c.byID, id)
	c.lists = make(map[string]cachedList)
	c.mu.Unlock()
}

func listKey(tenantIDs []int64, eventType string) string {
	key := eventType
	for _, id := range tenantIDs {
		key += "|" + strconv.FormatInt(id, 10)
	}
	return key
}
