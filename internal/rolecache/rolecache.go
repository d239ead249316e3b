// Package rolecache caches on-chain roles with per-chain TTLs. Lookups go
// hot tier, then the persisted wallet row, then the chain itself.
package rolecache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/portfolio-sentinel/internal/adapter"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
)

// WalletStore is the persisted wallet row access the cache needs
type WalletStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListAll(ctx context.Context) ([]*models.Wallet, error)
	UpdateRoleCache(ctx context.Context, walletID uuid.UUID, role types.Role, cachedAt time.Time) error
}

// Resolver resolves a role from the chain
type Resolver interface {
	Role(ctx context.Context, chainID types.ChainID, address string) (types.Role, error)
}

// RegistryResolver adapts the chain adapter registry to the Resolver
// interface.
type RegistryResolver struct {
	registry *adapter.Registry
}

// NewRegistryResolver wraps a registry
func NewRegistryResolver(registry *adapter.Registry) *RegistryResolver {
	return &RegistryResolver{registry: registry}
}

// Role resolves via the chain's adapter
func (r *RegistryResolver) Role(ctx context.Context, chainID types.ChainID, address string) (types.Role, error) {
	a, err := r.registry.Get(chainID)
	if err != nil {
		return types.RoleNone, err
	}
	return a.Role(ctx, address)
}

// Result is a role lookup outcome. Stale marks a value served past its TTL
// because a forced refresh failed.
type Result struct {
	Role     types.Role
	CachedAt time.Time
	Stale    bool
}

// Config holds role cache TTL settings
type Config struct {
	DefaultTTL   time.Duration
	TTLOverrides map[types.ChainID]time.Duration
}

// Cache is the role cache
type Cache struct {
	wallets  WalletStore
	resolver Resolver
	cfg      Config
	hot      *gocache.Cache
	logger   *logging.Logger
	nowFn    func() time.Time
}

type hotEntry struct {
	role     types.Role
	cachedAt time.Time
}

// New creates a role cache
func New(wallets WalletStore, resolver Resolver, cfg Config) *Cache {
	// The hot tier's own expiry is only garbage collection; validity is
	// always computed against the per-chain TTL so tests can inject time.
	gcTTL := cfg.DefaultTTL * 4
	if gcTTL <= 0 {
		gcTTL = 20 * time.Minute
	}

	return &Cache{
		wallets:  wallets,
		resolver: resolver,
		cfg:      cfg,
		hot:      gocache.New(gcTTL, gcTTL),
		logger:   logging.WithField("component", "rolecache"),
		nowFn:    time.Now,
	}
}

// TTL returns the cache TTL for a chain
func (c *Cache) TTL(chainID types.ChainID) time.Duration {
	if ttl, ok := c.cfg.TTLOverrides[chainID]; ok {
		return ttl
	}
	return c.cfg.DefaultTTL
}

// Lookup returns the wallet's role, refreshing from the chain only when
// every cached tier has expired.
func (c *Cache) Lookup(ctx context.Context, walletID uuid.UUID) (*Result, error) {
	wallet, err := c.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	ttl := c.TTL(wallet.ChainID)
	now := c.nowFn()

	if entry, ok := c.hot.Get(walletID.String()); ok {
		hot := entry.(hotEntry)
		if hot.cachedAt.Add(ttl).After(now) {
			return &Result{Role: hot.role, CachedAt: hot.cachedAt}, nil
		}
	}

	if wallet.Role != nil && wallet.RoleCachedAt != nil && wallet.RoleCachedAt.Add(ttl).After(now) {
		c.hot.SetDefault(walletID.String(), hotEntry{role: *wallet.Role, cachedAt: *wallet.RoleCachedAt})
		return &Result{Role: *wallet.Role, CachedAt: *wallet.RoleCachedAt}, nil
	}

	return c.refresh(ctx, wallet)
}

// Refresh resolves the role from the chain regardless of cache state.
// When the chain call fails and a prior value exists, that value is
// returned marked stale instead of an error.
func (c *Cache) Refresh(ctx context.Context, walletID uuid.UUID) (*Result, error) {
	wallet, err := c.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return c.refresh(ctx, wallet)
}

func (c *Cache) refresh(ctx context.Context, wallet *models.Wallet) (*Result, error) {
	role, err := c.resolver.Role(ctx, wallet.ChainID, wallet.Address)
	if err != nil {
		if wallet.Role != nil && wallet.RoleCachedAt != nil {
			c.logger.WithFields(map[string]interface{}{
				"walletId": wallet.ID.String(),
				"chainId":  uint64(wallet.ChainID),
			}).WithError(err).Warn("role refresh failed, serving prior value as stale")
			return &Result{Role: *wallet.Role, CachedAt: *wallet.RoleCachedAt, Stale: true}, nil
		}
		return nil, err
	}

	now := c.nowFn()
	if err := c.wallets.UpdateRoleCache(ctx, wallet.ID, role, now); err != nil {
		c.logger.WithField("walletId", wallet.ID.String()).WithError(err).Warn("failed to persist role cache")
	}
	c.hot.SetDefault(wallet.ID.String(), hotEntry{role: role, cachedAt: now})

	return &Result{Role: role, CachedAt: now}, nil
}

// RefreshAll force-refreshes every tracked wallet. One failing wallet
// never aborts the pass. A wallet served its prior value because the
// chain lookup failed counts as a failure, not a success.
func (c *Cache) RefreshAll(ctx context.Context) (succeeded, failed int, err error) {
	wallets, err := c.wallets.ListAll(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, wallet := range wallets {
		result, refreshErr := c.refresh(ctx, wallet)
		if refreshErr != nil {
			failed++
			c.logger.WithField("walletId", wallet.ID.String()).WithError(refreshErr).Warn("role refresh failed")
			continue
		}
		if result.Stale {
			failed++
			continue
		}
		succeeded++
	}

	return succeeded, failed, nil
}

// Invalidate drops the hot entry for a wallet
func (c *Cache) Invalidate(walletID uuid.UUID) {
	c.hot.Delete(walletID.String())
}
