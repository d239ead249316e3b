package rolecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
)

type fakeWalletStore struct {
	wallets map[uuid.UUID]*models.Wallet
}

func (s *fakeWalletStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, ok := s.wallets[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *wallet
	return &copied, nil
}

func (s *fakeWalletStore) ListAll(ctx context.Context) ([]*models.Wallet, error) {
	var out []*models.Wallet
	for _, w := range s.wallets {
		copied := *w
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeWalletStore) UpdateRoleCache(ctx context.Context, walletID uuid.UUID, role types.Role, cachedAt time.Time) error {
	wallet, ok := s.wallets[walletID]
	if !ok {
		return errors.New("not found")
	}
	wallet.Role = &role
	wallet.RoleCachedAt = &cachedAt
	return nil
}

type fakeResolver struct {
	role  types.Role
	err   error
	calls int
}

func (r *fakeResolver) Role(ctx context.Context, chainID types.ChainID, address string) (types.Role, error) {
	r.calls++
	if r.err != nil {
		return types.RoleNone, r.err
	}
	return r.role, nil
}

func newTestCache(store *fakeWalletStore, resolver Resolver) *Cache {
	return New(store, resolver, Config{
		DefaultTTL: 5 * time.Minute,
		TTLOverrides: map[types.ChainID]time.Duration{
			types.ChainEthereum: 10 * time.Minute,
			types.ChainPolygon:  2 * time.Minute,
		},
	})
}

func newWallet(chain types.ChainID) *models.Wallet {
	return &models.Wallet{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Address: "0x0000000000000000000000000000000000000001",
		ChainID: chain,
	}
}

func TestTTLOverrides(t *testing.T) {
	cache := newTestCache(&fakeWalletStore{}, &fakeResolver{})

	if got := cache.TTL(types.ChainEthereum); got != 10*time.Minute {
		t.Errorf("TTL(1) = %v, want 10m", got)
	}
	if got := cache.TTL(types.ChainPolygon); got != 2*time.Minute {
		t.Errorf("TTL(137) = %v, want 2m", got)
	}
	if got := cache.TTL(types.ChainBSC); got != 5*time.Minute {
		t.Errorf("TTL(56) = %v, want default 5m", got)
	}
}

func TestLookupServesCachedWithinTTL(t *testing.T) {
	wallet := newWallet(types.ChainEthereum)
	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{wallet.ID: wallet}}
	resolver := &fakeResolver{role: types.RoleAdmin}
	cache := newTestCache(store, resolver)

	base := time.Now()
	cache.nowFn = func() time.Time { return base }

	// First lookup resolves from the chain
	result, err := cache.Lookup(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if result.Role != types.RoleAdmin || resolver.calls != 1 {
		t.Fatalf("first lookup: role = %v, calls = %d", result.Role, resolver.calls)
	}

	// At 500s into a 600s TTL the cached value is still valid
	cache.nowFn = func() time.Time { return base.Add(500 * time.Second) }
	result, err = cache.Lookup(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if resolver.calls != 1 {
		t.Errorf("calls = %d, lookup within TTL must not hit the chain", resolver.calls)
	}
	if result.Stale {
		t.Error("cached-but-valid value must not be stale")
	}

	// At 700s the TTL has expired and the chain is consulted again
	cache.nowFn = func() time.Time { return base.Add(700 * time.Second) }
	resolver.role = types.RoleViewer
	result, err = cache.Lookup(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if resolver.calls != 2 {
		t.Errorf("calls = %d, expired TTL must trigger a refresh", resolver.calls)
	}
	if result.Role != types.RoleViewer {
		t.Errorf("Role = %v, want refreshed viewer", result.Role)
	}
}

func TestLookupUsesPersistedRow(t *testing.T) {
	wallet := newWallet(types.ChainBSC)
	role := types.RoleViewer
	cachedAt := time.Now().Add(-time.Minute)
	wallet.Role = &role
	wallet.RoleCachedAt = &cachedAt

	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{wallet.ID: wallet}}
	resolver := &fakeResolver{role: types.RoleAdmin}
	cache := newTestCache(store, resolver)

	result, err := cache.Lookup(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if result.Role != types.RoleViewer {
		t.Errorf("Role = %v, want persisted viewer", result.Role)
	}
	if resolver.calls != 0 {
		t.Errorf("calls = %d, valid persisted row must not hit the chain", resolver.calls)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	wallet := newWallet(types.ChainEthereum)
	role := types.RoleViewer
	cachedAt := time.Now()
	wallet.Role = &role
	wallet.RoleCachedAt = &cachedAt

	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{wallet.ID: wallet}}
	resolver := &fakeResolver{role: types.RoleAdmin}
	cache := newTestCache(store, resolver)

	result, err := cache.Refresh(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if result.Role != types.RoleAdmin || resolver.calls != 1 {
		t.Errorf("Refresh must always hit the chain: role = %v, calls = %d", result.Role, resolver.calls)
	}

	// Persisted row updated
	if *store.wallets[wallet.ID].Role != types.RoleAdmin {
		t.Error("refreshed role was not persisted")
	}
}

func TestRefreshFailureServesStale(t *testing.T) {
	wallet := newWallet(types.ChainEthereum)
	role := types.RoleAdmin
	cachedAt := time.Now().Add(-time.Hour)
	wallet.Role = &role
	wallet.RoleCachedAt = &cachedAt

	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{wallet.ID: wallet}}
	resolver := &fakeResolver{err: apperrors.NewProviderTimeout("rpc")}
	cache := newTestCache(store, resolver)

	result, err := cache.Refresh(context.Background(), wallet.ID)
	if err != nil {
		t.Fatalf("Refresh() with prior value should not error, got %v", err)
	}
	if !result.Stale {
		t.Error("value served after failed refresh must be marked stale")
	}
	if result.Role != types.RoleAdmin {
		t.Errorf("Role = %v, want prior admin", result.Role)
	}
}

func TestRefreshFailureWithoutPriorValue(t *testing.T) {
	wallet := newWallet(types.ChainEthereum)
	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{wallet.ID: wallet}}
	resolver := &fakeResolver{err: apperrors.NewProviderTimeout("rpc")}
	cache := newTestCache(store, resolver)

	if _, err := cache.Refresh(context.Background(), wallet.ID); err == nil {
		t.Error("Refresh without a prior value must surface the error")
	}
}

func TestRefreshAllCountsFailures(t *testing.T) {
	good := newWallet(types.ChainEthereum)
	bad := newWallet(types.ChainPolygon)

	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{
		good.ID: good,
		bad.ID:  bad,
	}}

	resolver := &failByChainResolver{failChain: types.ChainPolygon}
	cache := newTestCache(store, resolver)

	succeeded, failed, err := cache.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if succeeded != 1 || failed != 1 {
		t.Errorf("succeeded = %d, failed = %d, want 1 and 1", succeeded, failed)
	}
}

func TestRefreshAllCountsStaleServesAsFailures(t *testing.T) {
	wallet := newWallet(types.ChainPolygon)
	role := types.RoleAdmin
	cachedAt := time.Now().Add(-time.Hour)
	wallet.Role = &role
	wallet.RoleCachedAt = &cachedAt

	store := &fakeWalletStore{wallets: map[uuid.UUID]*models.Wallet{wallet.ID: wallet}}
	resolver := &fakeResolver{err: apperrors.NewProviderTimeout("rpc")}
	cache := newTestCache(store, resolver)

	// The single-wallet path serves the prior value as stale without an
	// error; the bulk pass still has to report the wallet as failed.
	succeeded, failed, err := cache.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if succeeded != 0 || failed != 1 {
		t.Errorf("succeeded = %d, failed = %d, want 0 and 1", succeeded, failed)
	}
}

type failByChainResolver struct {
	failChain types.ChainID
}

func (r *failByChainResolver) Role(ctx context.Context, chainID types.ChainID, address string) (types.Role, error) {
	if chainID == r.failChain {
		return types.RoleNone, apperrors.NewProviderTimeout("rpc")
	}
	return types.RoleViewer, nil
}
