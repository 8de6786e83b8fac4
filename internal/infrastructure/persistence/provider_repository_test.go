package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence/persistencetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syncStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedProvider(t *testing.T, repo *GormProviderRepository, slug string, priority int) *provider.Provider {
	t.Helper()
	p, err := repo.EnsureAndTouch(context.Background(), provider.NewProvider(slug, slug+" carrier", priority), syncStart)
	require.NoError(t, err)
	return p
}

func TestGormProviderRepository_EnsureAndTouch(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormProviderRepository(db)
	ctx := context.Background()

	p := seedProvider(t, repo, "esimgo", 10)
	assert.True(t, p.IsActive)
	assert.InDelta(t, 1.0, p.ReliabilityScore, 1e-9)
	require.NotNil(t, p.LastSync)
	assert.True(t, p.LastSync.Equal(syncStart))

	// an existing record keeps its state and only gets a new last_sync
	_, err := repo.RecordSyncFailure(ctx, "esimgo", 0.1, "boom")
	require.NoError(t, err)
	later := syncStart.Add(time.Hour)
	again, err := repo.EnsureAndTouch(ctx, provider.NewProvider("esimgo", "renamed", 1), later)
	require.NoError(t, err)
	assert.Equal(t, 10, again.Priority)
	assert.InDelta(t, 0.9, again.ReliabilityScore, 1e-9)
	assert.True(t, again.LastSync.Equal(later))

	_, err = repo.FindBySlug(ctx, "nope")
	assert.ErrorIs(t, err, provider.ErrProviderNotFound)
}

func TestGormProviderRepository_RecordSyncFailure_Clamps(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormProviderRepository(db)
	ctx := context.Background()
	seedProvider(t, repo, "esimaccess", 5)

	var last *provider.Provider
	for i := 0; i < 12; i++ {
		var err error
		last, err = repo.RecordSyncFailure(ctx, "esimaccess", 0.1, "timeout")
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.0, last.ReliabilityScore, 1e-9)
	assert.Equal(t, int64(12), last.FailedOrders)
	assert.Equal(t, "timeout", last.LastError)

	require.NoError(t, repo.RecordSyncSuccess(ctx, "esimaccess"))
	p, err := repo.FindBySlug(ctx, "esimaccess")
	require.NoError(t, err)
	assert.Empty(t, p.LastError)

	_, err = repo.RecordSyncFailure(ctx, "ghost", 0.1, "x")
	assert.ErrorIs(t, err, provider.ErrProviderNotFound)
}

func TestGormProviderRepository_ConcurrentFailuresLoseNothing(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormProviderRepository(db)
	seedProvider(t, repo, "esimgo", 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordSyncFailure(context.Background(), "esimgo", 0.1, "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := repo.FindBySlug(context.Background(), "esimgo")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.ReliabilityScore, 1e-9)
	assert.Equal(t, int64(4), p.FailedOrders)
}

func TestGormProviderRepository_DeactivateIfBelow(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormProviderRepository(db)
	ctx := context.Background()
	policy := provider.DefaultHealthPolicy()
	seedProvider(t, repo, "esimgo", 1)

	// five failures land on 0.5 which is not below the threshold
	for i := 0; i < 5; i++ {
		_, err := repo.RecordSyncFailure(ctx, "esimgo", policy.FailureStep, "x")
		require.NoError(t, err)
	}
	flipped, err := repo.DeactivateIfBelow(ctx, "esimgo", policy.DeactivationBound())
	require.NoError(t, err)
	assert.False(t, flipped)

	_, err = repo.RecordSyncFailure(ctx, "esimgo", policy.FailureStep, "x")
	require.NoError(t, err)
	flipped, err = repo.DeactivateIfBelow(ctx, "esimgo", policy.DeactivationBound())
	require.NoError(t, err)
	assert.True(t, flipped)

	// second call observes the already inactive row
	flipped, err = repo.DeactivateIfBelow(ctx, "esimgo", policy.DeactivationBound())
	require.NoError(t, err)
	assert.False(t, flipped)

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.SetActive(ctx, "esimgo", true))
	p, err := repo.FindBySlug(ctx, "esimgo")
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.InDelta(t, 1.0, p.ReliabilityScore, 1e-9)
}

func TestGormProviderRepository_CountersAndBalance(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormProviderRepository(db)
	ctx := context.Background()
	seedProvider(t, repo, "low", 1)
	seedProvider(t, repo, "high", 9)

	require.NoError(t, repo.IncrementFailedOrders(ctx, "low"))
	require.NoError(t, repo.UpdateBalance(ctx, "low", decimal.RequireFromString("123.45"), "USD", syncStart))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "high", all[0].Slug)

	low := all[1]
	assert.Equal(t, int64(1), low.FailedOrders)
	assert.True(t, low.Balance.Equal(decimal.RequireFromString("123.45")))
	assert.Equal(t, "USD", low.BalanceCurrency)
	require.NotNil(t, low.BalanceCheckedAt)

	assert.ErrorIs(t, repo.IncrementFailedOrders(ctx, "ghost"), provider.ErrProviderNotFound)
}
