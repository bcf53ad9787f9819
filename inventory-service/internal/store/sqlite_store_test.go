package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteStore(t *testing.T, opts ...Option) InventoryStore {
	store, err := NewSQLiteStore(":memory:", opts...)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations("./migrations/sqlite"))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runLedgerSuite(t, setupSQLiteStore)
}

func TestSQLiteStore_LostSwapIsReportedAsConcurrentReduction(t *testing.T) {
	s := setupSQLiteStore(t, WithCASRetries(1)).(*SQLiteStore)
	ctx := context.Background()
	p := seedProduct(t, s, "Racy", 5)

	// a writer outside the store moves the counter between read and swap
	observed, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE products SET stock = stock - 1 WHERE id = ?`, p.ID)
	require.NoError(t, err)

	swapped, err := s.compareAndSwap(ctx, observed, observed.Stock-1, observed.Reserved)
	require.NoError(t, err)
	assert.False(t, swapped)

	err = concurrentReduction(p.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "Concurrent stock reduction occurred, please try again", err.Error())
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock(7)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}
