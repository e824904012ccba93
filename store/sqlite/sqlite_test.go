package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/payroll"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_VersionedWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// GIVEN: an absent key
	data, v, err := store.Get(ctx, "bakery_employees")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, generic.Version(0), v)

	// WHEN: created, then updated with the right version
	v1, err := store.Set(ctx, "bakery_employees", []byte(`[]`), 0)
	require.NoError(t, err)
	assert.Equal(t, generic.Version(1), v1)

	v2, err := store.Set(ctx, "bakery_employees", []byte(`[{"id":"E1"}]`), v1)
	require.NoError(t, err)
	assert.Equal(t, generic.Version(2), v2)

	// THEN: stale writers lose
	_, err = store.Set(ctx, "bakery_employees", []byte(`[]`), v1)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	_, err = store.Set(ctx, "bakery_employees", []byte(`[]`), 0)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	data, v, err = store.Get(ctx, "bakery_employees")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"E1"}]`, string(data))
	assert.Equal(t, v2, v)

	// AND: unconditional writes bump the version
	v3, err := store.Set(ctx, "bakery_employees", []byte(`[]`), generic.AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, generic.Version(3), v3)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bakery_employees"}, keys)
}

func TestStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Set(ctx, "counter", []byte("0"), 0)
	require.NoError(t, err)

	// Every goroutine retries until its conditional write lands
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, v, err := store.Get(ctx, "counter")
				if err != nil {
					t.Error(err)
					return
				}
				if _, err := store.Set(ctx, "counter", []byte("x"), v); err == nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	_, v, err := store.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, generic.Version(11), v)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payroll.db")

	store, err := New(path)
	require.NoError(t, err)
	repo := payroll.NewRepository(store, payroll.DefaultKeys())
	_, err = repo.SaveRoster(ctx, []payroll.Employee{{ID: "E1", Name: "Abebe", Salary: decimal.NewFromInt(700), PaymentCadence: "weekly"}}, generic.AnyVersion)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	roster, _, err := payroll.NewRepository(reopened, payroll.DefaultKeys()).Roster(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Abebe", roster[0].Name)
}

func TestStore_EngineEndToEnd(t *testing.T) {
	// GIVEN: the engine over SQLite
	ctx := context.Background()
	store := newTestStore(t)
	repo := payroll.NewRepository(store, payroll.DefaultKeys())
	now := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	engine := payroll.NewEngine(repo, payroll.WithClock(func() time.Time { return now }))

	_, err := repo.SaveRoster(ctx, []payroll.Employee{{ID: "E1", Name: "Abebe", Salary: decimal.NewFromInt(700), PaymentCadence: "weekly"}}, generic.AnyVersion)
	require.NoError(t, err)
	_, err = engine.Snapshot(ctx)
	require.NoError(t, err)

	// WHEN: paid to date on day 4
	now = now.AddDate(0, 0, 3)
	res, err := engine.PayToDate(ctx, "E1")
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "400.00", res.Amount.StringFixed(2))
	entries, err := engine.Ledger(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.PayslipID, entries[0].PayslipID)
}

func TestStore_RefreshRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	start := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRefreshRun(ctx, RefreshRun{StartedAt: start, CompletedAt: start.Add(time.Second), Status: "completed", Relabeled: 2}))
	require.NoError(t, store.SaveRefreshRun(ctx, RefreshRun{StartedAt: start.Add(time.Hour), CompletedAt: start.Add(time.Hour), Status: "failed", Error: "boom"}))

	runs, err := store.RecentRefreshRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "failed", runs[0].Status)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, 2, runs[1].Relabeled)
	assert.True(t, runs[1].StartedAt.Equal(start))

	require.NoError(t, store.Reset(ctx))
	runs, err = store.RecentRefreshRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
