package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// newTestStore needs a live server; set REDIS_ADDR to run these tests.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return NewWithClient(client, Config{Channel: prefix + "events", LockTTL: time.Second}), prefix
}

func TestStore_VersionedWrites(t *testing.T) {
	ctx := context.Background()
	store, prefix := newTestStore(t)
	key := prefix + "bakery_employees"

	data, v, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, generic.Version(0), v)

	v1, err := store.Set(ctx, key, []byte(`[]`), 0)
	require.NoError(t, err)
	assert.Equal(t, generic.Version(1), v1)

	_, err = store.Set(ctx, key, []byte(`[1]`), 0)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	v2, err := store.Set(ctx, key, []byte(`[2]`), generic.AnyVersion)
	require.NoError(t, err)
	assert.Equal(t, generic.Version(2), v2)

	data, v, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "[2]", string(data))
	assert.Equal(t, v2, v)
}

func TestStore_LockExcludes(t *testing.T) {
	ctx := context.Background()
	store, prefix := newTestStore(t)

	// GIVEN: a held lock
	unlock, err := store.Lock(ctx, prefix+"E1")
	require.NoError(t, err)

	// WHEN: a second caller waits briefly
	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = store.Lock(waitCtx, prefix+"E1")

	// THEN: it gives up, and succeeds once released
	assert.ErrorIs(t, err, generic.ErrLockNotObtained)
	unlock()

	unlock, err = store.Lock(ctx, prefix+"E1")
	require.NoError(t, err)
	unlock()
}

func TestStore_PublishSubscribe(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan generic.Event, 16)
	go store.Subscribe(ctx, func(ev generic.Event) { got <- ev })

	want := generic.Event{Topic: generic.TopicCyclesChanged, EmployeeIDs: []string{"E1"}, Origin: "node-a", At: time.Now().UTC()}
	require.Eventually(t, func() bool {
		if err := store.Publish(ctx, want); err != nil {
			return false
		}
		select {
		case ev := <-got:
			assert.Equal(t, want.Topic, ev.Topic)
			assert.Equal(t, want.EmployeeIDs, ev.EmployeeIDs)
			assert.Equal(t, "node-a", ev.Origin)
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
