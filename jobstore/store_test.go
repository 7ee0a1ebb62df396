package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emusync/models"
)

// harness pairs a store with a way to move its clock forward.
type harness struct {
	store   Store
	advance func(time.Duration)
}

func newMemoryHarness(t *testing.T) harness {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := NewMemoryStore(DefaultTTL)
	store.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return harness{store: store, advance: func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}}
}

func newRedisHarness(t *testing.T) harness {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return harness{
		store:   NewRedisStoreFromClient(client, DefaultTTL, zerolog.Nop()),
		advance: srv.FastForward,
	}
}

var harnesses = map[string]func(*testing.T) harness{
	"memory": newMemoryHarness,
	"redis":  newRedisHarness,
}

func newRecord() models.DeviceSyncRecord {
	return models.DeviceSyncRecord{
		DeviceSyncRequest: models.DeviceSyncRequest{
			DeviceName:      "Deck",
			EmulatorActions: []models.EmulatorActionEntry{{Emulator: models.EmulatorCemu, Action: models.ActionPush}},
		},
		Status: models.StatusInProgress,
		Output: []string{},
	}
}

func appendLine(line string) UpdateFunc {
	return func(rec *models.DeviceSyncRecord) error {
		rec.Output = append(rec.Output, line)
		return nil
	}
}

func TestStoreCreateGet(t *testing.T) {
	for name, newHarness := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			require.NoError(t, h.store.Create(ctx, "job-1", newRecord()))
			got, err := h.store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, newRecord(), got)

			_, err = h.store.Get(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	for name, newHarness := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.NoError(t, h.store.Create(ctx, "job-1", newRecord()))

			h.advance(10 * time.Minute)
			_, err := h.store.Get(ctx, "job-1")
			require.NoError(t, err, "reads do not refresh the ttl")

			_, err = h.store.Update(ctx, "job-1", appendLine("push:cemu"))
			require.NoError(t, err)

			h.advance(10 * time.Minute)
			_, err = h.store.Get(ctx, "job-1")
			require.NoError(t, err, "writes refresh the ttl")

			h.advance(6 * time.Minute)
			_, err = h.store.Get(ctx, "job-1")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = h.store.Update(ctx, "job-1", appendLine("late"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	for name, newHarness := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.NoError(t, h.store.Create(ctx, "job-1", newRecord()))

			got, err := h.store.Update(ctx, "job-1", func(rec *models.DeviceSyncRecord) error {
				rec.Status = models.StatusComplete
				rec.Output = append(rec.Output, "push:cemu")
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, models.StatusComplete, got.Status)

			boom := errors.New("boom")
			_, err = h.store.Update(ctx, "job-1", func(rec *models.DeviceSyncRecord) error {
				rec.Output = append(rec.Output, "discarded")
				return boom
			})
			assert.ErrorIs(t, err, boom)

			stored, err := h.store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"push:cemu"}, stored.Output)
		})
	}
}

func TestStoreConcurrentAppendsKeepEveryLine(t *testing.T) {
	for name, newHarness := range harnesses {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.NoError(t, h.store.Create(ctx, "job-1", newRecord()))

			const writers = 10
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := h.store.Update(ctx, "job-1", appendLine(fmt.Sprintf("line-%d", i)))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			got, err := h.store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Len(t, got.Output, writers)
			for i := 0; i < writers; i++ {
				assert.Contains(t, got.Output, fmt.Sprintf("line-%d", i))
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(DefaultTTL)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "job-1", newRecord()))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	got.Output = append(got.Output, "mutated")

	again, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, again.Output)
}

func TestRedisStoreKeyFormat(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()
	store := NewRedisStoreFromClient(client, DefaultTTL, zerolog.Nop())

	require.NoError(t, store.Create(context.Background(), "0b5c7e2a", newRecord()))
	assert.True(t, srv.Exists("0b5c7e2a"))
	assert.Equal(t, DefaultTTL, srv.TTL("0b5c7e2a"))

	raw, err := srv.Get("0b5c7e2a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deviceSyncRequest":{"deviceName":"Deck","emulatorActions":[{"emulator":"cemu","action":"push"}]},"status":"IN_PROGRESS","output":[]}`, raw)
}

func TestNewRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+srv.Addr(), DefaultTTL, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	_, err = NewRedisStore(context.Background(), "not a url", DefaultTTL, zerolog.Nop())
	assert.Error(t, err)
}
