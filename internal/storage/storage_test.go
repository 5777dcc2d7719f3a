package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStoreContract runs the behavior every Store must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		store := newStore(t)
		slots := map[string]string{"DeviceRegistrationRequest": `{"state":"xyz"}`}

		require.NoError(t, store.SaveEnvelope(ctx, "xyz", slots))
		got, err := store.LoadEnvelope(ctx, "xyz")
		require.NoError(t, err)
		assert.Equal(t, slots, got)
	})

	t.Run("missing key", func(t *testing.T) {
		store := newStore(t)
		_, err := store.LoadEnvelope(ctx, "nope")
		assert.ErrorIs(t, err, ErrEnvelopeNotFound)
	})

	t.Run("overwrite", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveEnvelope(ctx, "k", map[string]string{"a": "1"}))
		require.NoError(t, store.SaveEnvelope(ctx, "k", map[string]string{"a": "1", "b": "2"}))

		got, err := store.LoadEnvelope(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
	})

	t.Run("copies slots", func(t *testing.T) {
		store := newStore(t)
		slots := map[string]string{"a": "1"}
		require.NoError(t, store.SaveEnvelope(ctx, "k", slots))
		slots["a"] = "mutated"

		got, err := store.LoadEnvelope(ctx, "k")
		require.NoError(t, err)
		got["a"] = "mutated again"

		again, err := store.LoadEnvelope(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "1", again["a"])
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveEnvelope(ctx, "k", map[string]string{"a": "1"}))
		require.NoError(t, store.DeleteEnvelope(ctx, "k"))
		require.NoError(t, store.DeleteEnvelope(ctx, "k"))

		_, err := store.LoadEnvelope(ctx, "k")
		assert.ErrorIs(t, err, ErrEnvelopeNotFound)
	})

	t.Run("concurrent access", func(t *testing.T) {
		store := newStore(t)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i)
				assert.NoError(t, store.SaveEnvelope(ctx, key, map[string]string{"i": key}))
				got, err := store.LoadEnvelope(ctx, key)
				if assert.NoError(t, err) {
					assert.Equal(t, key, got["i"])
				}
			}()
		}
		wg.Wait()
	})
}
