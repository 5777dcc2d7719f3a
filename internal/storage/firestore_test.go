package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreStoreConfig(t *testing.T) {
	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreStore(context.Background(), "", "(default)", "test_collection", 0)
		assert.Error(t, err, "Expected error when GCP project ID is missing for Firestore storage")
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreStore(context.Background(), "test-project", "(default)", "", 0)
		assert.Error(t, err, "Expected error when collection is empty")
		assert.Contains(t, err.Error(), "collection is required")
	})
}

// Runs against the Firestore emulator only.
func TestFirestoreStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	collection := "devreg_test_" + time.Now().Format("20060102150405.000000")
	newStore := func(t *testing.T) Store {
		store, err := NewFirestoreStore(context.Background(), "devreg-test", "", collection, time.Minute)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	}

	testStoreContract(t, newStore)

	t.Run("cleanup", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t).(*FirestoreStore)
		now := time.Now()
		store.now = func() time.Time { return now }

		require.NoError(t, store.SaveEnvelope(ctx, "expiring", map[string]string{"a": "1"}))
		now = now.Add(2 * time.Minute)

		_, err := store.LoadEnvelope(ctx, "expiring")
		assert.ErrorIs(t, err, ErrEnvelopeNotFound)

		count, err := store.CleanupExpiredEnvelopes(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, 1)
	})
}
