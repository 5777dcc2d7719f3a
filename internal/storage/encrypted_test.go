package storage

import (
	"context"
	"testing"

	"github.com/dgellow/devreg/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptor(t *testing.T) crypto.Encryptor {
	t.Helper()
	encryptor, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)
	return encryptor
}

func TestEncryptedStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		store, err := NewEncryptedStore(NewMemoryStore(0), newTestEncryptor(t))
		require.NoError(t, err)
		return store
	})
}

func TestEncryptedStore_EncryptsValues(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(0)
	store, err := NewEncryptedStore(inner, newTestEncryptor(t))
	require.NoError(t, err)

	require.NoError(t, store.SaveEnvelope(ctx, "xyz", map[string]string{"DeviceRegistrationResponse": `{"code":"abc"}`}))

	raw, err := inner.LoadEnvelope(ctx, "xyz")
	require.NoError(t, err)
	require.Contains(t, raw, "DeviceRegistrationResponse")
	assert.NotContains(t, raw["DeviceRegistrationResponse"], "abc")
}

func TestEncryptedStore_WrongKey(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore(0)
	store, err := NewEncryptedStore(inner, newTestEncryptor(t))
	require.NoError(t, err)
	require.NoError(t, store.SaveEnvelope(ctx, "xyz", map[string]string{"a": "secret"}))

	other, err := crypto.NewEncryptor([]byte("another-encryption-key-32-bytes!"))
	require.NoError(t, err)
	reader, err := NewEncryptedStore(inner, other)
	require.NoError(t, err)

	_, err = reader.LoadEnvelope(ctx, "xyz")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEnvelopeNotFound)
}

func TestNewEncryptedStore_RequiresArguments(t *testing.T) {
	_, err := NewEncryptedStore(nil, newTestEncryptor(t))
	assert.Error(t, err)

	_, err = NewEncryptedStore(NewMemoryStore(0), nil)
	assert.Contains(t, err.Error(), "encryptor is required")
}
