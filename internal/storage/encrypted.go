package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/devreg/internal/crypto"
)

// Ensure EncryptedStore implements Store
var _ Store = (*EncryptedStore)(nil)

// EncryptedStore encrypts every slot value before handing it to the wrapped
// store. Keys and slot names stay in clear text.
type EncryptedStore struct {
	Store
	encryptor crypto.Encryptor
}

// NewEncryptedStore wraps inner with encryptor.
func NewEncryptedStore(inner Store, encryptor crypto.Encryptor) (*EncryptedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("store is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &EncryptedStore{Store: inner, encryptor: encryptor}, nil
}

func (s *EncryptedStore) SaveEnvelope(ctx context.Context, key string, slots map[string]string) error {
	sealed := make(map[string]string, len(slots))
	for name, value := range slots {
		encrypted, err := s.encryptor.Encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypting slot %s: %w", name, err)
		}
		sealed[name] = encrypted
	}
	return s.Store.SaveEnvelope(ctx, key, sealed)
}

func (s *EncryptedStore) LoadEnvelope(ctx context.Context, key string) (map[string]string, error) {
	sealed, err := s.Store.LoadEnvelope(ctx, key)
	if err != nil {
		return nil, err
	}

	slots := make(map[string]string, len(sealed))
	for name, value := range sealed {
		decrypted, err := s.encryptor.Decrypt(value)
		if err != nil {
			return nil, fmt.Errorf("decrypting slot %s: %w", name, err)
		}
		slots[name] = decrypted
	}
	return slots, nil
}
