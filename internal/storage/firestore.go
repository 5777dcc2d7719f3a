package storage

import (
	"context"
	"fmt"
	"maps"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/devreg/internal/log"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStore implements Store
var _ Store = (*FirestoreStore)(nil)

// DefaultFirestoreCollection holds envelopes when no collection is configured.
const DefaultFirestoreCollection = "devreg_envelopes"

// FirestoreStore keeps envelopes in Google Cloud Firestore, one document
// per envelope keyed by request state. Slot values are stored as given;
// wrap the store in an EncryptedStore to protect them at rest.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
	now        func() time.Time

	// loads deduplicates concurrent reads of the same envelope
	loads singleflight.Group
}

// envelopeDoc is the document stored in Firestore
type envelopeDoc struct {
	Slots     map[string]string `firestore:"slots"`
	UpdatedAt time.Time         `firestore:"updated_at"`
	ExpiresAt time.Time         `firestore:"expires_at"`
}

// NewFirestoreStore creates a Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, ttl time.Duration) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		ttl:        ttlOrDefault(ttl),
		now:        time.Now,
	}, nil
}

func (s *FirestoreStore) SaveEnvelope(ctx context.Context, key string, slots map[string]string) error {
	env := newStoredEnvelope(slots, s.now(), s.ttl)
	doc := envelopeDoc{
		Slots:     env.Slots,
		UpdatedAt: env.UpdatedAt,
		ExpiresAt: env.ExpiresAt,
	}

	if _, err := s.client.Collection(s.collection).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to save envelope: %w", err)
	}
	return nil
}

func (s *FirestoreStore) LoadEnvelope(ctx context.Context, key string) (map[string]string, error) {
	v, err, _ := s.loads.Do(key, func() (any, error) {
		snap, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, ErrEnvelopeNotFound
			}
			return nil, fmt.Errorf("failed to get envelope: %w", err)
		}

		var doc envelopeDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
		}
		return &doc, nil
	})
	if err != nil {
		return nil, err
	}

	doc := v.(*envelopeDoc)
	if !s.now().Before(doc.ExpiresAt) {
		return nil, ErrEnvelopeNotFound
	}
	return maps.Clone(doc.Slots), nil
}

func (s *FirestoreStore) DeleteEnvelope(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	return nil
}

// CleanupExpiredEnvelopes removes all expired envelopes in batches
func (s *FirestoreStore) CleanupExpiredEnvelopes(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).
		Where("expires_at", "<=", s.now()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0
	const maxBatchSize = 500 // Firestore batch write limit

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired envelopes: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	if count > 0 {
		log.LogInfoWithFields("firestore", "Cleaned up expired envelopes", map[string]any{
			"count": count,
		})
	}
	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
