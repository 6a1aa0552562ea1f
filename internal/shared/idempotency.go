package shared

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jntims/jntims/internal/platform/docstore"
)

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	store docstore.Store
	now   func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(store docstore.Store) *IdempotencyStore {
	return &IdempotencyStore{store: store, now: time.Now}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

func idempotencyPath(key, module string) docstore.Path {
	sum := sha256.Sum256([]byte(module + "\x00" + key))
	return docstore.Collection(IdempotencyNamespace).Doc(hex.EncodeToString(sum[:]))
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.store.Insert(ctx, idempotencyPath(key, module), docstore.Fields{
		"module":                module,
		docstore.TimestampField: s.now(),
	})
	if errors.Is(err, docstore.ErrExists) {
		return ErrIdempotencyConflict
	}
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	docs, err := s.store.List(ctx, docstore.Collection(IdempotencyNamespace), docstore.Query{})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if !doc.Timestamp().Before(cutoff) {
			break
		}
		if err := s.store.Delete(ctx, doc.Path); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	err := s.store.Delete(ctx, idempotencyPath(key, module))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}
