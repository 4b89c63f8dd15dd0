package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore is a tier store persisted in a bbolt database.
// Each tier is a top-level bucket keyed by request key.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) a bbolt-backed tier store at path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache: storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open storage db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	return s.db.View(func(*bbolt.Tx) error { return nil })
}

// Open returns the named tier, creating its bucket if needed.
func (s *BoltStore) Open(ctx context.Context, name string) (Tier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	if err := ValidateTierName(name); err != nil {
		return nil, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create tier %q: %w", name, err)
	}
	return &boltTier{db: s.db, name: name}, nil
}

// Lookup returns the named tier if its bucket exists.
func (s *BoltStore) Lookup(_ context.Context, name string) (Tier, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}
	found := false
	_ = s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(name)) != nil
		return nil
	})
	if !found {
		return nil, false
	}
	return &boltTier{db: s.db, name: name}, true
}

// Names lists all tiers in bucket (byte) order.
func (s *BoltStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache: list tiers: %w", err)
	}
	return names, nil
}

// Delete removes the named tier's bucket.
func (s *BoltStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.db == nil {
		return false, ErrStoreClosed
	}

	existed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		existed = true
		return tx.DeleteBucket([]byte(name))
	})
	if err != nil {
		return false, fmt.Errorf("cache: delete tier %q: %w", name, err)
	}
	return existed, nil
}

type boltTier struct {
	db   *bbolt.DB
	name string
}

func (t *boltTier) Name() string {
	return t.name
}

func (t *boltTier) Get(ctx context.Context, key string) (Entry, bool) {
	if ctx.Err() != nil {
		return Entry{}, false
	}

	var data []byte
	_ = t.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(t.name))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// Values are only valid for the life of the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if data == nil {
		return Entry{}, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (t *boltTier) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(entry.Key); err != nil {
		return err
	}
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = time.Now()
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	return t.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(t.name))
		if bucket == nil {
			// Deleted generations are never recreated by a late write.
			return ErrTierNotFound
		}
		return bucket.Put([]byte(entry.Key), data)
	})
}

func (t *boltTier) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(t.name))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (t *boltTier) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := []string{}
	err := t.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(t.name))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache: list keys in %q: %w", t.name, err)
	}
	return keys, nil
}

// Ensure BoltStore implements Store
var _ Store = (*BoltStore)(nil)
