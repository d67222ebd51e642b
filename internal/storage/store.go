// Package storage is the engine's storage kernel (spec.md §4.1): typed keys
// mapping to persistent or instance values, plus monotonic id counters. It is
// backed by an embedded go.etcd.io/bbolt database, the same JSON-over-bbolt
// convention the teacher uses for its gateway services
// (services/identity-gateway/store.go): every value is JSON-encoded and
// stored under a single bucket per storage partition. There is no caching —
// every Get reads fresh, matching spec.md's "no caching; each operation reads
// fresh" requirement.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by callers that require a key to already exist.
// Get itself reports absence via its bool return instead, matching the
// spec's Option<T> contract.
var ErrNotFound = errors.New("storage: key not found")

var (
	bucketDurable  = []byte("durable")
	bucketInstance = []byte("instance")
)

// Store wraps a bbolt database holding the durable and instance partitions.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the bbolt-backed store at path, provisioning both
// storage partitions.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDurable); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketInstance); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Key identifies a single durable-partition value. Bucket is the logical
// entity tag from spec.md's closed key-space enum (e.g. "guild", "member");
// ID is the entity-specific suffix.
type Key struct {
	Bucket string
	ID     string
}

func (k Key) bytes() []byte {
	return []byte(k.Bucket + ":" + k.ID)
}

// Get fetches and JSON-decodes the value stored at k. The bool result is
// false when the key is absent, mirroring Option<T>.
func Get[T any](s *Store, k Key) (T, bool, error) {
	var out T
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDurable).Get(k.bytes())
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return out, false, err
	}
	if raw == nil {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// Put JSON-encodes v and writes it to the durable partition under k.
func Put[T any](s *Store, k Key, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDurable).Put(k.bytes(), data)
	})
}

// Delete removes k from the durable partition. Deleting an absent key is a
// no-op.
func Delete(s *Store, k Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDurable).Delete(k.bytes())
	})
}

// NextID atomically increments and returns the named counter from the
// instance partition. Counters start at 1, satisfying spec.md's "GuildId ...
// u64, >= 1" requirement.
func NextID(s *Store, counter string) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstance)
		key := []byte(counter)
		cur := uint64(0)
		if raw := b.Get(key); raw != nil {
			cur = binary.BigEndian.Uint64(raw)
		}
		cur++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, cur)
		if err := b.Put(key, buf); err != nil {
			return err
		}
		id = cur
		return nil
	})
	return id, err
}

// CurrentID reads a counter's current value without incrementing it.
func CurrentID(s *Store, counter string) (uint64, error) {
	var id uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketInstance).Get([]byte(counter)); raw != nil {
			id = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return id, err
}
