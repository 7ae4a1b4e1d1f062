// Package genstore persists the last generation issued per node ID, so
// that a restart always produces a strictly higher generation even when
// the wall clock stands still or steps backwards.
package genstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var generationBucket = []byte("generations")

type Store struct {
	db *bolt.DB
}

// Open creates or opens the generation database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open generation store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(generationBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Next returns the generation to use for this incarnation: the wall-clock
// candidate, bumped past the last recorded generation if needed, and
// records it before returning.
func (s *Store) Next(nodeID string, candidate uint64) (uint64, error) {
	gen := candidate

	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(generationBucket)

		if raw := bkt.Get([]byte(nodeID)); raw != nil {
			if last := binary.BigEndian.Uint64(raw); gen <= last {
				gen = last + 1
			}
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, gen)

		return bkt.Put([]byte(nodeID), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record generation: %w", err)
	}

	return gen, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
