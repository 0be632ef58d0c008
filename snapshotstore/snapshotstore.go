// Package snapshotstore demonstrates caller-side persistence of
// Connection snapshots (C13): a thin bbolt-backed key/value store keyed by
// source_id, sitting outside the handle cache entirely (the cache itself
// never persists, per spec.md §1 Non-goals). Grounded on findy-agent's use
// of go.etcd.io/bbolt as an embedded store dependency, generalized here to
// its most idiomatic direct use: one bucket, source_id -> snapshot string.
package snapshotstore

import (
	"github.com/findy-network/findy-agent-conn/connerr"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("connection_snapshots")

// Store is a bbolt-backed map from source_id to a Connection's to_string()
// snapshot.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and ensures
// its snapshot bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, connerr.Wrap(connerr.IOError, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketName)
		return createErr
	})
	if err != nil {
		_ = db.Close()
		return nil, connerr.Wrap(connerr.IOError, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return connerr.Wrap(connerr.IOError, err)
	}
	return nil
}

// Save persists snapshot under sourceID, overwriting any prior snapshot
// for the same id.
func (s *Store) Save(sourceID, snapshot string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(sourceID), []byte(snapshot))
	})
	if err != nil {
		return connerr.Wrap(connerr.IOError, err)
	}
	return nil
}

// Load returns the snapshot last saved under sourceID. ok is false if
// nothing has been saved for that id.
func (s *Store) Load(sourceID string) (snapshot string, ok bool, err error) {
	viewErr := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(sourceID))
		if v != nil {
			snapshot = string(v)
			ok = true
		}
		return nil
	})
	if viewErr != nil {
		return "", false, connerr.Wrap(connerr.IOError, viewErr)
	}
	return snapshot, ok, nil
}

// Delete removes any snapshot saved under sourceID. Deleting an absent key
// is a no-op, matching bbolt's own Delete semantics.
func (s *Store) Delete(sourceID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(sourceID))
	})
	if err != nil {
		return connerr.Wrap(connerr.IOError, err)
	}
	return nil
}

// SourceIDs lists every source_id currently holding a saved snapshot.
func (s *Store) SourceIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, connerr.Wrap(connerr.IOError, err)
	}
	return ids, nil
}
