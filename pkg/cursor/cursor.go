package cursor

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketCursors = []byte("cursors")

// Store persists per-endpoint change cursors, so a restarted job resumes
// from the last acknowledged sequence instead of refetching history.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the cursor database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCursors)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Get returns the stored cursor for an endpoint, 0 when none was saved.
func (s *Store) Get(endpoint string) (int64, error) {
	var seq int64
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCursors).Get([]byte(endpoint))
		if data == nil {
			return nil
		}
		seq = int64(binary.BigEndian.Uint64(data))
		return nil
	})
	return seq, err
}

// Set records the cursor for an endpoint.
func (s *Store) Set(endpoint string, seq int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(seq))
		return tx.Bucket(bucketCursors).Put([]byte(endpoint), buf)
	})
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
