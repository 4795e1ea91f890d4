package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketStoppedReplicas = []byte("stopped_replicas")
	bucketUnexpectedDirs  = []byte("unexpected_dirs")
)

// BoltStore implements Store using a single bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) silo.db under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "silo.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketStoppedReplicas, bucketUnexpectedDirs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// GetStoppedReplicas returns the set of partition names currently marked
// administratively stopped.
func (s *BoltStore) GetStoppedReplicas() (map[string]struct{}, error) {
	stopped := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStoppedReplicas)
		return b.ForEach(func(k, v []byte) error {
			stopped[string(k)] = struct{}{}
			return nil
		})
	})
	return stopped, err
}

// SetReplicaStoppedState marks or unmarks partitions as administratively
// stopped in a single transaction.
func (s *BoltStore) SetReplicaStoppedState(partitions []string, stop bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStoppedReplicas)
		for _, name := range partitions {
			if stop {
				if err := b.Put([]byte(name), []byte{1}); err != nil {
					return fmt.Errorf("mark %s stopped: %w", name, err)
				}
			} else if err := b.Delete([]byte(name)); err != nil {
				return fmt.Errorf("unmark %s stopped: %w", name, err)
			}
		}
		return nil
	})
}

// RecordUnexpectedDir appends a sighting keyed by an incrementing sequence
// number, so repeated sightings of the same path are never overwritten.
func (s *BoltStore) RecordUnexpectedDir(diskMountPath, dirPath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUnexpectedDirs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		sighting := UnexpectedDirSighting{
			DiskMountPath: diskMountPath,
			DirPath:       dirPath,
			SeenAtUnix:    time.Now().Unix(),
		}
		data, err := json.Marshal(sighting)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// ListUnexpectedDirs returns every sighting ever recorded, most recent
// last (bbolt iterates keys in byte order, and seqKey is big-endian).
func (s *BoltStore) ListUnexpectedDirs() ([]UnexpectedDirSighting, error) {
	var sightings []UnexpectedDirSighting
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUnexpectedDirs)
		return b.ForEach(func(k, v []byte) error {
			var sighting UnexpectedDirSighting
			if err := json.Unmarshal(v, &sighting); err != nil {
				return err
			}
			sightings = append(sightings, sighting)
			return nil
		})
	})
	return sightings, err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		key[i] = byte(seq)
		seq >>= 8
	}
	return key
}
