package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/panelsync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketServers = []byte("servers")
	bucketSyncs   = []byte("syncs")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "panelsync.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketServers, bucketSyncs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
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

// Path returns the database file location
func (s *BoltStore) Path() string {
	return s.db.Path()
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) FindByIdentifier(identifier string) (*types.MirroredServer, error) {
	var srv types.MirroredServer
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketServers).Get([]byte(identifier))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &srv)
	})
	if err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *BoltStore) ListServers() ([]*types.MirroredServer, error) {
	var servers []*types.MirroredServer
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).ForEach(func(k, v []byte) error {
			var srv types.MirroredServer
			if err := json.Unmarshal(v, &srv); err != nil {
				return fmt.Errorf("decode server %s: %w", k, err)
			}
			servers = append(servers, &srv)
			return nil
		})
	})
	return servers, err
}

func (s *BoltStore) CreateServer(srv *types.MirroredServer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		if b.Get([]byte(srv.Identifier)) != nil {
			return fmt.Errorf("%w: %s", ErrExists, srv.Identifier)
		}
		return putJSON(b, srv.Identifier, srv)
	})
}

func (s *BoltStore) UpdateServer(srv *types.MirroredServer) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		if b.Get([]byte(srv.Identifier)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, srv.Identifier)
		}
		return putJSON(b, srv.Identifier, srv)
	})
}

func (s *BoltStore) DeleteServersNotIn(panelURL string, keep []string) ([]string, error) {
	keepIDs := keepSet(keep)
	var deleted []string

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)

		// Collect first; deleting while iterating a bolt cursor skips keys
		err := b.ForEach(func(k, v []byte) error {
			if _, ok := keepIDs[string(k)]; ok {
				return nil
			}
			var srv types.MirroredServer
			if err := json.Unmarshal(v, &srv); err != nil {
				return fmt.Errorf("decode server %s: %w", k, err)
			}
			if srv.PanelURL == panelURL {
				deleted = append(deleted, string(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, id := range deleted {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(deleted)
	return deleted, nil
}

func (s *BoltStore) RecordSync(result *types.SyncResult) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSyncs), result.PanelURL, result)
	})
}

func (s *BoltStore) LastSync(panelURL string) (*types.SyncResult, error) {
	var result types.SyncResult
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncs).Get([]byte(panelURL))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
