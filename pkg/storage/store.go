package storage

import (
	"errors"
	"path/filepath"

	"github.com/cuemby/panelsync/pkg/types"
)

var (
	// ErrNotFound is returned when no mirrored server has the identifier
	ErrNotFound = errors.New("server not found")

	// ErrExists is returned when creating a server whose identifier is taken
	ErrExists = errors.New("server already exists")
)

// Store defines the interface for the mirror of upstream panel servers.
// Records are keyed by the stable upstream identifier, never by the local ID.
type Store interface {
	// Servers
	FindByIdentifier(identifier string) (*types.MirroredServer, error)
	ListServers() ([]*types.MirroredServer, error)
	CreateServer(srv *types.MirroredServer) error
	UpdateServer(srv *types.MirroredServer) error

	// DeleteServersNotIn removes every server owned by panelURL whose
	// identifier is not in keep, returning the removed identifiers sorted.
	DeleteServersNotIn(panelURL string, keep []string) ([]string, error)

	// Sync bookkeeping
	RecordSync(result *types.SyncResult) error
	LastSync(panelURL string) (*types.SyncResult, error)

	// Utility
	Close() error
}

// Open creates the store selected by driver ("bolt" or "sqlite").
// An empty sqlitePath places the database inside dataDir.
func Open(driver, dataDir, sqlitePath string) (Store, error) {
	switch driver {
	case "", "bolt":
		return NewBoltStore(dataDir)
	case "sqlite":
		if sqlitePath == "" {
			sqlitePath = filepath.Join(dataDir, "panelsync.sqlite")
		}
		return NewGormStore(sqlitePath)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func keepSet(keep []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	return set
}
