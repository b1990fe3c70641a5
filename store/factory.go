package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mezonai/peerchain/db"
)

// StoreType names a storage backend for the chain.
type StoreType string

const (
	LevelDBStoreType StoreType = "leveldb"
	BoltStoreType    StoreType = "bolt"
	// MemoryStoreType keeps LevelDB tables in memory; nothing survives a restart
	MemoryStoreType StoreType = "memory"
)

// boltFile is the file created inside Directory for the bolt backend.
const boltFile = "chain.db"

type StoreConfig struct {
	Type      StoreType `json:"type" yaml:"type"`
	Directory string    `json:"directory" yaml:"directory"`
	// SyncWrites fsyncs every LevelDB batch. Ignored by other backends.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`
}

func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case "":
		return fmt.Errorf("store type cannot be empty")
	case MemoryStoreType:
		return nil
	case LevelDBStoreType, BoltStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty for %s store", sc.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}

// openProvider opens the backend named by config, creating its directory
// when needed.
func openProvider(config *StoreConfig) (db.IterableProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Type == MemoryStoreType {
		return db.NewMemLevelDBProvider()
	}

	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if config.Type == BoltStoreType {
		return db.NewBoltProvider(filepath.Join(config.Directory, boltFile))
	}
	return db.NewLevelDBProvider(config.Directory, config.SyncWrites)
}

// CreateStore opens the configured backend and wraps it in a ChainStore.
func CreateStore(config *StoreConfig) (*ChainStore, error) {
	provider, err := openProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	cs, err := NewChainStore(provider)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create chain store: %w", err)
	}
	return cs, nil
}
