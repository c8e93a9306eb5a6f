package store

import (
	"github.com/pkg/errors"

	"github.com/mezonai/votechain/db"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Backend is one of leveldb, bolt, redis, postgres or memory
	Backend string `yaml:"backend" ini:"backend"`

	// Directory is the leveldb directory
	Directory string `yaml:"directory" ini:"directory"`

	// Path is the bolt database file
	Path string `yaml:"path" ini:"path"`

	RedisAddr string `yaml:"redis_addr" ini:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" ini:"redis_db"`

	PostgresDSN string `yaml:"postgres_dsn" ini:"postgres_dsn"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	switch sc.Backend {
	case db.BackendLevelDB:
		if sc.Directory == "" {
			return errors.New("store.directory cannot be empty for leveldb")
		}
	case db.BackendBolt:
		if sc.Path == "" {
			return errors.New("store.path cannot be empty for bolt")
		}
	case db.BackendRedis:
		if sc.RedisAddr == "" {
			return errors.New("store.redis_addr cannot be empty for redis")
		}
	case db.BackendPostgres:
		if sc.PostgresDSN == "" {
			return errors.New("store.postgres_dsn cannot be empty for postgres")
		}
	case db.BackendMemory:
	case "":
		return errors.New("store backend cannot be empty")
	default:
		return errors.Errorf("unsupported store backend: %s", sc.Backend)
	}
	return nil
}

// CreateProvider creates a database provider based on the configuration
func CreateProvider(config *StoreConfig) (db.IterableProvider, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid store config")
	}

	return db.NewProvider(config.Backend, db.ProviderOptions{
		Directory:   config.Directory,
		Path:        config.Path,
		RedisAddr:   config.RedisAddr,
		RedisDB:     config.RedisDB,
		PostgresDSN: config.PostgresDSN,
	})
}

// CreateBlockStore opens the configured backend and wraps it in a block store
func CreateBlockStore(config *StoreConfig) (BlockStore, error) {
	provider, err := CreateProvider(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create provider")
	}

	bs, err := NewGenericBlockStore(provider)
	if err != nil {
		_ = provider.Close()
		return nil, errors.Wrap(err, "failed to create block store")
	}
	return bs, nil
}
