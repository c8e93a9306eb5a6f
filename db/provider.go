package db

import (
	"github.com/pkg/errors"
)

// Backend names accepted by NewProvider
const (
	BackendLevelDB  = "leveldb"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseProvider abstracts the low-level database operations.
// Stores work against this interface and never see the concrete backend.
// A missing key is reported as a nil value with a nil error.
type DatabaseProvider interface {
	// Get retrieves a value by key
	Get(key []byte) ([]byte, error)

	// GetBatch retrieves multiple values by keys in a single operation
	GetBatch(keys [][]byte) (map[string][]byte, error)

	// Put stores a key-value pair
	Put(key, value []byte) error

	// Delete removes a key-value pair
	Delete(key []byte) error

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// Close closes the database connection
	Close() error

	// Batch returns a new batch for atomic operations
	Batch() DatabaseBatch
}

// IterableProvider extends DatabaseProvider with iteration capabilities
type IterableProvider interface {
	DatabaseProvider

	// IteratePrefix iterates over all key-value pairs with the given prefix
	// The callback function should return false to stop iteration
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error
}

// DatabaseBatch provides atomic batch operations
type DatabaseBatch interface {
	// Put adds a key-value pair to the batch
	Put(key, value []byte)

	// Delete adds a deletion to the batch
	Delete(key []byte)

	// Write commits all operations in the batch
	Write() error

	// Reset clears the batch
	Reset()

	// Close releases batch resources
	Close()
}

// ProviderOptions carries the backend specific connection settings
type ProviderOptions struct {
	// Directory is the database directory for leveldb
	Directory string
	// Path is the database file for bolt
	Path string
	// RedisAddr and RedisDB address the redis server
	RedisAddr string
	RedisDB   int
	// PostgresDSN is a lib/pq connection string
	PostgresDSN string
}

// NewProvider opens the provider for the named backend
func NewProvider(backend string, opts ProviderOptions) (IterableProvider, error) {
	switch backend {
	case BackendLevelDB:
		if opts.Directory == "" {
			return nil, errors.New("leveldb directory cannot be empty")
		}
		return NewLevelDBProvider(opts.Directory)
	case BackendBolt:
		if opts.Path == "" {
			return nil, errors.New("bolt path cannot be empty")
		}
		return NewBoltProvider(opts.Path)
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, errors.New("redis address cannot be empty")
		}
		return NewRedisProvider(opts.RedisAddr, opts.RedisDB)
	case BackendPostgres:
		if opts.PostgresDSN == "" {
			return nil, errors.New("postgres dsn cannot be empty")
		}
		return NewPostgresProvider(opts.PostgresDSN)
	case BackendMemory:
		return NewMemLevelDBProvider()
	default:
		return nil, errors.Errorf("unsupported store backend: %s", backend)
	}
}
