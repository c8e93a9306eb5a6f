package db

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mezonai/votechain/logx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisBlockPrefix = "blocks:"

// RedisProvider implements DatabaseProvider for Redis
type RedisProvider struct {
	client *redis.Client
	ctx    context.Context
}

// convertKeyToHumanReadable converts binary keys to human-readable format for Redis
func convertKeyToHumanReadable(key []byte) string {
	keyStr := string(key)

	// blocks:<8 byte big endian index> becomes blocks:<decimal index>
	if strings.HasPrefix(keyStr, redisBlockPrefix) && len(key) == len(redisBlockPrefix)+8 {
		index := binary.BigEndian.Uint64(key[len(redisBlockPrefix):])
		return fmt.Sprintf("%s%d", redisBlockPrefix, index)
	}

	return keyStr
}

// NewRedisProvider creates a new Redis provider
func NewRedisProvider(address string, database int) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   database,
	})
	return newRedisProviderWithClient(client)
}

func newRedisProviderWithClient(client *redis.Client) (*RedisProvider, error) {
	ctx := context.Background()

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisProvider{
		client: client,
		ctx:    ctx,
	}, nil
}

// Get retrieves a value by key
func (p *RedisProvider) Get(key []byte) ([]byte, error) {
	redisKey := convertKeyToHumanReadable(key)
	value, err := p.client.Get(p.ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Return nil for not found, consistent with interface
		}
		return nil, errors.Wrap(err, "redis get")
	}
	return value, nil
}

// GetBatch retrieves multiple values with a single MGET
func (p *RedisProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = convertKeyToHumanReadable(key)
	}

	values, err := p.client.MGet(p.ctx, redisKeys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget")
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[string(keys[i])] = []byte(s)
		}
	}
	return result, nil
}

// Put stores a key-value pair
func (p *RedisProvider) Put(key, value []byte) error {
	redisKey := convertKeyToHumanReadable(key)
	logx.Debug("REDIS", "Put key:", redisKey, "value length:", len(value))
	return errors.Wrap(p.client.Set(p.ctx, redisKey, value, 0).Err(), "redis set")
}

// Delete removes a key-value pair
func (p *RedisProvider) Delete(key []byte) error {
	redisKey := convertKeyToHumanReadable(key)
	return errors.Wrap(p.client.Del(p.ctx, redisKey).Err(), "redis del")
}

// Has checks if a key exists
func (p *RedisProvider) Has(key []byte) (bool, error) {
	redisKey := convertKeyToHumanReadable(key)
	count, err := p.client.Exists(p.ctx, redisKey).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return count > 0, nil
}

// Close closes the database connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// Batch returns a MULTI/EXEC pipeline so the batch lands atomically
func (p *RedisProvider) Batch() DatabaseBatch {
	return &RedisBatch{
		client: p.client,
		ctx:    p.ctx,
		pipe:   p.client.TxPipeline(),
	}
}

// IteratePrefix implements IterableProvider for Redis using SCAN.
// Order is not guaranteed and keys are returned in their human readable form.
func (p *RedisProvider) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	pattern := string(prefix) + "*"
	var cursor uint64
	for {
		keys, newCursor, err := p.client.Scan(p.ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return errors.Wrap(err, "redis scan")
		}
		cursor = newCursor
		for _, k := range keys {
			val, err := p.client.Get(p.ctx, k).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return errors.Wrap(err, "redis get")
			}
			if !fn([]byte(k), val) {
				return nil
			}
		}
		if cursor == 0 {
			break
		}
	}
	return nil
}

// RedisBatch implements DatabaseBatch for Redis
type RedisBatch struct {
	client *redis.Client
	ctx    context.Context
	pipe   redis.Pipeliner
}

// Put adds a key-value pair to the batch
func (b *RedisBatch) Put(key, value []byte) {
	redisKey := convertKeyToHumanReadable(key)
	b.pipe.Set(b.ctx, redisKey, value, 0)
}

// Delete adds a deletion to the batch
func (b *RedisBatch) Delete(key []byte) {
	redisKey := convertKeyToHumanReadable(key)
	b.pipe.Del(b.ctx, redisKey)
}

// Write commits all operations in the batch
func (b *RedisBatch) Write() error {
	_, err := b.pipe.Exec(b.ctx)
	return errors.Wrap(err, "redis batch exec")
}

// Reset clears the batch
func (b *RedisBatch) Reset() {
	b.pipe.Discard()
	b.pipe = b.client.TxPipeline()
}

// Close releases batch resources
func (b *RedisBatch) Close() {
	b.pipe.Discard()
}
