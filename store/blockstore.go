package store

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/mezonai/votechain/block"
	"github.com/mezonai/votechain/db"
	"github.com/mezonai/votechain/jsonx"
	"github.com/mezonai/votechain/logx"
)

// BlockStore persists the chain. It is append-only: block i can only be
// written once blocks 0..i-1 are present.
type BlockStore interface {
	Append(b *block.Block) error
	Blocks() ([]*block.Block, error)
	Block(index uint64) (*block.Block, error)
	Height() uint64
	Close() error
}

// GenericBlockStore is a database-agnostic implementation that uses DatabaseProvider
type GenericBlockStore struct {
	provider db.DatabaseProvider
	mu       sync.RWMutex
	count    uint64
}

// NewGenericBlockStore creates a new generic block store with the given provider
func NewGenericBlockStore(provider db.DatabaseProvider) (*GenericBlockStore, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}

	store := &GenericBlockStore{provider: provider}
	if err := store.loadCount(); err != nil {
		return nil, errors.Wrap(err, "failed to load metadata")
	}

	return store, nil
}

func countKey() []byte {
	return []byte(PrefixMeta + MetaKeyCount)
}

// loadCount loads the number of stored blocks
func (s *GenericBlockStore) loadCount() error {
	value, err := s.provider.Get(countKey())
	if err != nil {
		return errors.Wrap(err, "failed to get block count")
	}

	if value == nil {
		s.count = 0
		return nil
	}

	if len(value) != 8 {
		return errors.Errorf("invalid block count value length: %d", len(value))
	}

	s.count = binary.BigEndian.Uint64(value)
	return nil
}

// indexToBlockKey converts a block index to a block storage key
func indexToBlockKey(index uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], index)
	return key
}

// Append stores b as the next block. The block body and the new count are
// written in one batch so a crash never leaves a counted but missing block.
func (s *GenericBlockStore) Append(b *block.Block) error {
	if b == nil {
		return errors.New("block cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Index != s.count {
		return errors.Errorf("out of order append: block index %d, store height %d", b.Index, s.count)
	}

	value, err := jsonx.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "failed to marshal block")
	}

	countValue := make([]byte, 8)
	binary.BigEndian.PutUint64(countValue, s.count+1)

	batch := s.provider.Batch()
	defer batch.Close()
	batch.Put(indexToBlockKey(b.Index), value)
	batch.Put(countKey(), countValue)
	if err := batch.Write(); err != nil {
		return errors.Wrapf(err, "failed to store block %d", b.Index)
	}

	s.count++
	logx.Debug("STORE", "Stored block", b.Index, "hash", b.Hash)
	return nil
}

// Block retrieves a block by index, nil if it is not stored
func (s *GenericBlockStore) Block(index uint64) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= s.count {
		return nil, nil
	}
	return s.loadBlock(index)
}

func (s *GenericBlockStore) loadBlock(index uint64) (*block.Block, error) {
	value, err := s.provider.Get(indexToBlockKey(index))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get block %d", index)
	}
	if value == nil {
		return nil, errors.Errorf("block %d is counted but missing", index)
	}

	var blk block.Block
	if err := jsonx.Unmarshal(value, &blk); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal block %d", index)
	}
	return &blk, nil
}

// Blocks loads every stored block in index order
func (s *GenericBlockStore) Blocks() ([]*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([][]byte, s.count)
	for i := uint64(0); i < s.count; i++ {
		keys[i] = indexToBlockKey(i)
	}
	values, err := s.provider.GetBatch(keys)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load blocks")
	}

	blocks := make([]*block.Block, 0, s.count)
	for i, key := range keys {
		value, ok := values[string(key)]
		if !ok {
			return nil, errors.Errorf("block %d is counted but missing", i)
		}
		var blk block.Block
		if err := jsonx.Unmarshal(value, &blk); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal block %d", i)
		}
		blocks = append(blocks, &blk)
	}
	return blocks, nil
}

// Height returns the number of stored blocks
func (s *GenericBlockStore) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Close closes the underlying database provider
func (s *GenericBlockStore) Close() error {
	if err := s.provider.Close(); err != nil {
		logx.Error("STORE", "Failed to close provider:", err)
		return err
	}
	return nil
}
