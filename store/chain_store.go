package store

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/mezonai/peerchain/block"
	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/db"
	"github.com/mezonai/peerchain/jsonx"
	"github.com/mezonai/peerchain/logx"
)

var ErrNoChain = errors.New("no chain stored")

// ChainStore persists a block list under PrefixBlock keyed by big-endian index.
// Every save is a full snapshot written in one batch.
type ChainStore struct {
	provider db.IterableProvider
	mu       sync.Mutex
}

func NewChainStore(provider db.IterableProvider) (*ChainStore, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}
	return &ChainStore{provider: provider}, nil
}

func blockKey(index uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], index)
	return key
}

func metaKey(name string) []byte {
	return []byte(PrefixChainMeta + name)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// Length returns the stored chain length, or 0 when nothing was saved.
func (s *ChainStore) Length() (int, error) {
	value, err := s.provider.Get(metaKey(ChainMetaKeyLength))
	if err != nil {
		return 0, errors.Wrap(err, "failed to get chain length")
	}
	if value == nil {
		return 0, nil
	}
	if len(value) != 8 {
		return 0, errors.Errorf("invalid chain length value length: %d", len(value))
	}
	return int(binary.BigEndian.Uint64(value)), nil
}

// HasChain reports whether a chain was ever saved.
func (s *ChainStore) HasChain() (bool, error) {
	ok, err := s.provider.Has(metaKey(ChainMetaKeyLength))
	if err != nil {
		return false, errors.Wrap(err, "failed to check chain length")
	}
	return ok, nil
}

// blockKeysFrom lists every stored block key with index >= from, including
// leftovers a shorter length record no longer covers.
func (s *ChainStore) blockKeysFrom(from uint64) ([][]byte, error) {
	var keys [][]byte
	err := s.provider.IteratePrefix([]byte(PrefixBlock), func(key, _ []byte) bool {
		suffix := key[len(PrefixBlock):]
		if len(suffix) == 8 && binary.BigEndian.Uint64(suffix) < from {
			return true
		}
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan block keys")
	}
	return keys, nil
}

// SaveBlocks replaces the stored chain with blocks atomically.
func (s *ChainStore) SaveBlocks(blocks []*block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale, err := s.blockKeysFrom(uint64(len(blocks)))
	if err != nil {
		return err
	}

	batch := s.provider.Batch()
	defer batch.Close()

	for i, b := range blocks {
		if b == nil {
			return errors.Wrapf(block.ErrNilBlock, "block %d", i)
		}
		value, err := jsonx.Marshal(b)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal block %d", i)
		}
		batch.Put(blockKey(uint64(i)), value)
	}
	for _, key := range stale {
		batch.Delete(key)
	}
	batch.Put(metaKey(ChainMetaKeyLength), encodeUint64(uint64(len(blocks))))
	batch.Put(metaKey(ChainMetaKeySavedAtMs), encodeUint64(uint64(block.NowMillis())))

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "failed to write chain batch")
	}
	logx.Debug("CHAINSTORE", "Saved chain | length=", len(blocks))
	return nil
}

// LoadBlocks reads the stored chain in order. Hashes are returned as stored.
func (s *ChainStore) LoadBlocks() ([]*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	length, err := s.Length()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, ErrNoChain
	}

	keys := make([][]byte, length)
	for i := range keys {
		keys[i] = blockKey(uint64(i))
	}
	values, err := s.provider.GetBatch(keys)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read blocks")
	}

	blocks := make([]*block.Block, length)
	for i, key := range keys {
		value, ok := values[string(key)]
		if !ok {
			return nil, errors.Errorf("block %d is missing from store", i)
		}
		var b block.Block
		if err := jsonx.Unmarshal(value, &b); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal block %d", i)
		}
		blocks[i] = &b
	}
	return blocks, nil
}

func (s *ChainStore) Close() error {
	return s.provider.Close()
}

// SaveChain snapshots c into s.
func SaveChain[T any](s *ChainStore, c *chain.Chain[T]) error {
	return s.SaveBlocks(c.Blocks())
}

// LoadChain rebuilds a chain from s without rehashing; callers decide whether
// to trust it via IsValid.
func LoadChain[T any](s *ChainStore, opts ...chain.Option) (*chain.Chain[T], error) {
	blocks, err := s.LoadBlocks()
	if err != nil {
		return nil, err
	}
	return chain.FromBlocks[T](blocks, opts...)
}

// LoadOrCreate returns the stored chain when it is present and valid, and a
// fresh chain otherwise.
func LoadOrCreate[T any](s *ChainStore, opts ...chain.Option) (*chain.Chain[T], error) {
	c, err := LoadChain[T](s, opts...)
	switch {
	case errors.Is(err, ErrNoChain):
		return chain.New[T](opts...), nil
	case err != nil:
		return nil, err
	}
	if verr := c.Verify(); verr != nil {
		logx.Warn("CHAINSTORE", "Stored chain is invalid, starting fresh: ", verr)
		return chain.New[T](opts...), nil
	}
	return c, nil
}
