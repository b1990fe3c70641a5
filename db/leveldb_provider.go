package db

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBProvider stores chain snapshots in LevelDB. Multi-key reads go
// through a snapshot so a chain is never read half-written.
type LevelDBProvider struct {
	once  sync.Once
	db    *leveldb.DB
	write *opt.WriteOptions
}

// NewLevelDBProvider opens (or creates) a LevelDB directory. With syncWrites
// every batch is fsynced before Write returns.
func NewLevelDBProvider(directory string, syncWrites ...bool) (IterableProvider, error) {
	db, err := leveldb.OpenFile(directory, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}
	p := &LevelDBProvider{db: db}
	if len(syncWrites) > 0 && syncWrites[0] {
		p.write = &opt.WriteOptions{Sync: true}
	}
	return p, nil
}

// NewMemLevelDBProvider opens a LevelDB instance that lives only in memory.
func NewMemLevelDBProvider() (IterableProvider, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory LevelDB: %w", err)
	}
	return &LevelDBProvider{db: db}, nil
}

func (p *LevelDBProvider) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return value, err
}

// GetBatch reads keys from a single snapshot. Missing keys are left out of
// the result.
func (p *LevelDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	snap, err := p.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to take snapshot: %w", err)
	}
	defer snap.Release()

	for _, key := range keys {
		value, err := snap.Get(key, nil)
		switch {
		case err == leveldb.ErrNotFound:
			continue
		case err != nil:
			return nil, err
		}
		result[string(key)] = value
	}
	return result, nil
}

func (p *LevelDBProvider) Put(key, value []byte) error {
	return p.db.Put(key, value, p.write)
}

func (p *LevelDBProvider) Delete(key []byte) error {
	return p.db.Delete(key, p.write)
}

func (p *LevelDBProvider) Has(key []byte) (bool, error) {
	return p.db.Has(key, nil)
}

// Close is safe to call more than once; the chain store and the node runtime
// both close the provider on shutdown.
func (p *LevelDBProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

func (p *LevelDBProvider) Batch() DatabaseBatch {
	return &levelDBBatch{batch: new(leveldb.Batch), provider: p}
}

// IteratePrefix walks keys under prefix in byte order.
func (p *LevelDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	iter := p.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() && callback(iter.Key(), iter.Value()) {
	}
	return iter.Error()
}

type levelDBBatch struct {
	batch    *leveldb.Batch
	provider *LevelDBProvider
}

func (b *levelDBBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelDBBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelDBBatch) Reset()                { b.batch.Reset() }
func (b *levelDBBatch) Close()                {}

func (b *levelDBBatch) Write() error {
	return b.provider.db.Write(b.batch, b.provider.write)
}
