package store

import (
	"fmt"
	"testing"

	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	N int `json:"n"`
}

func memStore(t *testing.T) *ChainStore {
	t.Helper()
	cs, err := CreateStore(&StoreConfig{Type: MemoryStoreType})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func buildChain(t *testing.T, n int) *chain.Chain[entry] {
	t.Helper()
	c := chain.New[entry]()
	for i := 0; i < n; i++ {
		_, err := c.Append(entry{N: i})
		require.NoError(t, err)
	}
	return c
}

func TestSaveAndLoadChain(t *testing.T) {
	cs := memStore(t)
	original := buildChain(t, 4)

	require.NoError(t, SaveChain(cs, original))
	length, err := cs.Length()
	require.NoError(t, err)
	assert.Equal(t, 5, length)

	loaded, err := LoadChain[entry](cs)
	require.NoError(t, err)
	assert.Equal(t, original.Blocks(), loaded.Blocks())
	assert.True(t, loaded.IsValid())
}

func TestSaveShorterChainDropsStaleBlocks(t *testing.T) {
	cs := memStore(t)
	require.NoError(t, SaveChain(cs, buildChain(t, 5)))
	require.NoError(t, SaveChain(cs, buildChain(t, 1)))

	blocks, err := cs.LoadBlocks()
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	v, err := cs.provider.Get(blockKey(3))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLoadDoesNotRehash(t *testing.T) {
	cs := memStore(t)
	blocks := buildChain(t, 2).Blocks()
	blocks[2].Hash = "tampered"
	require.NoError(t, cs.SaveBlocks(blocks))

	loaded, err := LoadChain[entry](cs)
	require.NoError(t, err)
	assert.Equal(t, "tampered", loaded.Tip().Hash)
	assert.False(t, loaded.IsValid())
}

func TestLoadOrCreate(t *testing.T) {
	cs := memStore(t)

	_, err := cs.LoadBlocks()
	assert.ErrorIs(t, err, ErrNoChain)

	fresh, err := LoadOrCreate[entry](cs)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Len())

	saved := buildChain(t, 3)
	require.NoError(t, SaveChain(cs, saved))
	restored, err := LoadOrCreate[entry](cs)
	require.NoError(t, err)
	assert.Equal(t, saved.Tip().Hash, restored.Tip().Hash)

	blocks := saved.Blocks()
	blocks[1].Data = []byte(`{"n":99}`)
	require.NoError(t, cs.SaveBlocks(blocks))
	reset, err := LoadOrCreate[entry](cs)
	require.NoError(t, err)
	assert.Equal(t, 1, reset.Len())
}

func TestStoreConfigValidate(t *testing.T) {
	cases := []struct {
		cfg     StoreConfig
		wantErr bool
	}{
		{StoreConfig{Type: MemoryStoreType}, false},
		{StoreConfig{Type: LevelDBStoreType, Directory: "x"}, false},
		{StoreConfig{Type: BoltStoreType}, true},
		{StoreConfig{}, true},
		{StoreConfig{Type: "rocksdb", Directory: "x"}, true},
	}
	for i, c := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			err := c.cfg.Validate()
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoltBackedStore(t *testing.T) {
	dir := t.TempDir()
	cs, err := CreateStore(&StoreConfig{Type: BoltStoreType, Directory: dir})
	require.NoError(t, err)

	original := buildChain(t, 2)
	require.NoError(t, SaveChain(cs, original))
	require.NoError(t, cs.Close())

	provider, err := db.NewBoltProvider(dir + "/chain.db")
	require.NoError(t, err)
	reopened, err := NewChainStore(provider)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := LoadChain[entry](reopened)
	require.NoError(t, err)
	assert.Equal(t, original.Tip().Hash, loaded.Tip().Hash)
}

func TestHasChain(t *testing.T) {
	cs := memStore(t)
	ok, err := cs.HasChain()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SaveChain(cs, buildChain(t, 0)))
	ok, err = cs.HasChain()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveRemovesBlocksBeyondRecordedLength(t *testing.T) {
	cs := memStore(t)
	require.NoError(t, SaveChain(cs, buildChain(t, 2)))
	// left behind by an interrupted writer
	require.NoError(t, cs.provider.Put(blockKey(9), []byte(`{}`)))

	require.NoError(t, SaveChain(cs, buildChain(t, 1)))

	var indexes []int
	require.NoError(t, cs.provider.IteratePrefix([]byte(PrefixBlock), func(key, _ []byte) bool {
		indexes = append(indexes, int(key[len(key)-1]))
		return true
	}))
	assert.Equal(t, []int{0, 1}, indexes)
}
