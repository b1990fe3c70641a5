package chain

import (
	"testing"

	"github.com/mezonai/peerchain/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Message string `json:"message"`
}

func fixedClock(start int64) func() int64 {
	t := start
	return func() int64 {
		t++
		return t
	}
}

func buildChain(t *testing.T, n int) *Chain[message] {
	t.Helper()
	c := New[message](WithClock(fixedClock(1_700_000_000_000)))
	for i := 0; i < n; i++ {
		_, err := c.Append(message{Message: "Hello, world!"})
		require.NoError(t, err)
	}
	return c
}

func TestNewChainHasGenesis(t *testing.T) {
	c := New[message]()

	require.Equal(t, 1, c.Len())
	g, err := c.Block(0)
	require.NoError(t, err)
	assert.Equal(t, `"Genesis Block"`, string(g.Data))
	assert.Equal(t, "0", g.PreviousHash)
	assert.True(t, c.IsValid())
}

func TestAppendLinksToTip(t *testing.T) {
	c := buildChain(t, 0)
	genesis := c.Tip()

	b, err := c.Append(message{Message: "Hello, world!"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), b.Index)
	assert.Equal(t, genesis.Hash, b.PreviousHash)
	assert.Equal(t, b.ComputeHash(), b.Hash)
	assert.Equal(t, 2, c.Len())

	got, err := c.Payload(1)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", got.Message)
}

func TestAppendOnlyChainsAreValid(t *testing.T) {
	for n := 0; n < 20; n++ {
		assert.True(t, buildChain(t, n).IsValid(), "chain with %d appends", n)
	}
}

func TestMonotonicTimestamps(t *testing.T) {
	clock := []int64{100, 50}
	i := 0
	c := New[message](WithClock(func() int64 {
		v := clock[i%len(clock)]
		i++
		return v
	}))
	b, err := c.Append(message{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Timestamp, "clamped to genesis timestamp")

	down := int64(100)
	c = New[message](WithClock(func() int64 {
		down -= 10
		return down
	}), WithMonotonicTimestamps(false))
	b, err = c.Append(message{})
	require.NoError(t, err)
	assert.Less(t, b.Timestamp, c.blocks[0].Timestamp)
}

func TestTamperingAnyFieldInvalidatesChain(t *testing.T) {
	mutations := map[string]func(b *block.Block){
		"index":        func(b *block.Block) { b.Index += 5 },
		"timestamp":    func(b *block.Block) { b.Timestamp++ },
		"data":         func(b *block.Block) { b.Data = []byte(`{"message":"Tampered data"}`) },
		"previousHash": func(b *block.Block) { b.PreviousHash = "deadbeef" },
		"hash":         func(b *block.Block) { b.Hash = "deadbeef" },
	}

	for name, mutate := range mutations {
		for pos := 1; pos <= 3; pos++ {
			c := buildChain(t, 3)
			mutate(c.blocks[pos])
			assert.False(t, c.IsValid(), "mutating %s of block %d", name, pos)
		}
	}
}

func TestTamperedGenesisIsInvalid(t *testing.T) {
	c := buildChain(t, 1)
	c.blocks[0].Data = []byte(`"Other Genesis"`)
	assert.False(t, c.IsValid())
}

func TestAppendBlockRequiresLink(t *testing.T) {
	src := buildChain(t, 2)
	dst, err := FromBlocks[message](src.Blocks()[:2])
	require.NoError(t, err)

	third, err := src.Block(2)
	require.NoError(t, err)
	require.NoError(t, dst.AppendBlock(third))
	assert.Equal(t, 3, dst.Len())

	err = dst.AppendBlock(third)
	assert.ErrorIs(t, err, ErrNotLinked)
	assert.Equal(t, 3, dst.Len())
}

func TestReplaceIfLonger(t *testing.T) {
	local := buildChain(t, 2)
	longer := buildChain(t, 4)
	equal := buildChain(t, 2)

	replaced, err := local.ReplaceIfLonger(equal)
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = local.ReplaceIfLonger(longer)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 5, local.Len())
	assert.Equal(t, longer.Tip().Hash, local.Tip().Hash)

	tampered := buildChain(t, 8)
	tampered.blocks[3].Hash = "bad"
	replaced, err = local.ReplaceIfLonger(tampered)
	assert.ErrorIs(t, err, ErrInvalidChain)
	assert.False(t, replaced)
	assert.Equal(t, 5, local.Len())
}

func TestFromBlocks(t *testing.T) {
	_, err := FromBlocks[message](nil)
	assert.ErrorIs(t, err, ErrEmptyChain)

	_, err = FromBlocks[message]([]*block.Block{nil})
	assert.ErrorIs(t, err, block.ErrNilBlock)
}

func TestLatest(t *testing.T) {
	c := buildChain(t, 0)
	_, ok, err := c.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Append(message{Message: "last"})
	require.NoError(t, err)
	v, ok, err := c.Latest()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "last", v.Message)

	_, err = c.Block(10)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestGenesisTimestampIsShared(t *testing.T) {
	a := New[message](WithGenesisTimestamp(0))
	b := New[message](WithGenesisTimestamp(0), WithClock(fixedClock(500)))
	assert.Equal(t, a.Tip().Hash, b.Tip().Hash)
	assert.Equal(t, int64(0), a.Tip().Timestamp)

	blk, err := b.Append(message{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(501), blk.Timestamp)
}
