package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mezonai/peerchain/block"
)

var (
	ErrEmptyChain   = errors.New("chain is empty")
	ErrInvalidChain = errors.New("chain is invalid")
	ErrNotLinked    = errors.New("block does not link to the chain tip")
	ErrOutOfRange   = errors.New("index out of range")
)

type options struct {
	now       func() int64
	monotonic bool
	genesisTS *int64
}

// Option configures a Chain.
type Option func(*options)

// WithClock overrides the millisecond clock used to stamp appended blocks.
func WithClock(now func() int64) Option {
	return func(o *options) { o.now = now }
}

// WithMonotonicTimestamps clamps appended timestamps to be no earlier than the tip.
// Enabled by default.
func WithMonotonicTimestamps(enabled bool) Option {
	return func(o *options) { o.monotonic = enabled }
}

// WithGenesisTimestamp pins the genesis timestamp so independently created
// chains share the same genesis block.
func WithGenesisTimestamp(ts int64) Option {
	return func(o *options) { o.genesisTS = &ts }
}

func buildOptions(opts []Option) options {
	o := options{now: block.NowMillis, monotonic: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Chain is an append-only, hash-linked sequence of blocks whose payloads decode to T.
// It is safe for concurrent use.
type Chain[T any] struct {
	mu     sync.RWMutex
	blocks []*block.Block
	opts   options
}

// New creates a chain holding only a genesis block stamped with the current time.
func New[T any](opts ...Option) *Chain[T] {
	o := buildOptions(opts)
	ts := o.now()
	if o.genesisTS != nil {
		ts = *o.genesisTS
	}
	return &Chain[T]{
		blocks: []*block.Block{block.NewGenesis(ts)},
		opts:   o,
	}
}

// FromBlocks wraps an existing block list without rehashing anything.
// Use IsValid to decide whether the result can be trusted.
func FromBlocks[T any](blocks []*block.Block, opts ...Option) (*Chain[T], error) {
	if len(blocks) == 0 {
		return nil, ErrEmptyChain
	}
	owned := make([]*block.Block, len(blocks))
	for i, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("block %d: %w", i, block.ErrNilBlock)
		}
		owned[i] = b.Clone()
	}
	return &Chain[T]{blocks: owned, opts: buildOptions(opts)}, nil
}

// Append builds the next block over payload, links it to the tip and pushes it.
func (c *Chain[T]) Append(payload T) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		return nil, ErrEmptyChain
	}
	tip := c.blocks[len(c.blocks)-1]

	ts := c.opts.now()
	if c.opts.monotonic && ts < tip.Timestamp {
		ts = tip.Timestamp
	}

	b, err := block.NewWithPayload(tip.Index+1, tip.Hash, ts, payload)
	if err != nil {
		return nil, err
	}
	c.blocks = append(c.blocks, b)
	return b.Clone(), nil
}

// AppendBlock pushes a block built elsewhere. Only index continuity and the
// previous-hash link are enforced here; content rules belong to the caller.
func (c *Chain[T]) AppendBlock(b *block.Block) error {
	if b == nil {
		return block.ErrNilBlock
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		return ErrEmptyChain
	}
	tip := c.blocks[len(c.blocks)-1]
	if b.Index != tip.Index+1 || b.PreviousHash != tip.Hash {
		return fmt.Errorf("%w: tip %d, block %d", ErrNotLinked, tip.Index, b.Index)
	}
	c.blocks = append(c.blocks, b.Clone())
	return nil
}

// ReplaceIfLonger adopts candidate's blocks when candidate is valid and strictly
// longer. It reports whether the replacement happened.
func (c *Chain[T]) ReplaceIfLonger(candidate *Chain[T]) (bool, error) {
	if candidate == nil || candidate == c {
		return false, nil
	}
	if err := candidate.Verify(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	blocks := candidate.Blocks()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(blocks) <= len(c.blocks) {
		return false, nil
	}
	c.blocks = blocks
	return true, nil
}

// Verify scans the whole chain once and returns the first integrity violation.
func (c *Chain[T]) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return verifyBlocks(c.blocks)
}

// IsValid reports whether every block's hash and link check out.
func (c *Chain[T]) IsValid() bool {
	return c.Verify() == nil
}

func verifyBlocks(blocks []*block.Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}
	genesis := blocks[0]
	if !genesis.IsGenesis() {
		return fmt.Errorf("invalid genesis block: index %d, previous hash %q", genesis.Index, genesis.PreviousHash)
	}
	if !genesis.HasValidHash() {
		return fmt.Errorf("genesis block: invalid hash")
	}

	for i := 1; i < len(blocks); i++ {
		current, previous := blocks[i], blocks[i-1]

		if current.Index != previous.Index+1 {
			return fmt.Errorf("block %d: invalid index: expected %d, got %d", i, previous.Index+1, current.Index)
		}
		if current.PreviousHash != previous.Hash {
			return fmt.Errorf("block %d: invalid previous hash: expected %s, got %s", i, previous.Hash, current.PreviousHash)
		}
		if expected := current.ComputeHash(); current.Hash != expected {
			return fmt.Errorf("block %d: invalid hash: expected %s, got %s", i, expected, current.Hash)
		}
	}
	return nil
}

// Len returns the number of blocks, genesis included.
func (c *Chain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tip returns a copy of the most recent block.
func (c *Chain[T]) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1].Clone()
}

// Block returns a copy of the block at position i.
func (c *Chain[T]) Block(i int) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return nil, ErrOutOfRange
	}
	return c.blocks[i].Clone(), nil
}

// Blocks returns copies of every block in chain order.
func (c *Chain[T]) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*block.Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

// Payload decodes the payload stored at position i.
func (c *Chain[T]) Payload(i int) (T, error) {
	var v T
	b, err := c.Block(i)
	if err != nil {
		return v, err
	}
	if err := b.Decode(&v); err != nil {
		return v, fmt.Errorf("decode payload of block %d: %w", i, err)
	}
	return v, nil
}

// Latest decodes the payload of the tip. ok is false while only genesis exists.
func (c *Chain[T]) Latest() (v T, ok bool, err error) {
	n := c.Len()
	if n <= 1 {
		return v, false, nil
	}
	v, err = c.Payload(n - 1)
	return v, err == nil, err
}
