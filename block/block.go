package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mezonai/peerchain/jsonx"
)

const (
	// GenesisPreviousHash is the previous-hash sentinel carried by the genesis block.
	GenesisPreviousHash = "0"
	// GenesisData is the payload of every genesis block.
	GenesisData = "Genesis Block"
)

var ErrNilBlock = errors.New("nil block")

// Block is one hash-identified entry of a chain. Data holds the canonical JSON
// encoding of the application payload.
type Block struct {
	Index        uint64          `json:"index"`
	Timestamp    int64           `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
	PreviousHash string          `json:"previousHash"`
	Hash         string          `json:"hash"`
}

// NowMillis returns the current time in milliseconds since epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// New assembles a block over an already-encoded payload and derives its hash.
func New(index uint64, previousHash string, timestamp int64, data []byte) (*Block, error) {
	canonical, err := jsonx.Canonical(data)
	if err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         canonical,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b, nil
}

// NewWithPayload encodes payload and assembles a block over it.
func NewWithPayload(index uint64, previousHash string, timestamp int64, payload interface{}) (*Block, error) {
	data, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return New(index, previousHash, timestamp, data)
}

// NewGenesis returns the fixed first block of a chain created at timestamp.
func NewGenesis(timestamp int64) *Block {
	b, err := NewWithPayload(0, GenesisPreviousHash, timestamp, GenesisData)
	if err != nil {
		// a constant string always encodes
		panic(err)
	}
	return b
}

// ComputeHash recomputes the hex SHA-256 digest over index, previous hash,
// timestamp and the canonical payload, concatenated in that order.
func (b *Block) ComputeHash() string {
	data := []byte(b.Data)
	if len(data) == 0 {
		data = []byte("null")
	} else if canonical, err := jsonx.Canonical(data); err == nil {
		data = canonical
	}

	buf := make([]byte, 0, 64+len(b.PreviousHash)+len(data))
	buf = strconv.AppendUint(buf, b.Index, 10)
	buf = append(buf, b.PreviousHash...)
	buf = strconv.AppendInt(buf, b.Timestamp, 10)
	buf = append(buf, data...)
	return sumHex(buf)
}

// HasValidHash reports whether the stored hash equals the recomputation.
func (b *Block) HasValidHash() bool {
	return b != nil && b.Hash == b.ComputeHash()
}

// IsGenesis reports whether b has the genesis index and sentinel.
func (b *Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == GenesisPreviousHash
}

// Decode unmarshals the payload into v.
func (b *Block) Decode(v interface{}) error {
	if b == nil {
		return ErrNilBlock
	}
	return jsonx.Unmarshal(b.Data, v)
}

// Clone returns a deep copy; the hash is carried over, not recomputed.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	c.Data = append(json.RawMessage(nil), b.Data...)
	return &c
}

func (b *Block) String() string {
	return fmt.Sprintf("index: %d, previousHash: %s, timestamp: %d, data: %s, hash: %s",
		b.Index, b.PreviousHash, b.Timestamp, b.Data, b.Hash)
}
