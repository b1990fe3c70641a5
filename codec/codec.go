package codec

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"

	"github.com/mezonai/peerchain/block"
	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/jsonx"
)

var ErrEmptyInput = errors.New("empty chain encoding")

// Codec turns a block list into transport/persistence bytes and back.
// Decode must be the exact inverse of Encode, hashes included.
type Codec interface {
	Name() string
	Encode(blocks []*block.Block) ([]byte, error)
	Decode(data []byte) ([]*block.Block, error)
}

// JSONCodec encodes the block list as a canonical JSON array.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(blocks []*block.Block) ([]byte, error) {
	if blocks == nil {
		blocks = []*block.Block{}
	}
	data, err := jsonx.Marshal(blocks)
	if err != nil {
		return nil, errors.Wrap(err, "marshal blocks")
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) ([]*block.Block, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}
	var blocks []*block.Block
	if err := jsonx.Unmarshal(data, &blocks); err != nil {
		return nil, errors.Wrap(err, "unmarshal blocks")
	}
	for i, b := range blocks {
		if b == nil {
			return nil, errors.Wrapf(block.ErrNilBlock, "block %d", i)
		}
	}
	return blocks, nil
}

// DeflateCodec deflates the JSON array and base64-encodes it so the result is
// safe to embed in text envelopes.
type DeflateCodec struct {
	Level int
}

func (DeflateCodec) Name() string { return "deflate" }

func (c DeflateCodec) Encode(blocks []*block.Block) ([]byte, error) {
	raw, err := JSONCodec{}.Encode(blocks)
	if err != nil {
		return nil, err
	}

	level := c.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, level)
	if err != nil {
		return nil, errors.Wrap(err, "create deflate writer")
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, "deflate blocks")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "flush deflate writer")
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(compressed.Len()))
	base64.StdEncoding.Encode(out, compressed.Bytes())
	return out, nil
}

func (DeflateCodec) Decode(data []byte) ([]*block.Block, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	compressed := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(compressed, data)
	if err != nil {
		return nil, errors.Wrap(err, "base64 decode")
	}

	r := flate.NewReader(bytes.NewReader(compressed[:n]))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "inflate blocks")
	}
	return JSONCodec{}.Decode(raw)
}

// ByName returns the codec registered under name ("json" or "deflate").
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "deflate":
		return DeflateCodec{}, nil
	default:
		return nil, errors.Errorf("unknown codec %q", name)
	}
}

// Default is the codec used on the wire.
var Default Codec = DeflateCodec{}

// Save encodes the full chain with the default codec.
func Save[T any](c *chain.Chain[T]) ([]byte, error) {
	return SaveWith(Default, c)
}

// SaveWith encodes the full chain with codec.
func SaveWith[T any](codec Codec, c *chain.Chain[T]) ([]byte, error) {
	return codec.Encode(c.Blocks())
}

// Load decodes a chain produced by Save. Stored hashes are kept as-is; call
// IsValid on the result before trusting it.
func Load[T any](data []byte, opts ...chain.Option) (*chain.Chain[T], error) {
	return LoadWith[T](Default, data, opts...)
}

// LoadWith decodes a chain produced by SaveWith(codec, ...).
func LoadWith[T any](codec Codec, data []byte, opts ...chain.Option) (*chain.Chain[T], error) {
	blocks, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	return chain.FromBlocks[T](blocks, opts...)
}
