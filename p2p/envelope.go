package p2p

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mezonai/peerchain/block"
	"github.com/mezonai/peerchain/jsonx"
)

// MessageType tags the payload carried by an Envelope.
type MessageType string

const (
	MsgChainSync MessageType = "CHAIN_SYNC"
	MsgNewBlock  MessageType = "NEW_BLOCK"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownType       = errors.New("unknown message type")
)

// Envelope is the tagged message exchanged between peers. For CHAIN_SYNC the
// data is the encoded chain as a JSON string; for NEW_BLOCK it is a block object.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewChainSyncEnvelope wraps an encoded chain.
func NewChainSyncEnvelope(encoded []byte) (*Envelope, error) {
	data, err := jsonx.Marshal(string(encoded))
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: MsgChainSync, Data: data}, nil
}

// NewBlockEnvelope wraps a single block.
func NewBlockEnvelope(b *block.Block) (*Envelope, error) {
	if b == nil {
		return nil, block.ErrNilBlock
	}
	data, err := jsonx.Marshal(b)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: MsgNewBlock, Data: data}, nil
}

func (e *Envelope) Marshal() ([]byte, error) {
	return jsonx.Marshal(e)
}

// DecodeEnvelope parses raw bytes into an envelope. It checks shape only; the
// type is checked by the receiver.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedEnvelope)
	}
	var env Envelope
	if err := jsonx.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}
	return &env, nil
}

// ChainData returns the encoded chain of a CHAIN_SYNC envelope. A bare JSON
// array is accepted as well and returned unchanged.
func (e *Envelope) ChainData() ([]byte, error) {
	if e.Type != MsgChainSync {
		return nil, fmt.Errorf("%w: %s is not %s", ErrMalformedEnvelope, e.Type, MsgChainSync)
	}
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, nil
	}
	var encoded string
	if err := jsonx.Unmarshal(trimmed, &encoded); err != nil {
		return nil, fmt.Errorf("%w: chain data: %v", ErrMalformedEnvelope, err)
	}
	return []byte(encoded), nil
}

// Block rebuilds the block of a NEW_BLOCK envelope. The carried hash is kept
// as-is.
func (e *Envelope) Block() (*block.Block, error) {
	if e.Type != MsgNewBlock {
		return nil, fmt.Errorf("%w: %s is not %s", ErrMalformedEnvelope, e.Type, MsgNewBlock)
	}
	var b block.Block
	if err := jsonx.Unmarshal(e.Data, &b); err != nil {
		return nil, fmt.Errorf("%w: block: %v", ErrMalformedEnvelope, err)
	}
	if len(b.Data) > 0 {
		if canonical, err := jsonx.Canonical(b.Data); err == nil {
			b.Data = canonical
		}
	}
	return &b, nil
}
