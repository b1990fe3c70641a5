package events

import (
	"time"

	"github.com/mezonai/peerchain/block"
)

// EventType is an enum-like string type for chain events
type EventType string

const (
	EventBlockAppended    EventType = "BlockAppended"
	EventChainReplaced    EventType = "ChainReplaced"
	EventPeerConnected    EventType = "PeerConnected"
	EventPeerDisconnected EventType = "PeerDisconnected"
	EventMessageDropped   EventType = "MessageDropped"
	EventTransportError   EventType = "TransportError"
)

// ChainEvent is anything observers of a chain may want to react to.
type ChainEvent interface {
	Type() EventType
	Timestamp() time.Time
}

type baseEvent struct {
	timestamp time.Time
}

func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// BlockAppended is published after a block joins the local chain, either
// appended locally (Origin is empty) or received from a peer.
type BlockAppended struct {
	baseEvent
	Block  *block.Block
	Origin string
}

func NewBlockAppended(b *block.Block, origin string) *BlockAppended {
	return &BlockAppended{baseEvent: baseEvent{time.Now()}, Block: b, Origin: origin}
}

func (e *BlockAppended) Type() EventType { return EventBlockAppended }

// ChainReplaced is published when a longer valid chain from a peer is adopted.
type ChainReplaced struct {
	baseEvent
	OldLength int
	NewLength int
	Tip       *block.Block
	Origin    string
}

func NewChainReplaced(oldLen, newLen int, tip *block.Block, origin string) *ChainReplaced {
	return &ChainReplaced{baseEvent: baseEvent{time.Now()}, OldLength: oldLen, NewLength: newLen, Tip: tip, Origin: origin}
}

func (e *ChainReplaced) Type() EventType { return EventChainReplaced }

// PeerEvent covers connect and disconnect of a peer session.
type PeerEvent struct {
	baseEvent
	kind   EventType
	PeerID string
}

func NewPeerConnected(peerID string) *PeerEvent {
	return &PeerEvent{baseEvent: baseEvent{time.Now()}, kind: EventPeerConnected, PeerID: peerID}
}

func NewPeerDisconnected(peerID string) *PeerEvent {
	return &PeerEvent{baseEvent: baseEvent{time.Now()}, kind: EventPeerDisconnected, PeerID: peerID}
}

func (e *PeerEvent) Type() EventType { return e.kind }

// MessageDropped records an inbound message that was discarded.
type MessageDropped struct {
	baseEvent
	PeerID string
	Reason string
}

func NewMessageDropped(peerID, reason string) *MessageDropped {
	return &MessageDropped{baseEvent: baseEvent{time.Now()}, PeerID: peerID, Reason: reason}
}

func (e *MessageDropped) Type() EventType { return EventMessageDropped }

// TransportError surfaces an error reported by a peer's transport.
type TransportError struct {
	baseEvent
	PeerID string
	Err    error
}

func NewTransportError(peerID string, err error) *TransportError {
	return &TransportError{baseEvent: baseEvent{time.Now()}, PeerID: peerID, Err: err}
}

func (e *TransportError) Type() EventType { return EventTransportError }
