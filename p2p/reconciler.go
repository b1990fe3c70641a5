package p2p

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mezonai/peerchain/block"
	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/codec"
	"github.com/mezonai/peerchain/events"
	"github.com/mezonai/peerchain/logx"
	"github.com/mezonai/peerchain/monitoring"
	"github.com/mezonai/peerchain/validation"
)

// BlockJudge is an extra payload-level check run on a block that already
// passed the block-transition rules.
type BlockJudge func(prev, next *block.Block) validation.Verdict

// DecodedJudge adapts a payload validator to a BlockJudge. When prev is the
// genesis block, initial stands in for its payload.
func DecodedJudge[T any](initial T, fn func(prev, next T) validation.Verdict) BlockJudge {
	return func(prev, next *block.Block) validation.Verdict {
		prevPayload := initial
		if !prev.IsGenesis() {
			if err := prev.Decode(&prevPayload); err != nil {
				return validation.Reject(fmt.Sprintf("Previous payload is not decodable: %v", err))
			}
		}
		var nextPayload T
		if err := next.Decode(&nextPayload); err != nil {
			return validation.Reject(fmt.Sprintf("Next payload is not decodable: %v", err))
		}
		return fn(prevPayload, nextPayload)
	}
}

type reconcilerConfig struct {
	codec     codec.Codec
	policy    validation.BlockPolicy
	judge     BlockJudge
	relay     *RelayPolicy
	bus       *events.EventBus
	onChange  func()
	chainOpts []chain.Option
}

// Option configures a Reconciler.
type Option func(*reconcilerConfig)

// WithCodec sets the chain encoding used for CHAIN_SYNC.
func WithCodec(c codec.Codec) Option {
	return func(cfg *reconcilerConfig) { cfg.codec = c }
}

// WithBlockPolicy sets the time rules applied to incoming blocks. The
// predecessor check is always disabled because the local tip is trusted.
func WithBlockPolicy(p validation.BlockPolicy) Option {
	return func(cfg *reconcilerConfig) { cfg.policy = p }
}

func WithJudge(j BlockJudge) Option {
	return func(cfg *reconcilerConfig) { cfg.judge = j }
}

func WithRelayPolicy(p *RelayPolicy) Option {
	return func(cfg *reconcilerConfig) { cfg.relay = p }
}

func WithEventBus(bus *events.EventBus) Option {
	return func(cfg *reconcilerConfig) { cfg.bus = bus }
}

// WithOnChange registers fn to run after every chain mutation. It runs while
// mutations are serialized, so it must not append or reconcile itself.
func WithOnChange(fn func()) Option {
	return func(cfg *reconcilerConfig) { cfg.onChange = fn }
}

// WithChainOptions are applied to chains decoded from CHAIN_SYNC.
func WithChainOptions(opts ...chain.Option) Option {
	return func(cfg *reconcilerConfig) { cfg.chainOpts = opts }
}

// Reconciler merges chains and blocks received from peers into the local chain
// and owns the set of connected sessions. All chain mutations go through it.
type Reconciler[T any] struct {
	mu    sync.Mutex
	chain *chain.Chain[T]
	cfg   reconcilerConfig

	sessionsMu sync.RWMutex
	sessions   map[string]*Session
}

// NewReconciler wraps local. Without WithRelayPolicy a default-sized policy is used.
func NewReconciler[T any](local *chain.Chain[T], opts ...Option) (*Reconciler[T], error) {
	if local == nil {
		return nil, chain.ErrEmptyChain
	}
	cfg := reconcilerConfig{
		codec:  codec.Default,
		policy: validation.DefaultBlockPolicy(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.policy.VerifyPrevHash = false
	if cfg.relay == nil {
		relay, err := NewRelayPolicy(DefaultRelayCacheSize)
		if err != nil {
			return nil, err
		}
		cfg.relay = relay
	}
	r := &Reconciler[T]{
		chain:    local,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	monitoring.SetChainLength(local.Len())
	return r, nil
}

// Chain returns the local chain. Read it freely; mutate it only through the Reconciler.
func (r *Reconciler[T]) Chain() *chain.Chain[T] {
	return r.chain
}

// AddSession registers s in the peer set. A second session from the same
// remote id is kept alongside the first.
func (r *Reconciler[T]) AddSession(s *Session) {
	r.sessionsMu.Lock()
	r.sessions[s.Key()] = s
	n := len(r.sessions)
	r.sessionsMu.Unlock()

	monitoring.SetPeerCount(n)
	r.cfg.bus.Publish(events.NewPeerConnected(s.ID()))
}

// RemoveSession drops s from the peer set. Other sessions with the same
// remote id stay registered.
func (r *Reconciler[T]) RemoveSession(s *Session) {
	r.sessionsMu.Lock()
	_, ok := r.sessions[s.Key()]
	delete(r.sessions, s.Key())
	n := len(r.sessions)
	r.sessionsMu.Unlock()

	if !ok {
		return
	}
	monitoring.SetPeerCount(n)
	r.cfg.bus.Publish(events.NewPeerDisconnected(s.ID()))
}

// Peers returns the distinct remote ids of the registered sessions, sorted.
func (r *Reconciler[T]) Peers() []string {
	r.sessionsMu.RLock()
	seen := make(map[string]struct{}, len(r.sessions))
	ids := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		if _, dup := seen[s.ID()]; dup {
			continue
		}
		seen[s.ID()] = struct{}{}
		ids = append(ids, s.ID())
	}
	r.sessionsMu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Reconciler[T]) snapshotSessions() []*Session {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// OnConnect registers the session and offers it the full local chain.
func (r *Reconciler[T]) OnConnect(s *Session) {
	r.AddSession(s)

	encoded, err := codec.SaveWith(r.cfg.codec, r.chain)
	if err != nil {
		logx.Error("RECONCILER", fmt.Sprintf("Failed to encode chain for sync | peer=%s | err=%v", s.ID(), err))
		return
	}
	env, err := NewChainSyncEnvelope(encoded)
	if err != nil {
		logx.Error("RECONCILER", fmt.Sprintf("Failed to build CHAIN_SYNC | peer=%s | err=%v", s.ID(), err))
		return
	}
	if err := r.send(s, env); err != nil {
		logx.Warn("RECONCILER", fmt.Sprintf("Failed to send CHAIN_SYNC | peer=%s | err=%v", s.ID(), err))
	}
}

func (r *Reconciler[T]) OnClose(s *Session) {
	r.RemoveSession(s)
}

func (r *Reconciler[T]) OnError(s *Session, err error) {
	r.cfg.bus.Publish(events.NewTransportError(s.ID(), err))
}

// OnMessage decodes one inbound envelope and reconciles it. Bad input is
// logged and dropped; it never closes the session.
func (r *Reconciler[T]) OnMessage(s *Session, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		r.drop(s, monitoring.DropMalformed, err.Error())
		return
	}
	r.HandleEnvelope(s, env)
}

// HandleEnvelope reconciles an already decoded envelope from s.
func (r *Reconciler[T]) HandleEnvelope(s *Session, env *Envelope) {
	switch env.Type {
	case MsgChainSync:
		r.handleChainSync(s, env)
	case MsgNewBlock:
		r.handleNewBlock(s, env)
	default:
		r.drop(s, monitoring.DropUnknownType, fmt.Sprintf("%v: %q", ErrUnknownType, env.Type))
	}
}

func (r *Reconciler[T]) handleChainSync(s *Session, env *Envelope) {
	data, err := env.ChainData()
	if err != nil {
		r.drop(s, monitoring.DropMalformed, err.Error())
		return
	}
	c := r.cfg.codec
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		c = codec.JSONCodec{}
	}
	candidate, err := codec.LoadWith[T](c, data, r.cfg.chainOpts...)
	if err != nil {
		r.drop(s, monitoring.DropMalformed, fmt.Sprintf("chain sync: %v", err))
		return
	}

	r.mu.Lock()
	oldLen := r.chain.Len()
	replaced, err := r.chain.ReplaceIfLonger(candidate)
	if replaced {
		r.changed()
	}
	r.mu.Unlock()

	if err != nil {
		r.drop(s, monitoring.DropBadChain, err.Error())
		return
	}
	if !replaced {
		logx.Debug("RECONCILER", fmt.Sprintf("Ignoring chain that is not longer | peer=%s | local=%d | remote=%d", s.ID(), oldLen, candidate.Len()))
		return
	}

	newLen := candidate.Len()
	for _, b := range candidate.Blocks() {
		r.cfg.relay.Mark(b.Hash)
	}
	logx.Info("RECONCILER", fmt.Sprintf("Replaced chain | peer=%s | old_length=%d | new_length=%d", s.ID(), oldLen, newLen))
	monitoring.IncreaseChainsReplaced()
	monitoring.SetChainLength(newLen)
	r.cfg.bus.Publish(events.NewChainReplaced(oldLen, newLen, r.chain.Tip(), s.ID()))
}

func (r *Reconciler[T]) handleNewBlock(s *Session, env *Envelope) {
	b, err := env.Block()
	if err != nil {
		r.drop(s, monitoring.DropMalformed, err.Error())
		return
	}
	if r.cfg.relay.Seen(b.Hash) {
		logx.Debug("RECONCILER", fmt.Sprintf("Already handled block | peer=%s | index=%d", s.ID(), b.Index))
		monitoring.RecordDroppedMessage(monitoring.DropDuplicate)
		return
	}

	r.mu.Lock()
	tip := r.chain.Tip()
	if b.PreviousHash != tip.Hash {
		r.mu.Unlock()
		reason := "block does not link to the local tip"
		switch {
		case b.Hash == tip.Hash:
			reason = "block is already the local tip"
		case b.Index > tip.Index:
			reason = fmt.Sprintf("block %d is ahead of local tip %d, waiting for chain sync", b.Index, tip.Index)
		case b.Index <= tip.Index:
			reason = fmt.Sprintf("block %d is behind local tip %d", b.Index, tip.Index)
		}
		r.drop(s, monitoring.DropNotLinked, reason)
		return
	}

	verdict := validation.ValidateBlockTransition(tip, b, r.cfg.policy)
	if verdict.Valid && r.cfg.judge != nil {
		verdict = r.cfg.judge(tip, b)
	}
	if !verdict.Valid {
		r.mu.Unlock()
		r.drop(s, monitoring.DropInvalid, strings.Join(verdict.Reasons, "; "))
		return
	}
	if err := r.chain.AppendBlock(b); err != nil {
		r.mu.Unlock()
		r.drop(s, monitoring.DropNotLinked, err.Error())
		return
	}
	r.cfg.relay.Mark(b.Hash)
	r.changed()
	length := r.chain.Len()
	r.mu.Unlock()

	logx.Info("RECONCILER", fmt.Sprintf("Appended block from peer | peer=%s | index=%d | hash=%s", s.ID(), b.Index, b.Hash))
	monitoring.IncreaseBlocksAppended("peer")
	monitoring.SetChainLength(length)
	r.cfg.bus.Publish(events.NewBlockAppended(b, s.ID()))

	r.broadcast(b, s.ID())
}

// AppendLocal appends payload to the local chain and broadcasts the new block.
func (r *Reconciler[T]) AppendLocal(payload T) (*block.Block, error) {
	b, _, err := r.appendLocal(func() (T, error) { return payload, nil })
	return b, err
}

// AppendWith builds the next payload from the current tip and appends it in
// one step, so no peer block can land between the read and the append. next
// receives the tip payload, or ok=false while only genesis exists. An error
// from next leaves the chain untouched.
func (r *Reconciler[T]) AppendWith(next func(latest T, ok bool) (T, error)) (*block.Block, T, error) {
	return r.appendLocal(func() (T, error) {
		latest, ok, err := r.chain.Latest()
		if err != nil {
			return latest, err
		}
		return next(latest, ok)
	})
}

// appendLocal runs build and the append under r.mu.
func (r *Reconciler[T]) appendLocal(build func() (T, error)) (*block.Block, T, error) {
	r.mu.Lock()
	payload, err := build()
	if err != nil {
		r.mu.Unlock()
		return nil, payload, err
	}
	b, err := r.chain.Append(payload)
	if err != nil {
		r.mu.Unlock()
		return nil, payload, err
	}
	r.cfg.relay.Mark(b.Hash)
	r.changed()
	length := r.chain.Len()
	r.mu.Unlock()

	logx.Info("RECONCILER", fmt.Sprintf("Appended local block | index=%d | hash=%s", b.Index, b.Hash))
	monitoring.IncreaseBlocksAppended("local")
	monitoring.SetChainLength(length)
	r.cfg.bus.Publish(events.NewBlockAppended(b, ""))

	r.BroadcastBlock(b)
	return b, payload, nil
}

// BroadcastBlock sends b to every connected session and returns how many
// sends succeeded.
func (r *Reconciler[T]) BroadcastBlock(b *block.Block) int {
	return r.broadcast(b, "")
}

func (r *Reconciler[T]) broadcast(b *block.Block, origin string) int {
	env, err := NewBlockEnvelope(b)
	if err != nil {
		logx.Error("RECONCILER", fmt.Sprintf("Failed to build NEW_BLOCK | err=%v", err))
		return 0
	}
	sent := 0
	for _, target := range r.cfg.relay.Targets(r.snapshotSessions(), origin) {
		if err := r.send(target, env); err != nil {
			logx.Warn("RECONCILER", fmt.Sprintf("Failed to send NEW_BLOCK | peer=%s | err=%v", target.ID(), err))
			continue
		}
		sent++
	}
	if origin != "" {
		monitoring.IncreaseRelayedBlocks(sent)
	}
	return sent
}

func (r *Reconciler[T]) send(s *Session, env *Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return s.Send(data)
}

func (r *Reconciler[T]) changed() {
	if r.cfg.onChange != nil {
		r.cfg.onChange()
	}
}

func (r *Reconciler[T]) drop(s *Session, reason monitoring.DropReason, detail string) {
	logx.Warn("RECONCILER", fmt.Sprintf("Dropped message | peer=%s | reason=%s | detail=%s", s.ID(), reason, detail))
	monitoring.RecordDroppedMessage(reason)
	r.cfg.bus.Publish(events.NewMessageDropped(s.ID(), detail))
}
