package p2p

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mezonai/peerchain/block"
	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/codec"
	"github.com/mezonai/peerchain/events"
	"github.com/mezonai/peerchain/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Text string `json:"text"`
}

// recorder is a passive peer that keeps every message it receives.
type recorder struct {
	mu       sync.Mutex
	messages []*Envelope
	closed   bool
}

func (r *recorder) OnConnect(*Session) {}

func (r *recorder) OnMessage(_ *Session, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, env)
}

func (r *recorder) OnClose(*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) OnError(*Session, error) {}

func (r *recorder) ofType(t MessageType) []*Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Envelope
	for _, m := range r.messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func steppingClock(start int64) chain.Option {
	var mu sync.Mutex
	now := start
	return chain.WithClock(func() int64 {
		mu.Lock()
		defer mu.Unlock()
		now += 10
		return now
	})
}

func buildChain(t *testing.T, appends int) *chain.Chain[note] {
	t.Helper()
	c := chain.New[note](steppingClock(1_000))
	for i := 0; i < appends; i++ {
		_, err := c.Append(note{Text: fmt.Sprintf("msg-%d", i)})
		require.NoError(t, err)
	}
	return c
}

func newReconciler(t *testing.T, c *chain.Chain[note], opts ...Option) *Reconciler[note] {
	t.Helper()
	r, err := NewReconciler(c, opts...)
	require.NoError(t, err)
	return r
}

func chainSyncMessage(t *testing.T, blocks []*block.Block) []byte {
	t.Helper()
	encoded, err := codec.Default.Encode(blocks)
	require.NoError(t, err)
	env, err := NewChainSyncEnvelope(encoded)
	require.NoError(t, err)
	raw, err := env.Marshal()
	require.NoError(t, err)
	return raw
}

func newBlockMessage(t *testing.T, b *block.Block) []byte {
	t.Helper()
	env, err := NewBlockEnvelope(b)
	require.NoError(t, err)
	raw, err := env.Marshal()
	require.NoError(t, err)
	return raw
}

func nextBlock(t *testing.T, tip *block.Block, payload interface{}) *block.Block {
	t.Helper()
	b, err := block.NewWithPayload(tip.Index+1, tip.Hash, tip.Timestamp+5, payload)
	require.NoError(t, err)
	return b
}

func TestChainSyncReplacesWithLongerValidChain(t *testing.T) {
	r := newReconciler(t, buildChain(t, 2))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})
	require.Equal(t, 3, r.Chain().Len())

	remote := buildChain(t, 4)
	r.OnMessage(s, chainSyncMessage(t, remote.Blocks()))

	assert.Equal(t, 5, r.Chain().Len())
	assert.Equal(t, remote.Tip().Hash, r.Chain().Tip().Hash)
	assert.True(t, r.Chain().IsValid())
}

func TestChainSyncKeepsLocalOnTamperedChain(t *testing.T) {
	r := newReconciler(t, buildChain(t, 2))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})
	before := r.Chain().Tip().Hash

	blocks := buildChain(t, 4).Blocks()
	blocks[3].Hash = "deadbeef"
	r.OnMessage(s, chainSyncMessage(t, blocks))

	assert.Equal(t, 3, r.Chain().Len())
	assert.Equal(t, before, r.Chain().Tip().Hash)
	assert.Equal(t, StateConnected, s.State())
}

func TestChainSyncKeepsLocalOnEqualLength(t *testing.T) {
	r := newReconciler(t, buildChain(t, 2))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})
	before := r.Chain().Tip().Hash

	r.OnMessage(s, chainSyncMessage(t, buildChain(t, 2).Blocks()))

	assert.Equal(t, 3, r.Chain().Len())
	assert.Equal(t, before, r.Chain().Tip().Hash)
}

func TestChainSyncAcceptsPlainJSONArray(t *testing.T) {
	r := newReconciler(t, buildChain(t, 0))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})

	encoded, err := codec.JSONCodec{}.Encode(buildChain(t, 2).Blocks())
	require.NoError(t, err)
	raw := []byte(`{"type":"CHAIN_SYNC","data":` + string(encoded) + `}`)
	r.OnMessage(s, raw)

	assert.Equal(t, 3, r.Chain().Len())
}

func TestOnConnectSendsChainSync(t *testing.T) {
	r := newReconciler(t, buildChain(t, 3))
	peer := &recorder{}
	ConnectPipe("local", r, "remote", peer)

	syncs := peer.ofType(MsgChainSync)
	require.Len(t, syncs, 1)
	data, err := syncs[0].ChainData()
	require.NoError(t, err)
	loaded, err := codec.Load[note](data)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Len())
	assert.Equal(t, r.Chain().Tip().Hash, loaded.Tip().Hash)
	assert.Equal(t, []string{"remote"}, r.Peers())
}

func TestNewBlockAppendedOnceAndRelayedToOthers(t *testing.T) {
	hub := newReconciler(t, buildChain(t, 1))
	a, b, c := &recorder{}, &recorder{}, &recorder{}
	fromA, _ := ConnectPipe("hub", hub, "a", a)
	ConnectPipe("hub", hub, "b", b)
	ConnectPipe("hub", hub, "c", c)

	blk := nextBlock(t, hub.Chain().Tip(), note{Text: "hello"})
	raw := newBlockMessage(t, blk)

	hub.OnMessage(fromA, raw)
	hub.OnMessage(fromA, raw)

	assert.Equal(t, 3, hub.Chain().Len())
	assert.Equal(t, blk.Hash, hub.Chain().Tip().Hash)

	assert.Empty(t, a.ofType(MsgNewBlock))
	for _, peer := range []*recorder{b, c} {
		relayed := peer.ofType(MsgNewBlock)
		require.Len(t, relayed, 1)
		got, err := relayed[0].Block()
		require.NoError(t, err)
		assert.Equal(t, blk.Hash, got.Hash)
	}
}

func TestNewBlockDroppedWhenNotLinked(t *testing.T) {
	r := newReconciler(t, buildChain(t, 2))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})
	tip := r.Chain().Tip()

	ahead, err := block.NewWithPayload(tip.Index+2, "unknown", tip.Timestamp+1, note{Text: "ahead"})
	require.NoError(t, err)
	r.OnMessage(s, newBlockMessage(t, ahead))

	behind, err := block.NewWithPayload(1, "unknown", tip.Timestamp+1, note{Text: "behind"})
	require.NoError(t, err)
	r.OnMessage(s, newBlockMessage(t, behind))

	r.OnMessage(s, newBlockMessage(t, tip))

	assert.Equal(t, 3, r.Chain().Len())
	assert.Equal(t, tip.Hash, r.Chain().Tip().Hash)
}

func TestNewBlockWithBadHashIsRejected(t *testing.T) {
	r := newReconciler(t, buildChain(t, 1))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})

	blk := nextBlock(t, r.Chain().Tip(), note{Text: "x"})
	blk.Data = []byte(`{"text":"y"}`)
	r.OnMessage(s, newBlockMessage(t, blk))

	assert.Equal(t, 2, r.Chain().Len())
}

func TestMalformedEnvelopesAreDropped(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	r := newReconciler(t, buildChain(t, 1), WithEventBus(bus))
	s, _ := ConnectPipe("local", r, "remote", &recorder{})

	for _, raw := range []string{
		"not json",
		`{"type":"PING","data":1}`,
		`{"type":"NEW_BLOCK"}`,
		`{"data":"abc"}`,
		`{"type":"CHAIN_SYNC","data":"@@@"}`,
	} {
		r.OnMessage(s, []byte(raw))
	}

	assert.Equal(t, 2, r.Chain().Len())
	assert.Equal(t, StateConnected, s.State())

	dropped := 0
	for len(ch) > 0 {
		if ev := <-ch; ev.Type() == events.EventMessageDropped {
			dropped++
		}
	}
	assert.Equal(t, 5, dropped)
}

func TestJudgeRejectsIllegalMove(t *testing.T) {
	local := chain.New[game.State]()
	r, err := NewReconciler(local, WithJudge(DecodedJudge(game.NewState(), game.ValidateTransition)))
	require.NoError(t, err)
	s, _ := ConnectPipe("local", r, "remote", &recorder{})

	illegal := game.NewState()
	illegal.Board[0], illegal.Board[1] = game.X, game.X
	illegal.Turn = game.O
	r.OnMessage(s, newBlockMessage(t, nextBlock(t, local.Tip(), illegal)))
	assert.Equal(t, 1, local.Len())

	legal, err := game.ApplyMove(game.NewState(), 4)
	require.NoError(t, err)
	r.OnMessage(s, newBlockMessage(t, nextBlock(t, local.Tip(), legal)))
	assert.Equal(t, 2, local.Len())

	latest, ok, err := local.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, game.X, latest.Board[4])
}

func TestPeersConvergeAcrossTriangle(t *testing.T) {
	a := newReconciler(t, buildChain(t, 0))
	b := newReconciler(t, buildChain(t, 0))
	c := newReconciler(t, buildChain(t, 0))
	ConnectPipe("a", a, "b", b)
	ConnectPipe("b", b, "c", c)
	ConnectPipe("c", c, "a", a)

	// all three adopted nothing: equal lengths are never replaced
	require.Equal(t, 1, a.Chain().Len())

	_, err := a.AppendLocal(note{Text: "first"})
	require.NoError(t, err)

	for _, r := range []*Reconciler[note]{b, c} {
		assert.Equal(t, 2, r.Chain().Len())
		assert.Equal(t, a.Chain().Tip().Hash, r.Chain().Tip().Hash)
	}
}

func TestLateJoinerAdoptsLongerChain(t *testing.T) {
	var saves int
	veteran := newReconciler(t, buildChain(t, 3))
	joiner := newReconciler(t, buildChain(t, 0), WithOnChange(func() { saves++ }))

	ConnectPipe("veteran", veteran, "joiner", joiner)

	assert.Equal(t, 4, joiner.Chain().Len())
	assert.Equal(t, veteran.Chain().Tip().Hash, joiner.Chain().Tip().Hash)
	assert.Equal(t, 1, saves)

	_, err := veteran.AppendLocal(note{Text: "after join"})
	require.NoError(t, err)
	assert.Equal(t, 5, joiner.Chain().Len())
	assert.Equal(t, 2, saves)
}

func TestCloseRemovesSession(t *testing.T) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	r := newReconciler(t, buildChain(t, 0), WithEventBus(bus))
	peer := &recorder{}
	s, _ := ConnectPipe("local", r, "remote", peer)
	require.Equal(t, []string{"remote"}, r.Peers())

	require.NoError(t, s.Close())

	assert.Empty(t, r.Peers())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, peer.closed)
	assert.Equal(t, 1, r.Chain().Len())
	assert.ErrorIs(t, s.Send([]byte("x")), ErrSessionClosed)
	assert.Equal(t, 0, r.BroadcastBlock(r.Chain().Tip()))

	var kinds []events.EventType
	timeout := time.After(time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Type())
		case <-timeout:
			t.Fatal("missing peer events")
		}
	}
	assert.Equal(t, []events.EventType{events.EventPeerConnected, events.EventPeerDisconnected}, kinds)
}

func TestClosingOneSessionKeepsSiblingWithSameID(t *testing.T) {
	r := newReconciler(t, buildChain(t, 0))
	stale, live := &recorder{}, &recorder{}
	s1, _ := ConnectPipe("hub", r, "same", stale)
	s2, _ := ConnectPipe("hub", r, "same", live)
	assert.NotEqual(t, s1.Key(), s2.Key())
	assert.Equal(t, []string{"same"}, r.Peers())

	require.NoError(t, s1.Close())
	assert.Equal(t, StateConnected, s2.State())
	assert.Equal(t, []string{"same"}, r.Peers())

	_, err := r.AppendLocal(note{Text: "after reconnect"})
	require.NoError(t, err)
	assert.Len(t, live.ofType(MsgNewBlock), 1)
	assert.Empty(t, stale.ofType(MsgNewBlock))

	require.NoError(t, s2.Close())
	assert.Empty(t, r.Peers())
}

func TestAppendWithBuildsFromCurrentTip(t *testing.T) {
	local := newReconciler(t, buildChain(t, 0))
	remote := newReconciler(t, buildChain(t, 0))
	peer := &recorder{}
	ConnectPipe("local", local, "peer", peer)
	ConnectPipe("local", local, "remote", remote)

	_, err := remote.AppendLocal(note{Text: "from remote"})
	require.NoError(t, err)
	require.Equal(t, 2, local.Chain().Len())

	b, got, err := local.AppendWith(func(latest note, ok bool) (note, error) {
		require.True(t, ok)
		return note{Text: latest.Text + " + local"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from remote + local", got.Text)
	assert.Equal(t, uint64(2), b.Index)
	assert.Equal(t, local.Chain().Tip().Hash, remote.Chain().Tip().Hash)

	sent := len(peer.ofType(MsgNewBlock))
	_, _, err = local.AppendWith(func(note, bool) (note, error) {
		return note{}, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, local.Chain().Len())
	assert.Len(t, peer.ofType(MsgNewBlock), sent)
}

func TestAppendWithStartsFromGenesis(t *testing.T) {
	r := newReconciler(t, buildChain(t, 0))
	_, _, err := r.AppendWith(func(_ note, ok bool) (note, error) {
		assert.False(t, ok)
		return note{Text: "first"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Chain().Len())
}
