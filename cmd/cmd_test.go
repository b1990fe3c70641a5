package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/codec"
	"github.com/mezonai/peerchain/game"
	"github.com/mezonai/peerchain/p2p"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameChain(t *testing.T, cells ...int) *chain.Chain[game.State] {
	t.Helper()
	c := chain.New[game.State](chain.WithGenesisTimestamp(playGenesisTimestamp))
	s := game.NewState()
	for _, cell := range cells {
		var err error
		s, err = game.ApplyMove(s, cell)
		require.NoError(t, err)
		_, err = c.Append(s)
		require.NoError(t, err)
	}
	return c
}

func TestPlayMoveAcrossPeers(t *testing.T) {
	judge := p2p.DecodedJudge(game.NewState(), game.ValidateTransition)
	host, err := p2p.NewReconciler(gameChain(t), p2p.WithJudge(judge))
	require.NoError(t, err)
	guest, err := p2p.NewReconciler(gameChain(t), p2p.WithJudge(judge))
	require.NoError(t, err)
	p2p.ConnectPipe("host", host, "guest", guest)

	_, err = playMove(guest, game.O, 0)
	assert.ErrorIs(t, err, errNotYourTurn)

	s, err := playMove(host, game.X, 4)
	require.NoError(t, err)
	assert.Equal(t, game.O, s.Turn)

	seen, err := currentState(guest.Chain())
	require.NoError(t, err)
	assert.Equal(t, game.X, seen.Board[4])

	_, err = playMove(guest, game.O, 4)
	assert.ErrorIs(t, err, game.ErrCellOccupied)

	_, err = playMove(guest, game.O, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, host.Chain().Len())
}

func TestPlayMoveAfterGameOver(t *testing.T) {
	r, err := p2p.NewReconciler(gameChain(t, 0, 3, 1, 4, 2))
	require.NoError(t, err)
	_, err = playMove(r, game.O, 8)
	assert.ErrorIs(t, err, game.ErrGameOver)
}

func TestVerifyChain(t *testing.T) {
	c := gameChain(t, 0, 3, 1)
	data, err := codec.Save(c)
	require.NoError(t, err)

	var out bytes.Buffer
	ok, err := verifyChain(&out, data, "deflate", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "blocks: 4")
	assert.Contains(t, out.String(), "game: ok")

	_, err = verifyChain(&out, data, "json", false)
	assert.Error(t, err, "deflate output is not a JSON array")

	_, err = verifyChain(&out, data, "zip", false)
	assert.Error(t, err)
}

func TestVerifyChainReportsIllegalMove(t *testing.T) {
	c := chain.New[game.State]()
	bad := game.NewState()
	bad.Board[0], bad.Board[1] = game.X, game.X
	_, err := c.Append(bad)
	require.NoError(t, err)
	data, err := codec.SaveWith(codec.JSONCodec{}, c)
	require.NoError(t, err)

	var out bytes.Buffer
	ok, err := verifyChain(&out, data, "json", true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "game: block 1: Expected 1 change, but found 2")

	ok, err = verifyChain(&out, data, "json", false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyCommandOnTamperedFile(t *testing.T) {
	blocks := gameChain(t, 0).Blocks()
	blocks[1].Timestamp++
	data, err := codec.JSONCodec{}.Encode(blocks)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"verify", "--codec", "json", path})
	err = rootCmd.Execute()
	assert.ErrorIs(t, err, errChainInvalid)
	assert.Equal(t, exitInvalidChain, exitCode(err))
	assert.Contains(t, out.String(), "integrity: FAILED")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitInvalidChain, exitCode(fmt.Errorf("%w: chain.txt", errChainInvalid)))
}

func TestRunPlayRequiresOneRole(t *testing.T) {
	assert.Error(t, runPlay(bytes.NewReader(nil), &bytes.Buffer{}, "", "", ""))
	assert.Error(t, runPlay(bytes.NewReader(nil), &bytes.Buffer{}, "a", "b", ""))
}

func TestOutcome(t *testing.T) {
	s := game.NewState()
	assert.Equal(t, "X to move.", outcome(s))
	s.Winner = game.O
	assert.Equal(t, "O wins!", outcome(s))
	s.Winner, s.IsDraw = game.Empty, true
	assert.Equal(t, "Draw.", outcome(s))
}
