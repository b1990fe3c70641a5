package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mezonai/peerchain/chain"
	"github.com/mezonai/peerchain/config"
	"github.com/mezonai/peerchain/events"
	"github.com/mezonai/peerchain/exception"
	"github.com/mezonai/peerchain/game"
	"github.com/mezonai/peerchain/p2p"
)

// Both players pin the genesis block so their chains start out identical.
const playGenesisTimestamp int64 = 0

var (
	playListen string
	playJoin   string
	playAPI    string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play tic-tac-toe with a peer, one block per move",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd.InOrStdin(), cmd.OutOrStdout(), playListen, playJoin, playAPI)
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVar(&playListen, "listen", "", "Host a game on this address (plays X)")
	playCmd.Flags().StringVar(&playJoin, "join", "", "Join a game hosted at this address (plays O)")
	playCmd.Flags().StringVar(&playAPI, "api", "", "Optional status API address")
}

var errNotYourTurn = errors.New("not your turn")

type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) show(s game.State) {
	c.printf("\n%s%s\n", game.Render(s), outcome(s))
}

func outcome(s game.State) string {
	switch {
	case s.Winner != game.Empty:
		return fmt.Sprintf("%s wins!", s.Winner)
	case s.IsDraw:
		return "Draw."
	default:
		return fmt.Sprintf("%s to move.", s.Turn)
	}
}

func playConfig(listen, join, apiAddr string) *config.ConfigFile {
	cfg := config.Default()
	cfg.Node.ID = "player"
	cfg.Node.APIAddr = apiAddr
	genesis := playGenesisTimestamp
	cfg.Node.GenesisTimestampMs = &genesis
	cfg.Node.ListenAddr = "127.0.0.1:0"
	if listen != "" {
		cfg.Node.ListenAddr = listen
	}
	if join != "" {
		cfg.Node.Peers = []string{join}
	}
	return cfg
}

// currentState decodes the latest game state on the chain, or a new game
// while only the genesis block exists.
func currentState(c *chain.Chain[game.State]) (game.State, error) {
	s, ok, err := c.Latest()
	if err != nil {
		return game.State{}, err
	}
	if !ok {
		return game.NewState(), nil
	}
	return s, nil
}

// playMove places me at cell on top of the chain and broadcasts the result.
// The move is computed from the tip under the reconciler's lock.
func playMove(r *p2p.Reconciler[game.State], me game.Cell, cell int) (game.State, error) {
	_, next, err := r.AppendWith(func(latest game.State, ok bool) (game.State, error) {
		s := latest
		if !ok {
			s = game.NewState()
		}
		if s.Finished() {
			return s, game.ErrGameOver
		}
		if s.Turn != me {
			return s, fmt.Errorf("%w: waiting for %s", errNotYourTurn, s.Turn)
		}
		return game.ApplyMove(s, cell)
	})
	return next, err
}

func runPlay(in io.Reader, out io.Writer, listen, join, apiAddr string) error {
	if (listen == "") == (join == "") {
		return errors.New("exactly one of --listen or --join is required")
	}
	me := game.X
	if join != "" {
		me = game.O
	}

	judge := p2p.DecodedJudge(game.NewState(), game.ValidateTransition)
	n, err := startNode[game.State](playConfig(listen, join, apiAddr), "", judge)
	if err != nil {
		return err
	}
	defer n.Close()

	con := &console{out: out}
	id, ch := n.bus.SubscribeTypes(events.EventBlockAppended, events.EventChainReplaced,
		events.EventPeerConnected, events.EventPeerDisconnected)
	defer n.bus.Unsubscribe(id)
	exception.SafeGo("play-events", func() {
		for ev := range ch {
			switch e := ev.(type) {
			case *events.BlockAppended:
				if e.Origin == "" {
					continue
				}
			case *events.PeerEvent:
				con.printf("peer %s: %s\n", e.PeerID, e.Type())
				continue
			}
			if s, err := currentState(n.reconciler.Chain()); err == nil {
				con.show(s)
			}
		}
	})

	if n.tcp != nil {
		con.printf("Listening on %s\n", n.tcp.Addr())
	}
	con.printf("You are %s. Enter a cell 0-8, 'show' or 'quit'.\n", me)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "q", "quit":
			return nil
		case "show":
			s, err := currentState(n.reconciler.Chain())
			if err != nil {
				return err
			}
			con.show(s)
			continue
		}

		cell, err := strconv.Atoi(line)
		if err != nil {
			con.printf("not a cell: %q\n", line)
			continue
		}
		s, err := playMove(n.reconciler, me, cell)
		if err != nil {
			con.printf("%v\n", err)
			continue
		}
		con.show(s)
	}
	return scanner.Err()
}
