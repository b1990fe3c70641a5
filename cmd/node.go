package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mezonai/peerchain/config"
	"github.com/mezonai/peerchain/game"
	"github.com/mezonai/peerchain/logx"
	"github.com/mezonai/peerchain/p2p"
)

var (
	nodeConfigPath string
	nodeTuningPath string
	nodeGameRules  bool
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a chain node that syncs and relays blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(nodeConfigPath, nodeTuningPath, nodeGameRules)
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVarP(&nodeConfigPath, "config", "c", "", "Path to node.yml (defaults to an in-memory node)")
	nodeCmd.Flags().StringVarP(&nodeTuningPath, "tuning", "t", "", "Path to an .ini file with [block] and [relay] sections")
	nodeCmd.Flags().BoolVar(&nodeGameRules, "game", false, "Reject blocks that are not legal tic-tac-toe moves")
}

func loadConfig(path string) (*config.ConfigFile, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadNodeConfig(path)
}

func runNode(configPath, tuningPath string, gameRules bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var judge p2p.BlockJudge
	if gameRules {
		judge = p2p.DecodedJudge(game.NewState(), game.ValidateTransition)
	}

	// payloads stay opaque; the node only relays them
	n, err := startNode[json.RawMessage](cfg, tuningPath, judge)
	if err != nil {
		return err
	}
	id, ch := n.bus.Subscribe()
	go logEvents(ch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logx.Info("NODE", fmt.Sprintf("Node %s running | transport=%s | listen=%s", cfg.Node.ID, cfg.Node.Transport, cfg.Node.ListenAddr))
	<-ctx.Done()

	logx.Info("NODE", "Shutting down")
	n.bus.Unsubscribe(id)
	n.Close()
	return nil
}
