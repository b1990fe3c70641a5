package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mezonai/peerchain/codec"
	"github.com/mezonai/peerchain/store"
)

var (
	exportConfigPath string
	exportOut        string
	exportCodec      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored chain of a stopped node to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(exportConfigPath)
		if err != nil {
			return err
		}
		c, err := codec.ByName(exportCodec)
		if err != nil {
			return err
		}
		cs, err := store.CreateStore(&cfg.Store)
		if err != nil {
			return err
		}
		defer cs.Close()

		ok, err := cs.HasChain()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no chain stored in %s store %q", cfg.Store.Type, cfg.Store.Directory)
		}
		loaded, err := store.LoadChain[json.RawMessage](cs)
		if err != nil {
			return fmt.Errorf("failed to load stored chain: %w", err)
		}
		data, err := codec.SaveWith(c, loaded)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d blocks to %s\n", loaded.Len(), exportOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportConfigPath, "config", "c", "", "Path to node.yml")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "chain.txt", "Output file")
	exportCmd.Flags().StringVar(&exportCodec, "codec", "deflate", "Chain encoding: json or deflate")
}
