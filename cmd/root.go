package cmd

import (
	"errors"
	"os"

	"github.com/mezonai/peerchain/logx"
	"github.com/spf13/cobra"
)

// version is set at build time with
// -ldflags "-X github.com/mezonai/peerchain/cmd.version=v1.2.3".
var version = "dev"

// errChainInvalid marks a chain that decoded but failed verification.
var errChainInvalid = errors.New("chain is invalid")

const (
	exitOK           = 0
	exitFailure      = 1
	exitInvalidChain = 2
)

var logStderr bool

var rootCmd = &cobra.Command{
	Use:          "peerchain",
	Short:        "Peer-to-peer replicated state chain",
	Long:         "Command line interface for running a peerchain node, playing a chained game and verifying saved chains.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logStderr {
			logx.SetOutput(os.Stderr)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logStderr, "log-stderr", false, "Write logs to stderr instead of ./logs")
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return exitCode(rootCmd.Execute())
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errChainInvalid):
		return exitInvalidChain
	default:
		logx.Error("CMD", "Command execution failed: ", err)
		return exitFailure
	}
}
