package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mezonai/peerchain/cmd"
	"github.com/mezonai/peerchain/logx"
)

const exitCrashed = 3

func main() {
	defer func() {
		if r := recover(); r != nil {
			err := logx.Errorf("peerchain crashed: %v\n%s", r, debug.Stack())
			// the log usually goes to a file; the operator still sees the crash
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitCrashed)
		}
	}()

	os.Exit(cmd.Execute())
}
