package exception

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mezonai/peerchain/logx"
	"github.com/mezonai/peerchain/monitoring"
)

// SafeGo runs fn in a goroutine and logs any panic instead of crashing the node.
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// SafeGoWithPanic runs fn in a goroutine and exits the process if it panics.
func SafeGoWithPanic(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(name, r)
				os.Exit(1)
			}
		}()
		fn()
	}()
}

// Recover is meant to be deferred; it swallows and reports a panic.
func Recover(name string) {
	if r := recover(); r != nil {
		report(name, r)
	}
}

func report(name string, r interface{}) {
	monitoring.IncreasePanicCount()
	logx.Error("PANIC", fmt.Sprintf("Panic in %s: %v\n%s", name, r, debug.Stack()))
}
