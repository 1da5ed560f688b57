// Package safego runs goroutines with panic recovery, so a hook callback
// or notification poller panicking never takes down the embedding process.
package safego

import (
	"runtime/debug"

	"github.com/cklxx/taskctl/internal/logging"
)

// Go runs fn in a goroutine guarded by panic recovery; a panic is logged
// under name and otherwise swallowed.
func Go(log logging.Logger, name string, fn func()) {
	go func() {
		defer recoverPanic(log, name)
		fn()
	}()
}

func recoverPanic(log logging.Logger, name string) {
	if r := recover(); r != nil {
		logging.OrNop(log).Error("goroutine panic [%s]: %v\n%s", name, r, debug.Stack())
	}
}
