package recovery

import (
	"fmt"
	"runtime/debug"

	"github.com/noirtty/noirtty/internal/logger"
)

// SafeGo runs fn in a goroutine. A panic is logged with its stack and
// swallowed so one broken session cannot take the server down.
func SafeGo(name string, fn func()) {
	SafeGoWithCleanup(name, fn, nil)
}

// SafeGoWithCleanup is SafeGo with a cleanup function that runs after fn
// returns or panics.
func SafeGoWithCleanup(name string, fn func(), cleanup func()) {
	go func() {
		defer func() {
			if cleanup != nil {
				cleanup()
			}
		}()
		defer Recover(name)
		fn()
	}()
}

// Recover logs a recovered panic. It must be called directly by a deferred
// statement.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprint(r)).
			Bytes("stack", debug.Stack()).
			Msg("panic recovered")
	}
}
