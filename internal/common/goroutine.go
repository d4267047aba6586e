package common

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn in a goroutine with panic recovery. Background work --
// cron-driven housekeeping sweeps, share recalculations -- runs under it so
// one bad pass cannot take the scheduler down: the panic is logged with its
// stack and the process keeps serving producers and matchers.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			stack := string(buf[:n])

			if logger == nil {
				fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, stack)
				return
			}
			logger.Error().
				Str("goroutine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stack).
				Msg("recovered panic in background goroutine")
		}()

		fn()
	}()
}
