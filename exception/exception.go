package exception

import (
	"runtime/debug"

	"github.com/mezonai/votechain/logx"
	"github.com/mezonai/votechain/monitoring"
)

// SafeGo runs fn on a new goroutine and logs instead of crashing on panic
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", "Panic in: ", name, " ", r, "\n", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
