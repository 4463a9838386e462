// Package indexlog wraps go.uber.org/zap for the index core's event loop.
// The chain node binaries in this repo log with bare fmt.Fprintf
// (cmd/rubin-node/main.go); the index core is a long-running daemon
// component in the shape of this corpus's service repos
// (jitenkr2030-.../services/*), which log through zap, so it is adopted
// here instead of carrying the node binaries' ad hoc stream-writer idiom
// into a component that runs unattended.
package indexlog

import "go.uber.org/zap"

// New returns a production JSON logger. Callers that want a different
// sink (tests, a CLI's pretty-printer) construct their own *zap.Logger and
// pass it to IndexDB directly instead of calling New.
func New() (*zap.Logger, error) {
	return zap.NewProduction()
}

// Nop returns a logger that discards everything, used by tests that don't
// assert on log output (mirrors zap.NewNop(), the corpus's own lightweight
// test-logger convention).
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Structured log field names. indexdb's event handlers use FieldHeight; the
// others are not referenced in this module.
const (
	FieldHeight     = "height"
	FieldHash       = "hash"
	FieldReorgDepth = "reorg_depth"
	FieldEvent      = "event"
)
