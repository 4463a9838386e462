// Package indexerr defines the error taxonomy of spec ยง7, following this
// repo's own wrapped-sentinel idiom (node/store's "%w"-wrapped fmt.Errorf
// calls) instead of introducing a third-party errors library: every
// concrete error wraps one of the sentinels below so callers can classify
// with errors.Is while still getting a specific message.
package indexerr

import "errors"

var (
	// ErrNetworkMismatch: O differs from configured magic. Fatal at open.
	ErrNetworkMismatch = errors.New("indexerr: network magic mismatch")

	// ErrSchemaMismatch: V differs. Fatal at open.
	ErrSchemaMismatch = errors.New("indexerr: schema mismatch")

	// ErrBadDisconnect: disconnect at genesis or height mismatch. Fatal;
	// tip not advanced.
	ErrBadDisconnect = errors.New("indexerr: bad disconnect")

	// ErrInvariantViolation: missing view.getOutput for a non-coinbase
	// input, unexpected nil tip, or a forbidden tip.height > state.height+1
	// passed to setTip. Fatal; emitted as error.
	ErrInvariantViolation = errors.New("indexerr: invariant violation")

	// ErrStore: underlying KV I/O failure. Surfaced; commits are atomic so
	// no partial state is ever visible.
	ErrStore = errors.New("indexerr: store error")

	// ErrClient: chain producer query failed. Surfaced; tip is whatever was
	// last committed.
	ErrClient = errors.New("indexerr: client error")
)

// Fatal reports whether err belongs to one of the classes spec ยง7 marks
// fatal (the core refuses to advance the tip further once one occurs).
func Fatal(err error) bool {
	return errors.Is(err, ErrNetworkMismatch) ||
		errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrBadDisconnect) ||
		errors.Is(err, ErrInvariantViolation)
}
