// Package index defines the pluggable indexer contract of spec ยง4.2: each
// plugin computes forward/inverse key-value mutations for one block and
// records them into a batch handle it does not own. Concrete plugins live
// in index/txindex and index/addrindex.
package index

import (
	"fmt"

	"rubin.dev/indexer/chainsrc"
	"rubin.dev/indexer/kvstore"
)

// Batch is the write surface an Indexer receives. It is a restricted view
// of kvstore.Batch - Write is deliberately not exposed here, since only
// IndexDB decides when the shared batch commits (spec ยง4.2: "a plugin does
// NOT own a batch").
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// Indexer is a pluggable index over chain data. IndexBlock/UnindexBlock
// must be exact inverses of each other given the same (entry, block, view)
// (spec ยง4.2's roundtrip requirement, tested in spec ยง8 property 2).
type Indexer interface {
	Name() string

	// Prefixes lists the single-byte key tags this indexer owns. IndexDB
	// enforces that every Put/Delete the plugin performs falls within one
	// of these prefixes (spec ยง4.2: "IndexDB enforces that plugins do not
	// write outside their declared prefixes").
	Prefixes() []byte

	IndexBlock(b Batch, entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error
	UnindexBlock(b Batch, entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error
}

// GuardedBatch wraps a kvstore.Batch and rejects (by recording, not
// panicking - a misbehaving plugin is an operational defect the core must
// surface as an error, not crash on) any key outside allowed prefixes.
type GuardedBatch struct {
	underlying kvstore.Batch
	allowed    []byte
	indexer    string
	violation  error
}

// NewGuardedBatch builds a Batch view of underlying scoped to allowed
// prefixes, attributing any violation to indexer by name for diagnostics.
func NewGuardedBatch(underlying kvstore.Batch, allowed []byte, indexer string) *GuardedBatch {
	return &GuardedBatch{underlying: underlying, allowed: allowed, indexer: indexer}
}

func (g *GuardedBatch) permitted(key []byte) bool {
	if len(key) == 0 {
		return false
	}
	for _, t := range g.allowed {
		if key[0] == t {
			return true
		}
	}
	return false
}

func (g *GuardedBatch) Put(key, value []byte) {
	if !g.permitted(key) {
		if g.violation == nil {
			g.violation = fmt.Errorf("index: plugin %q wrote outside its declared prefixes: key %x", g.indexer, key)
		}
		return
	}
	g.underlying.Put(key, value)
}

func (g *GuardedBatch) Delete(key []byte) {
	if !g.permitted(key) {
		if g.violation == nil {
			g.violation = fmt.Errorf("index: plugin %q deleted outside its declared prefixes: key %x", g.indexer, key)
		}
		return
	}
	g.underlying.Delete(key)
}

// Violation returns the first prefix violation observed, if any.
func (g *GuardedBatch) Violation() error { return g.violation }
