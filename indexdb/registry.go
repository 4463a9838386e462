package indexdb

import (
	"fmt"

	"rubin.dev/indexer/index"
	"rubin.dev/indexer/index/addrindex"
	"rubin.dev/indexer/index/txindex"
)

// BuildPlugins resolves configured indexer identifiers (spec ยง6
// "indexers: ordered list of plugin identifiers to load") into concrete
// index.Indexer values, in the given order. An unknown identifier is fatal
// at construction rather than silently skipped.
func BuildPlugins(identifiers []string) ([]index.Indexer, error) {
	out := make([]index.Indexer, 0, len(identifiers))
	for _, id := range identifiers {
		switch id {
		case txindex.Name:
			out = append(out, txindex.Indexer{})
		case addrindex.Name:
			out = append(out, addrindex.Indexer{})
		default:
			return nil, fmt.Errorf("indexdb: unknown indexer identifier %q", id)
		}
	}
	return out, nil
}
