package chainsrc

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// NullClient satisfies Client with no events and empty queries (spec ยง4.1:
// "used for isolated tests"). It never fires Handler callbacks, and GetTip
// always fails, so indexdb.Open against it fails during bootstrap.
type NullClient struct{}

var _ Client = NullClient{}

func (NullClient) Subscribe(Handler) func() { return func() {} }

func (NullClient) GetEntry(EntryRef) (Entry, bool, error) { return nil, false, nil }

func (NullClient) GetBlock(hash chainhash.Hash) (Block, error) {
	return nil, fmt.Errorf("chainsrc: NullClient has no block %s", hash)
}

func (NullClient) GetNext(Entry) (Entry, bool, error) { return nil, false, nil }

func (NullClient) GetHashes(start, end uint32) ([]chainhash.Hash, error) {
	return nil, nil
}

func (NullClient) GetTip() (Entry, error) {
	return nil, fmt.Errorf("chainsrc: NullClient has no tip")
}
