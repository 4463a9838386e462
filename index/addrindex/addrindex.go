// Package addrindex implements the AddrIndexer of spec ยง4.4: address hash ->
// tx-hash set (AddrTxEdge) and address hash -> unspent-outpoint set
// (AddrCoinEdge).
package addrindex

import (
	"fmt"

	"rubin.dev/indexer/chainsrc"
	"rubin.dev/indexer/index"
	"rubin.dev/indexer/indexerr"
	"rubin.dev/indexer/keys"
)

const Name = "addr"

// Indexer implements index.Indexer.
type Indexer struct{}

var _ index.Indexer = Indexer{}

func (Indexer) Name() string { return Name }

func (Indexer) Prefixes() []byte {
	return []byte{byte(keys.TagAddrTxEdge), byte(keys.TagAddrCoinEdge)}
}

// touchedAddresses is addrhash(tx, view) from spec ยง4.4: output addresses
// union input addresses (resolved through view for spent outputs). When
// view is nil (a catch-up scan with no producer-supplied view, spec ยง4.5)
// input-side resolution is skipped entirely; the caller is responsible for
// also skipping the corresponding AddrCoinEdge deletion/restoration in that
// case, which IndexBlock/UnindexBlock below do.
func touchedAddresses(tx chainsrc.Tx, view chainsrc.View) (map[keys.Address]struct{}, error) {
	addrs := make(map[keys.Address]struct{})
	for _, out := range tx.Outputs() {
		if a, ok := out.AddressHash(); ok {
			addrs[a] = struct{}{}
		}
	}
	if tx.IsCoinbase() || view == nil {
		return addrs, nil
	}
	for _, in := range tx.Inputs() {
		coin, ok := view.GetOutput(in.PrevTxHash(), in.PrevVout())
		if !ok {
			return nil, fmt.Errorf("%w: addrindex: missing view output for input (%s,%d)",
				indexerr.ErrInvariantViolation, in.PrevTxHash(), in.PrevVout())
		}
		if a, ok := coin.AddressHash(); ok {
			addrs[a] = struct{}{}
		}
	}
	return addrs, nil
}

func (Indexer) IndexBlock(b index.Batch, entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error {
	for _, tx := range block.Txs() {
		h := tx.Hash()

		addrs, err := touchedAddresses(tx, view)
		if err != nil {
			return err
		}
		for a := range addrs {
			b.Put(keys.AddrTxKey(a, h), nil)
		}

		if !tx.IsCoinbase() && view != nil {
			for _, in := range tx.Inputs() {
				coin, ok := view.GetOutput(in.PrevTxHash(), in.PrevVout())
				if !ok {
					return fmt.Errorf("%w: addrindex: missing view output for input (%s,%d)",
						indexerr.ErrInvariantViolation, in.PrevTxHash(), in.PrevVout())
				}
				if a, ok := coin.AddressHash(); ok {
					b.Delete(keys.AddrCoinKey(a, in.PrevTxHash(), in.PrevVout()))
				}
			}
		}

		for _, out := range tx.Outputs() {
			if a, ok := out.AddressHash(); ok {
				b.Put(keys.AddrCoinKey(a, h, out.Index()), nil)
			}
		}
	}
	return nil
}

// UnindexBlock is the exact inverse of IndexBlock: deletes where IndexBlock
// put, puts where IndexBlock deleted. In particular C[a,ph,pi] is re-added
// for every spent input so a prior-block disconnection leaves a consistent
// coin set (spec ยง4.4).
func (Indexer) UnindexBlock(b index.Batch, entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error {
	for _, tx := range block.Txs() {
		h := tx.Hash()

		addrs, err := touchedAddresses(tx, view)
		if err != nil {
			return err
		}

		if !tx.IsCoinbase() && view != nil {
			for _, in := range tx.Inputs() {
				coin, ok := view.GetOutput(in.PrevTxHash(), in.PrevVout())
				if !ok {
					return fmt.Errorf("%w: addrindex: missing view output for input (%s,%d)",
						indexerr.ErrInvariantViolation, in.PrevTxHash(), in.PrevVout())
				}
				if a, ok := coin.AddressHash(); ok {
					b.Put(keys.AddrCoinKey(a, in.PrevTxHash(), in.PrevVout()), nil)
				}
			}
		}

		for a := range addrs {
			b.Delete(keys.AddrTxKey(a, h))
		}

		for _, out := range tx.Outputs() {
			if a, ok := out.AddressHash(); ok {
				b.Delete(keys.AddrCoinKey(a, h, out.Index()))
			}
		}
	}
	return nil
}
