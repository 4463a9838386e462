// Package chainsrc models the chain producer as an event source plus a
// read-only query surface (spec ยง4.1): the core's only window onto the
// chain it is indexing. Every type here is an interface - the index core
// never imports this repo's consensus.Tx/consensus.Block wire types, since
// spec ยง1 places transaction/block serialization out of the core's scope
// ("the core consumes opaque byte strings and typed hashes").
package chainsrc

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"rubin.dev/indexer/keys"
)

// Address aliases keys.Address so chain-producer adapters implementing
// TxOutput/Coin don't need to import the keys package directly.
type Address = keys.Address

// Entry is the producer's lightweight handle for a block.
type Entry interface {
	Hash() chainhash.Hash
	Height() uint32
	Time() uint32
	Prev() chainhash.Hash
}

// TxOutput is one output of a Tx.
type TxOutput interface {
	// Index is the output's position within its transaction (vout).
	Index() uint32
	Value() uint64
	// AddressHash returns the recipient address hash, if the output
	// script resolves to one (ok=false for unspendable/non-standard
	// outputs, which the core simply does not index).
	AddressHash() (addr Address, ok bool)
}

// TxInput is one input of a Tx.
type TxInput interface {
	PrevTxHash() chainhash.Hash
	PrevVout() uint32
}

// Tx is a confirmed or unconfirmed transaction as the core sees it: opaque
// raw bytes plus the structural bits the indexers need (hash, inputs,
// outputs, coinbase-ness).
type Tx interface {
	Hash() chainhash.Hash
	IsCoinbase() bool
	Inputs() []TxInput
	Outputs() []TxOutput
	// Bytes returns the producer's opaque serialization of this
	// transaction, embedded verbatim in TxIndexer's extended-tx record.
	Bytes() []byte
}

// Block is a producer-supplied block: header handle plus an ordered
// transaction list.
type Block interface {
	Hash() chainhash.Hash
	Height() uint32
	Time() uint32
	Txs() []Tx
}

// Coin is the output resolved for a spent outpoint (spec GLOSSARY "View /
// CoinView").
type Coin interface {
	AddressHash() (addr Address, ok bool)
}

// View resolves spent outputs for disconnection/input-side indexing. A nil
// View is passed during catch-up scans when the producer cannot supply one
// (spec ยง4.5); indexers must tolerate that by skipping input-side
// resolution rather than failing.
type View interface {
	GetOutput(txhash chainhash.Hash, vout uint32) (Coin, bool)
}

// EntryRef selects an Entry either by hash or by height, mirroring spec
// ยง4.1's polymorphic "getEntry(hashOrHeight)".
type EntryRef struct {
	Hash   chainhash.Hash
	Height uint32
	ByHash bool
}

func RefByHash(h chainhash.Hash) EntryRef { return EntryRef{Hash: h, ByHash: true} }
func RefByHeight(h uint32) EntryRef       { return EntryRef{Height: h} }

// Handler receives the chain producer's events, serialized by the core's
// single exclusion lock (spec ยง5): no two calls into a Handler ever
// overlap.
type Handler interface {
	OnConnect(entry Entry, block Block, view View) error
	OnDisconnect(entry Entry, block Block, view View) error
	OnReset(tip Entry) error
	OnTx(tx Tx) error
}

// Client is the chain producer adapter contract (spec ยง4.1).
type Client interface {
	// Subscribe registers h to receive events until the returned function
	// is called.
	Subscribe(h Handler) (unsubscribe func())

	GetEntry(ref EntryRef) (Entry, bool, error)
	GetBlock(hash chainhash.Hash) (Block, error)
	GetNext(entry Entry) (Entry, bool, error)
	// GetHashes returns the inclusive [start,end] range of canonical block
	// hashes. Used only for bootstrap (spec ยง4.1).
	GetHashes(start, end uint32) ([]chainhash.Hash, error)
	GetTip() (Entry, error)
}
