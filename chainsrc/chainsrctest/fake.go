// Package chainsrctest provides a hand-rolled in-memory chain producer used
// by this repo's own test suites (index/txindex, index/addrindex, indexdb).
// It plays the same role chainsrc.NullClient plays for isolated tests, but
// additionally tracks a real canonical chain and replays connect/disconnect
// events so the reorg and rescan scenarios in spec ยง8 can be driven
// end-to-end without a real node.
package chainsrctest

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"rubin.dev/indexer/chainsrc"
	"rubin.dev/indexer/keys"
)

// Output implements chainsrc.TxOutput.
type Output struct {
	Idx  uint32
	Val  uint64
	Addr keys.Address
	Has  bool
}

func (o Output) Index() uint32                        { return o.Idx }
func (o Output) Value() uint64                         { return o.Val }
func (o Output) AddressHash() (keys.Address, bool)     { return o.Addr, o.Has }

// Input implements chainsrc.TxInput.
type Input struct {
	PrevHash chainhash.Hash
	PrevVout uint32
}

func (i Input) PrevTxHash() chainhash.Hash { return i.PrevHash }
func (i Input) PrevVout() uint32           { return i.PrevVout }

// Tx implements chainsrc.Tx.
type Tx struct {
	H        chainhash.Hash
	Coinbase bool
	In       []Input
	Out      []Output
	Raw      []byte
}

func (t Tx) Hash() chainhash.Hash         { return t.H }
func (t Tx) IsCoinbase() bool             { return t.Coinbase }
func (t Tx) Bytes() []byte                { return t.Raw }
func (t Tx) Inputs() []chainsrc.TxInput {
	out := make([]chainsrc.TxInput, len(t.In))
	for i, in := range t.In {
		out[i] = in
	}
	return out
}
func (t Tx) Outputs() []chainsrc.TxOutput {
	out := make([]chainsrc.TxOutput, len(t.Out))
	for i, o := range t.Out {
		out[i] = o
	}
	return out
}

// Block implements chainsrc.Block.
type Block struct {
	H   chainhash.Hash
	Ht  uint32
	T   uint32
	Txs_ []Tx
}

func (b Block) Hash() chainhash.Hash { return b.H }
func (b Block) Height() uint32       { return b.Ht }
func (b Block) Time() uint32         { return b.T }
func (b Block) Txs() []chainsrc.Tx {
	out := make([]chainsrc.Tx, len(b.Txs_))
	for i, t := range b.Txs_ {
		out[i] = t
	}
	return out
}

// Entry implements chainsrc.Entry.
type Entry struct {
	H    chainhash.Hash
	Ht   uint32
	T    uint32
	Prev_ chainhash.Hash
}

func (e Entry) Hash() chainhash.Hash   { return e.H }
func (e Entry) Height() uint32         { return e.Ht }
func (e Entry) Time() uint32           { return e.T }
func (e Entry) Prev() chainhash.Hash   { return e.Prev_ }

func EntryOf(b Block, prev chainhash.Hash) Entry {
	return Entry{H: b.H, Ht: b.Ht, T: b.T, Prev_: prev}
}

// Coin implements chainsrc.Coin.
type Coin struct {
	Addr keys.Address
	Has  bool
}

func (c Coin) AddressHash() (keys.Address, bool) { return c.Addr, c.Has }

type outpoint struct {
	hash chainhash.Hash
	vout uint32
}

// View implements chainsrc.View over an explicit outpoint->Coin map.
type View struct {
	coins map[outpoint]Coin
}

func NewView() *View { return &View{coins: make(map[outpoint]Coin)} }

func (v *View) Set(txhash chainhash.Hash, vout uint32, c Coin) {
	v.coins[outpoint{txhash, vout}] = c
}

func (v *View) GetOutput(txhash chainhash.Hash, vout uint32) (chainsrc.Coin, bool) {
	if v == nil {
		return nil, false
	}
	c, ok := v.coins[outpoint{txhash, vout}]
	if !ok {
		return nil, false
	}
	return c, true
}

// Fake is a minimal, fully in-memory chainsrc.Client. Tests build a chain
// with Append/Reorg and the Fake replays the corresponding
// connect/disconnect/reset events to whatever Handler last subscribed,
// exactly as spec ยง4.1 describes (events delivered asynchronously in
// practice; synchronously here since there is only ever one goroutine in
// these tests).
type Fake struct {
	mu      sync.Mutex
	handler chainsrc.Handler
	chain   []Block // index i is height i; chain[0] is genesis
}

var _ chainsrc.Client = (*Fake)(nil)

func New() *Fake { return &Fake{} }

func (f *Fake) Subscribe(h chainsrc.Handler) func() {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

func (f *Fake) entryAt(height uint32) (Entry, bool) {
	if int(height) >= len(f.chain) {
		return Entry{}, false
	}
	b := f.chain[height]
	var prev chainhash.Hash
	if height > 0 {
		prev = f.chain[height-1].H
	}
	return EntryOf(b, prev), true
}

func (f *Fake) GetEntry(ref chainsrc.EntryRef) (chainsrc.Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.ByHash {
		for h, b := range f.chain {
			if b.H == ref.Hash {
				e, _ := f.entryAt(uint32(h))
				return e, true, nil
			}
		}
		return nil, false, nil
	}
	e, ok := f.entryAt(ref.Height)
	if !ok {
		return nil, false, nil
	}
	return e, true, nil
}

func (f *Fake) GetBlock(hash chainhash.Hash) (chainsrc.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.chain {
		if b.H == hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("chainsrctest: no block %s", hash)
}

func (f *Fake) GetNext(entry chainsrc.Entry) (chainsrc.Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entryAt(entry.Height() + 1)
	if !ok {
		return nil, false, nil
	}
	return e, true, nil
}

func (f *Fake) GetHashes(start, end uint32) ([]chainhash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(end) >= len(f.chain) {
		return nil, fmt.Errorf("chainsrctest: end height %d beyond tip %d", end, len(f.chain)-1)
	}
	out := make([]chainhash.Hash, 0, end-start+1)
	for h := start; h <= end; h++ {
		out = append(out, f.chain[h].H)
	}
	return out, nil
}

func (f *Fake) GetTip() (chainsrc.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chain) == 0 {
		return nil, fmt.Errorf("chainsrctest: empty chain")
	}
	e, _ := f.entryAt(uint32(len(f.chain) - 1))
	return e, nil
}

// Seed installs an initial canonical chain (e.g. genesis..H) without firing
// any events, for bootstrap scenarios where the core reads GetHashes/
// GetEntry before ever seeing a connect event.
func (f *Fake) Seed(blocks ...Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chain = append(f.chain, blocks...)
}

// Append extends the canonical chain by one block and fires OnConnect.
func (f *Fake) Append(b Block, view chainsrc.View) error {
	f.mu.Lock()
	var prev chainhash.Hash
	if len(f.chain) > 0 {
		prev = f.chain[len(f.chain)-1].H
	}
	f.chain = append(f.chain, b)
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.OnConnect(EntryOf(b, prev), b, view)
}

// DisconnectTip removes the tip block and fires OnDisconnect.
func (f *Fake) DisconnectTip(view chainsrc.View) error {
	f.mu.Lock()
	if len(f.chain) == 0 {
		f.mu.Unlock()
		return fmt.Errorf("chainsrctest: empty chain")
	}
	tip := f.chain[len(f.chain)-1]
	var prev chainhash.Hash
	if len(f.chain) > 1 {
		prev = f.chain[len(f.chain)-2].H
	}
	f.chain = f.chain[:len(f.chain)-1]
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.OnDisconnect(EntryOf(tip, prev), tip, view)
}

// Reorg disconnects depth blocks from the tip then appends newBlocks,
// firing one OnDisconnect per removed block followed by one OnConnect per
// added block - the exact event shape spec ยง4.1/ยง8 describes for a reorg.
func (f *Fake) Reorg(depth int, views []chainsrc.View, newBlocks []Block, newViews []chainsrc.View) error {
	for i := 0; i < depth; i++ {
		var v chainsrc.View
		if i < len(views) {
			v = views[i]
		}
		if err := f.DisconnectTip(v); err != nil {
			return err
		}
	}
	for i, b := range newBlocks {
		var v chainsrc.View
		if i < len(newViews) {
			v = newViews[i]
		}
		if err := f.Append(b, v); err != nil {
			return err
		}
	}
	return nil
}

// Reset truncates the canonical chain down to tipHeight and fires OnReset.
func (f *Fake) Reset(tipHeight uint32) error {
	f.mu.Lock()
	if int(tipHeight)+1 > len(f.chain) {
		f.mu.Unlock()
		return fmt.Errorf("chainsrctest: reset height %d beyond chain", tipHeight)
	}
	f.chain = f.chain[:tipHeight+1]
	h := f.handler
	tip, _ := f.entryAt(tipHeight)
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.OnReset(tip)
}
