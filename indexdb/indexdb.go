// Package indexdb is the coordinator of spec ยง4.5: it owns the single
// exclusion lock, the in-memory IndexState cursor, the bootstrap/catch-up
// scan machinery, and the connect/disconnect/reset state machine that turns
// chainsrc.Client events into atomically-batched plugin writes. Grounded on
// this repo's own node/sync.go (RWMutex-guarded state plus
// snapshot/rollback) and node/p2p_runtime.go (unsubscribe-then-drain
// teardown, done here in Close with a sync.WaitGroup).
package indexdb

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"rubin.dev/indexer/chainsrc"
	"rubin.dev/indexer/index"
	"rubin.dev/indexer/indexerr"
	"rubin.dev/indexer/indexlog"
	"rubin.dev/indexer/keys"
	"rubin.dev/indexer/kvstore"
)

// errBacklog bounds the Errors() channel; emitError never blocks the
// exclusion lock holder on a slow or absent consumer.
const errBacklog = 64

// Options configures Open. NetworkMagic is compared against (or recorded
// into) the store's "O" record; a mismatch is fatal (spec ยง7).
type Options struct {
	NetworkMagic uint32
	Logger       *zap.Logger
}

// Stats is a snapshot of the persisted cursor, safe to read concurrently
// with the event handlers.
type Stats struct {
	StartHeight uint32
	StartHash   chainhash.Hash
	Height      uint32
}

// IndexDB is the running index engine: one backing Store, one chain Client,
// and the ordered list of Indexer plugins applied to every block.
type IndexDB struct {
	store   kvstore.Store
	client  chainsrc.Client
	plugins []index.Indexer
	log     *zap.Logger

	mu    sync.Mutex
	state IndexState

	unsubscribe func()
	wg          sync.WaitGroup
	errc        chan error
}

var _ chainsrc.Handler = (*IndexDB)(nil)

// Open verifies the schema and network tags, loads or bootstraps
// IndexState, catches up to the client's current chain, and subscribes for
// further events (spec ยง4.5 "Open").
func Open(store kvstore.Store, client chainsrc.Client, opts Options, plugins ...index.Indexer) (*IndexDB, error) {
	log := opts.Logger
	if log == nil {
		log = indexlog.Nop()
	}

	if err := store.Verify(keys.SchemaVersionKey(), schemaTag, schemaVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", indexerr.ErrSchemaMismatch, err)
	}
	if err := verifyNetwork(store, opts.NetworkMagic); err != nil {
		return nil, err
	}

	d := &IndexDB{
		store:   store,
		client:  client,
		plugins: plugins,
		log:     log,
		errc:    make(chan error, errBacklog),
	}

	d.mu.Lock()
	err := d.syncNode()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	d.unsubscribe = client.Subscribe(d)
	return d, nil
}

func verifyNetwork(store kvstore.Store, magic uint32) error {
	existing, ok, err := store.Get(keys.NetworkMagicKey())
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	if !ok {
		b := store.NewBatch()
		b.Put(keys.NetworkMagicKey(), keys.EncodeNetworkMagic(magic))
		if err := b.Write(); err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
		}
		return nil
	}
	got, err := keys.DecodeNetworkMagic(existing)
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	if got != magic {
		return fmt.Errorf("%w: store has %#x, configured %#x", indexerr.ErrNetworkMismatch, got, magic)
	}
	return nil
}

// Close unsubscribes, waits for any in-flight handler call to finish, and
// closes the backing store. Close does not itself flush anything: every
// commit is already durable the moment setTip's Write returns.
func (d *IndexDB) Close() error {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	d.wg.Wait()
	return d.store.Close()
}

// Errors delivers asynchronous error events (spec ยง4.5): a KV or client
// failure inside an event handler is both returned to the caller (the
// producer, in a synchronous client such as chainsrctest.Fake) and emitted
// here for an operator-facing consumer that isn't on that call stack.
func (d *IndexDB) Errors() <-chan error { return d.errc }

// Stats returns the current persisted cursor.
func (d *IndexDB) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{StartHeight: d.state.StartHeight, StartHash: d.state.StartHash, Height: d.state.Height}
}

// Rescan forces a full re-derivation of every indexer's records from
// fromHeight forward against the client's current canonical chain, then
// advances startHeight/startHash to fromHeight (spec ยง4.5 "markState",
// a supplemented operator entry point beyond the steady-state event loop).
func (d *IndexDB) Rescan(fromHeight uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fromHeight > d.state.Height {
		return fmt.Errorf("indexdb: rescan height %d is beyond indexed tip %d", fromHeight, d.state.Height)
	}
	if err := d.scanLocked(fromHeight); err != nil {
		d.emitError(err)
		return err
	}
	if err := d.markStateLocked(fromHeight); err != nil {
		d.emitError(err)
		return err
	}
	return nil
}

func (d *IndexDB) markStateLocked(height uint32) error {
	hashBytes, ok, err := d.store.Get(keys.HeightKey(height))
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	if !ok {
		return fmt.Errorf("%w: markState: missing heightmap entry at %d", indexerr.ErrInvariantViolation, height)
	}
	var hash chainhash.Hash
	copy(hash[:], hashBytes)

	next := d.state
	next.StartHeight = height
	next.StartHash = hash

	b := d.store.NewBatch()
	b.Put(keys.IndexStateKey(), EncodeState(next))
	if err := b.Write(); err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	d.state = next
	return nil
}

func (d *IndexDB) emitError(err error) {
	if d.log != nil {
		d.log.Error("index core error", zap.Error(err))
	}
	select {
	case d.errc <- err:
	default:
	}
}

// ---- event handlers (chainsrc.Handler) ----

func (d *IndexDB) OnConnect(entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error {
	d.wg.Add(1)
	defer d.wg.Done()
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case entry.Height() == d.state.Height+1:
		return d.indexAndAdvance(entry, block, view)
	case entry.Height() == d.state.Height:
		d.log.Warn("idempotent tip replay", zap.Uint32(indexlog.FieldHeight, entry.Height()))
		return d.indexAndAdvance(entry, block, view)
	default:
		if entry.Height() < d.state.Height {
			d.log.Warn("connect below tip, triggering scan",
				zap.Uint32(indexlog.FieldHeight, entry.Height()))
		} else {
			d.log.Warn("connect leaves a gap, triggering scan",
				zap.Uint32(indexlog.FieldHeight, entry.Height()))
		}
		if err := d.scanLocked(d.state.Height); err != nil {
			d.emitError(err)
			return err
		}
		return nil
	}
}

// indexAndAdvance applies every plugin's IndexBlock for one block into a
// single batch and commits it together with the tip advance (spec ยง4.5:
// "setTip is thus the commit point").
func (d *IndexDB) indexAndAdvance(entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error {
	b := d.store.NewBatch()
	for _, p := range d.plugins {
		gb := index.NewGuardedBatch(b, p.Prefixes(), p.Name())
		if err := p.IndexBlock(gb, entry, block, view); err != nil {
			e := fmt.Errorf("%w: %s.IndexBlock: %v", indexerr.ErrInvariantViolation, p.Name(), err)
			d.emitError(e)
			return e
		}
		if v := gb.Violation(); v != nil {
			e := fmt.Errorf("%w: %v", indexerr.ErrInvariantViolation, v)
			d.emitError(e)
			return e
		}
	}
	if err := d.setTip(b, TipRef{Height: entry.Height(), Hash: entry.Hash()}); err != nil {
		d.emitError(err)
		return err
	}
	return nil
}

func (d *IndexDB) OnDisconnect(entry chainsrc.Entry, block chainsrc.Block, view chainsrc.View) error {
	d.wg.Add(1)
	defer d.wg.Done()
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.Height() == 0 {
		err := fmt.Errorf("%w: disconnect at genesis", indexerr.ErrBadDisconnect)
		d.emitError(err)
		return err
	}
	if entry.Height() != d.state.Height {
		err := fmt.Errorf("%w: disconnect height %d does not match tip %d",
			indexerr.ErrBadDisconnect, entry.Height(), d.state.Height)
		d.emitError(err)
		return err
	}

	prevHeight := entry.Height() - 1
	prevHashBytes, ok, err := d.store.Get(keys.HeightKey(prevHeight))
	if err != nil {
		e := fmt.Errorf("%w: %v", indexerr.ErrStore, err)
		d.emitError(e)
		return e
	}
	if !ok {
		e := fmt.Errorf("%w: disconnect: missing heightmap entry at %d", indexerr.ErrInvariantViolation, prevHeight)
		d.emitError(e)
		return e
	}
	var prevHash chainhash.Hash
	copy(prevHash[:], prevHashBytes)

	b := d.store.NewBatch()
	for _, p := range d.plugins {
		gb := index.NewGuardedBatch(b, p.Prefixes(), p.Name())
		if err := p.UnindexBlock(gb, entry, block, view); err != nil {
			e := fmt.Errorf("%w: %s.UnindexBlock: %v", indexerr.ErrInvariantViolation, p.Name(), err)
			d.emitError(e)
			return e
		}
		if v := gb.Violation(); v != nil {
			e := fmt.Errorf("%w: %v", indexerr.ErrInvariantViolation, v)
			d.emitError(e)
			return e
		}
	}
	if err := d.setTip(b, TipRef{Height: prevHeight, Hash: prevHash}); err != nil {
		d.emitError(err)
		return err
	}
	return nil
}

func (d *IndexDB) OnReset(tip chainsrc.Entry) error {
	d.wg.Add(1)
	defer d.wg.Done()
	d.mu.Lock()
	defer d.mu.Unlock()

	if tip == nil {
		err := fmt.Errorf("%w: reset with nil tip", indexerr.ErrInvariantViolation)
		d.emitError(err)
		return err
	}
	target := tip.Height()
	if target > d.state.Height {
		target = d.state.Height
	}
	if err := d.scanLocked(target); err != nil {
		d.emitError(err)
		return err
	}
	return nil
}

// OnTx is a no-op: neither TxIndexer nor AddrIndexer derives anything from
// unconfirmed transactions (spec ยง4.1 "tx(tx) ... no-op for the on-chain
// indexes").
func (d *IndexDB) OnTx(chainsrc.Tx) error { return nil }

// ---- tip-tracking core ----

// setTip is the single commit point (spec ยง4.5): it mutates a clone of the
// in-memory state, appends the HeightMap/IndexState writes to the
// already-populated batch, and only assigns the clone back once Write
// succeeds, so a failed commit never leaves in-memory state ahead of disk.
func (d *IndexDB) setTip(b kvstore.Batch, tip TipRef) error {
	next := d.state

	switch {
	case tip.Height == d.state.Height+1:
		next.Height = tip.Height
	case tip.Height == d.state.Height:
		// idempotent replay of the current tip
	case tip.Height < d.state.Height:
		for k := tip.Height + 1; k <= d.state.Height; k++ {
			b.Delete(keys.HeightKey(k))
		}
		next.Height = tip.Height
	default:
		return fmt.Errorf("%w: setTip: forbidden advance from height %d to %d, caller must scan",
			indexerr.ErrInvariantViolation, d.state.Height, tip.Height)
	}

	if tip.Height < next.StartHeight {
		next.StartHeight = tip.Height
		next.StartHash = tip.Hash
	}

	b.Put(keys.HeightKey(tip.Height), tip.Hash[:])
	b.Put(keys.IndexStateKey(), EncodeState(next))
	if err := b.Write(); err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	d.state = next
	return nil
}

// rollback unwinds one block at a time from the current tip down to (but
// not including) targetHeight, calling each plugin's UnindexBlock with a
// nil View. A nil View is the only option here: unlike a live disconnect
// event, a catch-up rollback has no producer-supplied CoinView for blocks
// it is unwinding, so it relies on the same "skip input-side edges, let a
// later live connect restore them" resolution AddrIndexer already applies
// for catch-up forward scans (spec ยง4.5, ยง9). Per-block application (rather
// than a literal key-range delete) is used because TxIndexer/AddrIndexer
// keys are not height-ordered; every Put/Delete it performs is idempotent,
// so re-running it after a crash mid-rollback is safe.
func (d *IndexDB) rollback(targetHeight uint32) error {
	for d.state.Height > targetHeight {
		cur := d.state.Height

		hashBytes, ok, err := d.store.Get(keys.HeightKey(cur))
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
		}
		if !ok {
			return fmt.Errorf("%w: rollback: missing heightmap entry at %d", indexerr.ErrInvariantViolation, cur)
		}
		var hash chainhash.Hash
		copy(hash[:], hashBytes)

		entry, ok, err := d.client.GetEntry(chainsrc.RefByHash(hash))
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
		}
		if !ok {
			return fmt.Errorf("%w: rollback: client no longer recognizes block %s at height %d",
				indexerr.ErrClient, hash, cur)
		}
		block, err := d.client.GetBlock(hash)
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
		}

		b := d.store.NewBatch()
		for _, p := range d.plugins {
			gb := index.NewGuardedBatch(b, p.Prefixes(), p.Name())
			if err := p.UnindexBlock(gb, entry, block, nil); err != nil {
				return fmt.Errorf("%w: %s.UnindexBlock: %v", indexerr.ErrInvariantViolation, p.Name(), err)
			}
			if v := gb.Violation(); v != nil {
				return fmt.Errorf("%w: %v", indexerr.ErrInvariantViolation, v)
			}
		}

		var prevHash chainhash.Hash
		if cur > 0 {
			prevBytes, ok, err := d.store.Get(keys.HeightKey(cur - 1))
			if err != nil {
				return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
			}
			if ok {
				copy(prevHash[:], prevBytes)
			}
		}
		if err := d.setTip(b, TipRef{Height: cur - 1, Hash: prevHash}); err != nil {
			return err
		}
	}
	return nil
}

// scanLocked rolls back to height, then replays forward from there to the
// client's current tip using GetEntry/GetNext, indexing with a nil View for
// the same reason rollback does (spec ยง4.5 "scan").
func (d *IndexDB) scanLocked(height uint32) error {
	if err := d.rollback(height); err != nil {
		return err
	}

	entry, ok, err := d.client.GetEntry(chainsrc.RefByHeight(height))
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
	}
	if !ok {
		return fmt.Errorf("%w: scan: ancestor height %d not known to client", indexerr.ErrInvariantViolation, height)
	}

	for {
		next, ok, err := d.client.GetNext(entry)
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
		}
		if !ok {
			break
		}
		block, err := d.client.GetBlock(next.Hash())
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
		}

		b := d.store.NewBatch()
		for _, p := range d.plugins {
			gb := index.NewGuardedBatch(b, p.Prefixes(), p.Name())
			if err := p.IndexBlock(gb, next, block, nil); err != nil {
				return fmt.Errorf("%w: %s.IndexBlock: %v", indexerr.ErrInvariantViolation, p.Name(), err)
			}
			if v := gb.Violation(); v != nil {
				return fmt.Errorf("%w: %v", indexerr.ErrInvariantViolation, v)
			}
		}
		if err := d.setTip(b, TipRef{Height: next.Height(), Hash: next.Hash()}); err != nil {
			return err
		}
		entry = next
	}
	return nil
}

// syncNode loads or bootstraps IndexState (syncState) and then walks the
// HeightMap backward until the client still recognizes a hash, scanning
// forward from there (syncChain) - spec ยง4.5's two-part "Open" sequence.
func (d *IndexDB) syncNode() error {
	if err := d.syncState(); err != nil {
		return err
	}
	return d.syncChain()
}

// syncState loads the persisted "R" record, or bootstraps a fresh store by
// recording the client's full current hash range into the HeightMap and
// pinning IndexState to the client's current tip (spec ยง4.5). A store that
// has R but is missing h[0] (an older layout, or a crash between writing R
// and the HeightMap) is repaired by migrateState rather than re-bootstrapped,
// since R's height/hash must be preserved.
func (d *IndexDB) syncState() error {
	raw, ok, err := d.store.Get(keys.IndexStateKey())
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	if !ok {
		tip, err := d.client.GetTip()
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
		}
		hashes, err := d.client.GetHashes(0, tip.Height())
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
		}
		b := d.store.NewBatch()
		for i, h := range hashes {
			b.Put(keys.HeightKey(uint32(i)), h[:])
		}
		st := IndexState{StartHeight: tip.Height(), StartHash: tip.Hash(), Height: tip.Height()}
		b.Put(keys.IndexStateKey(), EncodeState(st))
		if err := b.Write(); err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
		}
		d.state = st
		return nil
	}

	st, err := DecodeState(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	_, hasGenesis, err := d.store.Get(keys.HeightKey(0))
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	if !hasGenesis {
		if err := d.migrateState(st); err != nil {
			return err
		}
	}
	d.state = st
	return nil
}

func (d *IndexDB) migrateState(st IndexState) error {
	hashes, err := d.client.GetHashes(0, st.Height)
	if err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
	}
	b := d.store.NewBatch()
	for i, h := range hashes {
		b.Put(keys.HeightKey(uint32(i)), h[:])
	}
	if err := b.Write(); err != nil {
		return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
	}
	return nil
}

// syncChain walks the HeightMap backward from the loaded state's height
// until the client still recognizes the recorded hash - the common
// ancestor - then scans forward from there (spec ยง4.5). Height 0 must
// always be recognized; if it is not, the client and the store disagree
// about which network's genesis this is, which Open's "O" check
// (verifyNetwork) runs before this to catch, so reaching this point is an
// invariant violation.
func (d *IndexDB) syncChain() error {
	h := d.state.Height
	for {
		hashBytes, ok, err := d.store.Get(keys.HeightKey(h))
		if err != nil {
			return fmt.Errorf("%w: %v", indexerr.ErrStore, err)
		}
		if ok {
			var hash chainhash.Hash
			copy(hash[:], hashBytes)
			_, known, err := d.client.GetEntry(chainsrc.RefByHash(hash))
			if err != nil {
				return fmt.Errorf("%w: %v", indexerr.ErrClient, err)
			}
			if known {
				break
			}
		}
		if h == 0 {
			return fmt.Errorf("%w: syncChain: genesis not recognized by client", indexerr.ErrInvariantViolation)
		}
		h--
	}
	return d.scanLocked(h)
}
