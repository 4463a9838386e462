package indexdb_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"rubin.dev/indexer/chainsrc/chainsrctest"
	"rubin.dev/indexer/indexdb"
	"rubin.dev/indexer/indexerr"
	"rubin.dev/indexer/indexlog"
	"rubin.dev/indexer/keys"
	"rubin.dev/indexer/kvstore/memstore"
)

func hashN(n byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = n
	return h
}

// blockAt builds a single-coinbase-tx block at height with the given hash,
// so none of these scenarios need to resolve a CoinView for spent inputs.
func blockAt(height uint32, hash chainhash.Hash) chainsrctest.Block {
	return chainsrctest.Block{
		H:  hash,
		Ht: height,
		T:  1_700_000_000 + height,
		Txs_: []chainsrctest.Tx{
			{H: hash, Coinbase: true, Raw: []byte{byte(height)}},
		},
	}
}

// TestConcreteScenarios drives a sequence of scenarios against one growing
// chain: bootstrap, idempotent tip replay, a gap that forces a scan, a
// one-block reorg, a depth-2 reorg delivered as live events, and a fatal
// genesis disconnect.
func TestConcreteScenarios(t *testing.T) {
	r := require.New(t)

	store := memstore.New()
	fake := chainsrctest.New()

	genesis := blockAt(0, hashN(0))
	fake.Seed(genesis)

	plugins, err := indexdb.BuildPlugins([]string{"tx", "addr"})
	r.NoError(err)

	db, err := indexdb.Open(store, fake, indexdb.Options{
		NetworkMagic: 0x1234,
		Logger:       indexlog.Nop(),
	}, plugins...)
	r.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	// Bootstrap: opening against a chain already at height 0 leaves the
	// engine caught up with nothing beyond genesis indexed.
	stats := db.Stats()
	r.Equal(uint32(0), stats.Height)
	r.Equal(uint32(0), stats.StartHeight)

	// Live connect, height 1.
	b1 := blockAt(1, hashN(1))
	r.NoError(fake.Append(b1, nil))
	r.Equal(uint32(1), db.Stats().Height)
	_, ok, err := store.Get(keys.TxKey(b1.Txs_[0].H))
	r.NoError(err)
	r.True(ok, "tx record for b1 must be indexed")

	// Idempotent replay of the current tip must not fail or move the tip.
	entry1 := chainsrctest.EntryOf(b1, hashN(0))
	r.NoError(db.OnConnect(entry1, b1, nil))
	r.Equal(uint32(1), db.Stats().Height)

	// Gap forces scan: the producer's chain is silently extended to height
	// 3, then a single connect event naming height 3 arrives directly.
	b2 := blockAt(2, hashN(2))
	b3 := blockAt(3, hashN(3))
	fake.Seed(b2, b3)
	entry3 := chainsrctest.EntryOf(b3, hashN(2))
	r.NoError(db.OnConnect(entry3, b3, nil))
	r.Equal(uint32(3), db.Stats().Height)
	_, ok, err = store.Get(keys.TxKey(b2.Txs_[0].H))
	r.NoError(err)
	r.True(ok, "scan triggered by the gap must have indexed b2")
	_, ok, err = store.Get(keys.TxKey(b3.Txs_[0].H))
	r.NoError(err)
	r.True(ok, "scan triggered by the gap must have indexed b3")

	// One-block reorg: disconnect the tip, then connect a replacement.
	r.NoError(fake.DisconnectTip(nil))
	r.Equal(uint32(2), db.Stats().Height)
	_, ok, _ = store.Get(keys.TxKey(b3.Txs_[0].H))
	r.False(ok, "disconnected block's tx record must be removed")

	b3alt := blockAt(3, hashN(30))
	r.NoError(fake.Append(b3alt, nil))
	r.Equal(uint32(3), db.Stats().Height)
	_, ok, err = store.Get(keys.TxKey(b3alt.Txs_[0].H))
	r.NoError(err)
	r.True(ok, "replacement block's tx record must be indexed")

	// Depth-2 reorg: two live disconnects then two connects replace b2 and
	// b3alt.
	b2n := blockAt(2, hashN(20))
	b3n := blockAt(3, hashN(31))
	r.NoError(fake.Reorg(2, nil, []chainsrctest.Block{b2n, b3n}, nil))
	r.Equal(uint32(3), db.Stats().Height)
	_, ok, err = store.Get(keys.TxKey(b2n.Txs_[0].H))
	r.NoError(err)
	r.True(ok, "new b2 must be indexed after the deeper reorg")
	_, ok, _ = store.Get(keys.TxKey(b2.Txs_[0].H))
	r.False(ok, "superseded b2 must have been unindexed")

	// Genesis disconnect is always fatal, independent of the current tip.
	entry0 := chainsrctest.EntryOf(genesis, chainhash.Hash{})
	err = db.OnDisconnect(entry0, genesis, nil)
	r.Error(err)
	r.True(indexerr.Fatal(err))
}

func TestOpenRejectsNetworkMismatch(t *testing.T) {
	r := require.New(t)
	store := memstore.New()
	fake := chainsrctest.New()
	fake.Seed(blockAt(0, hashN(0)))

	plugins, err := indexdb.BuildPlugins([]string{"tx"})
	r.NoError(err)

	db, err := indexdb.Open(store, fake, indexdb.Options{NetworkMagic: 1, Logger: indexlog.Nop()}, plugins...)
	r.NoError(err)
	r.NoError(db.Close())

	_, err = indexdb.Open(store, fake, indexdb.Options{NetworkMagic: 2, Logger: indexlog.Nop()}, plugins...)
	r.Error(err)
	r.ErrorIs(err, indexerr.ErrNetworkMismatch)
}

func TestBuildPluginsRejectsUnknownIdentifier(t *testing.T) {
	_, err := indexdb.BuildPlugins([]string{"tx", "bogus"})
	require.Error(t, err)
}

func TestRescanReappliesIndexersAndAdvancesStartHeight(t *testing.T) {
	r := require.New(t)
	store := memstore.New()
	fake := chainsrctest.New()
	fake.Seed(blockAt(0, hashN(0)))

	plugins, err := indexdb.BuildPlugins([]string{"tx"})
	r.NoError(err)
	db, err := indexdb.Open(store, fake, indexdb.Options{NetworkMagic: 7, Logger: indexlog.Nop()}, plugins...)
	r.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	b1 := blockAt(1, hashN(1))
	r.NoError(fake.Append(b1, nil))

	r.NoError(db.Rescan(0))
	stats := db.Stats()
	r.Equal(uint32(0), stats.StartHeight)
	r.Equal(uint32(1), stats.Height)

	_, ok, err := store.Get(keys.TxKey(b1.Txs_[0].H))
	r.NoError(err)
	r.True(ok)
}
