package txindex

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"rubin.dev/indexer/chainsrc/chainsrctest"
	"rubin.dev/indexer/index"
	"rubin.dev/indexer/keys"
)

type fakeBatch struct {
	puts map[string][]byte
	dels map[string]bool
}

func newFakeBatch() *fakeBatch {
	return &fakeBatch{puts: map[string][]byte{}, dels: map[string]bool{}}
}

func (b *fakeBatch) Put(k, v []byte)  { b.puts[string(k)] = append([]byte(nil), v...) }
func (b *fakeBatch) Delete(k []byte)  { b.dels[string(k)] = true }

var _ index.Batch = (*fakeBatch)(nil)

func TestMetaEncodeDecodeRoundtrip(t *testing.T) {
	var bh chainhash.Hash
	bh[0] = 0xAB
	m := Meta{
		RawTx:     []byte{1, 2, 3, 4},
		BlockHash: bh,
		Height:    42,
		Time:      1700000000,
		Index:     3,
	}
	got, err := Decode(Encode(m))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got.RawTx, m.RawTx) || got.BlockHash != m.BlockHash ||
		got.Height != m.Height || got.Time != m.Time || got.Index != m.Index {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", got, m)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{0, 0, 0, 5}); err == nil {
		t.Fatalf("expected error for truncated input")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func testBlock() chainsrctest.Block {
	var h1, h2 chainhash.Hash
	h1[0], h2[0] = 1, 2
	return chainsrctest.Block{
		H:  h1,
		Ht: 5,
		T:  1234,
		Txs_: []chainsrctest.Tx{
			{H: h1, Coinbase: true, Raw: []byte("coinbase-raw")},
			{H: h2, Raw: []byte("tx2-raw")},
		},
	}
}

func TestIndexBlockThenUnindexBlockIsExactInverse(t *testing.T) {
	block := testBlock()
	entry := chainsrctest.EntryOf(block, chainhash.Hash{})
	idx := Indexer{}

	fwd := newFakeBatch()
	if err := idx.IndexBlock(fwd, entry, block, nil); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	if len(fwd.puts) != 2 {
		t.Fatalf("expected 2 tx records put, got %d", len(fwd.puts))
	}
	for _, tx := range block.Txs_ {
		key := string(keys.TxKey(tx.H))
		v, ok := fwd.puts[key]
		if !ok {
			t.Fatalf("missing tx record for %s", tx.H)
		}
		m, err := Decode(v)
		if err != nil {
			t.Fatalf("Decode put value: %v", err)
		}
		if m.Height != entry.Height() || m.BlockHash != entry.Hash() {
			t.Fatalf("tx record metadata mismatch: %+v", m)
		}
	}

	inv := newFakeBatch()
	if err := idx.UnindexBlock(inv, entry, block, nil); err != nil {
		t.Fatalf("UnindexBlock: %v", err)
	}
	if len(inv.dels) != len(fwd.puts) {
		t.Fatalf("UnindexBlock deleted %d keys, IndexBlock put %d", len(inv.dels), len(fwd.puts))
	}
	for k := range fwd.puts {
		if !inv.dels[k] {
			t.Fatalf("UnindexBlock did not delete key %x put by IndexBlock", []byte(k))
		}
	}
}

func TestPrefixesMatchesTxKeyTag(t *testing.T) {
	p := Indexer{}.Prefixes()
	if len(p) != 1 || p[0] != byte(keys.TagTxRecord) {
		t.Fatalf("Prefixes() = %v, want [%d]", p, keys.TagTxRecord)
	}
}
