// Package txindex implements the TxIndexer of spec ยง4.3: tx hash -> extended
// tx record (raw tx bytes plus the confirming block's hash/height/time and
// the tx's position within the block).
package txindex

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"rubin.dev/indexer/chainsrc"
	"rubin.dev/indexer/index"
	"rubin.dev/indexer/keys"
)

const Name = "tx"

// Meta is the decoded form of a TxRecord value.
type Meta struct {
	RawTx     []byte
	BlockHash chainhash.Hash
	Height    uint32
	Time      uint32
	Index     uint32
}

// Encode serializes m using fixed-width scalar fields (little-endian,
// spec ยง6) preceded by a length-prefixed raw-tx blob.
func Encode(m Meta) []byte {
	out := make([]byte, 0, 4+len(m.RawTx)+chainhash.HashSize+4+4+4)
	var tmp4 [4]byte

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(m.RawTx)))
	out = append(out, tmp4[:]...)
	out = append(out, m.RawTx...)

	out = append(out, m.BlockHash[:]...)

	binary.LittleEndian.PutUint32(tmp4[:], m.Height)
	out = append(out, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], m.Time)
	out = append(out, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], m.Index)
	out = append(out, tmp4[:]...)
	return out
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Meta, error) {
	if len(b) < 4 {
		return Meta{}, fmt.Errorf("txindex: truncated (no raw-tx length)")
	}
	rawLen := int(binary.LittleEndian.Uint32(b[0:4]))
	off := 4
	if rawLen < 0 || off+rawLen+chainhash.HashSize+4+4+4 != len(b) {
		return Meta{}, fmt.Errorf("txindex: truncated or bad raw-tx length %d", rawLen)
	}
	raw := append([]byte(nil), b[off:off+rawLen]...)
	off += rawLen

	var m Meta
	m.RawTx = raw
	copy(m.BlockHash[:], b[off:off+chainhash.HashSize])
	off += chainhash.HashSize
	m.Height = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	m.Time = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	m.Index = binary.LittleEndian.Uint32(b[off : off+4])
	return m, nil
}

// Indexer implements index.Indexer.
type Indexer struct{}

var _ index.Indexer = Indexer{}

func (Indexer) Name() string     { return Name }
func (Indexer) Prefixes() []byte { return []byte{byte(keys.TagTxRecord)} }

func (Indexer) IndexBlock(b index.Batch, entry chainsrc.Entry, block chainsrc.Block, _ chainsrc.View) error {
	for i, tx := range block.Txs() {
		m := Meta{
			RawTx:     tx.Bytes(),
			BlockHash: entry.Hash(),
			Height:    entry.Height(),
			Time:      entry.Time(),
			Index:     uint32(i),
		}
		b.Put(keys.TxKey(tx.Hash()), Encode(m))
	}
	return nil
}

func (Indexer) UnindexBlock(b index.Batch, _ chainsrc.Entry, block chainsrc.Block, _ chainsrc.View) error {
	for _, tx := range block.Txs() {
		b.Delete(keys.TxKey(tx.Hash()))
	}
	return nil
}
