package indexdb

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// schemaTag/schemaVersion identify this package's on-disk layout for the
// "V" record (spec ยง4.5: "verify the schema tag V=\"indexers\" at version
// 0; a new store is tagged, an existing store is checked; mismatch is
// fatal").
const (
	schemaTag     = "indexers"
	schemaVersion = uint32(0)
)

// IndexState is the persisted cursor of spec ยง3: startHeight/startHash mark
// the earliest block for which every indexer's records are known-complete;
// height is the greatest block height whose indexing has been fully
// committed.
type IndexState struct {
	StartHeight uint32
	StartHash   chainhash.Hash
	Height      uint32
}

const indexStateSize = 4 + chainhash.HashSize + 4

// EncodeState serializes an IndexState to its 40-byte "R" record form
// (spec ยง6): u32 startHeight || 32B startHash || u32 height, scalar fields
// little-endian.
func EncodeState(s IndexState) []byte {
	out := make([]byte, indexStateSize)
	binary.LittleEndian.PutUint32(out[0:4], s.StartHeight)
	copy(out[4:4+chainhash.HashSize], s.StartHash[:])
	binary.LittleEndian.PutUint32(out[4+chainhash.HashSize:], s.Height)
	return out
}

// DecodeState is the inverse of EncodeState.
func DecodeState(b []byte) (IndexState, error) {
	if len(b) != indexStateSize {
		return IndexState{}, fmt.Errorf("indexdb: IndexState must be %d bytes, got %d", indexStateSize, len(b))
	}
	var s IndexState
	s.StartHeight = binary.LittleEndian.Uint32(b[0:4])
	copy(s.StartHash[:], b[4:4+chainhash.HashSize])
	s.Height = binary.LittleEndian.Uint32(b[4+chainhash.HashSize:])
	return s, nil
}

// TipRef names a candidate tip by height and hash - the minimal input
// setTip needs (spec ยง4.5). Unlike BlockMeta it deliberately carries no
// timestamp: neither R nor the per-height HeightMap record one.
type TipRef struct {
	Height uint32
	Hash   chainhash.Hash
}
