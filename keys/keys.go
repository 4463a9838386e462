// Package keys implements the tag-prefixed key schema of spec ยง3/ยง6: every
// key is tag_byte || field_bytes..., range-ordered numeric fields are
// big-endian so lexicographic byte order matches numeric order, and each
// record kind's keys form a contiguous range so a single tag byte is a
// ready-made prefix scan. Grounded on this repo's own fixed-width key
// encoding idiom in node/store/utxo_encoding.go (encodeOutpointKey), here
// generalized across record kinds instead of one UTXO-specific layout.
package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

type Tag byte

const (
	TagSchemaVersion Tag = 'V'
	TagNetworkMagic  Tag = 'O'
	TagIndexState    Tag = 'R'
	TagHeightMap     Tag = 'h'
	TagTxRecord      Tag = 't'
	TagAddrTxEdge    Tag = 'T'
	TagAddrCoinEdge  Tag = 'C'
)

// Min returns the smallest key sharing tag.
func Min(tag Tag) []byte { return []byte{byte(tag)} }

// Max returns an upper bound for keys sharing tag: the tag byte followed by
// eight 0xff bytes. It sorts at or after every key of that tag whose first
// eight field bytes are not all 0xff (every HeightMap key, for example); a
// longer key that starts with eight 0xff field bytes sorts after it. For an
// exact bound on a tag's range, use Min(tag+1) as an exclusive limit.
func Max(tag Tag) []byte {
	return []byte{byte(tag), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// SchemaVersionKey is the lone "V" record: schema tag string + version.
func SchemaVersionKey() []byte { return Min(TagSchemaVersion) }

// NetworkMagicKey is the lone "O" record.
func NetworkMagicKey() []byte { return Min(TagNetworkMagic) }

// EncodeNetworkMagic/DecodeNetworkMagic: 4 bytes little-endian (spec ยง6).
func EncodeNetworkMagic(magic uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, magic)
	return b
}

func DecodeNetworkMagic(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("keys: network magic must be 4 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// IndexStateKey is the lone "R" record.
func IndexStateKey() []byte { return Min(TagIndexState) }

// HeightKey encodes h[height] -> hash256. height is big-endian so HeightMap
// keys sort in height order.
func HeightKey(height uint32) []byte {
	out := make([]byte, 1+4)
	out[0] = byte(TagHeightMap)
	binary.BigEndian.PutUint32(out[1:], height)
	return out
}

// ParseHeightKey extracts the height encoded by HeightKey.
func ParseHeightKey(key []byte) (uint32, error) {
	if len(key) != 1+4 || Tag(key[0]) != TagHeightMap {
		return 0, fmt.Errorf("keys: not a height key: %x", key)
	}
	return binary.BigEndian.Uint32(key[1:]), nil
}

// TxKey encodes t[txhash] -> extended-tx-bytes.
func TxKey(txhash chainhash.Hash) []byte {
	out := make([]byte, 1+chainhash.HashSize)
	out[0] = byte(TagTxRecord)
	copy(out[1:], txhash[:])
	return out
}

// AddrTxPrefix returns the key range prefix for every tx hash associated
// with addr (T[addr, *]).
func AddrTxPrefix(addr Address) []byte {
	out := make([]byte, 1+AddressSize)
	out[0] = byte(TagAddrTxEdge)
	copy(out[1:], addr.Bytes())
	return out
}

// AddrTxKey encodes T[addr, txhash] -> empty (presence-only).
func AddrTxKey(addr Address, txhash chainhash.Hash) []byte {
	p := AddrTxPrefix(addr)
	return append(p, txhash[:]...)
}

// ParseAddrTxKey decodes an AddrTxKey back into its address and tx hash.
func ParseAddrTxKey(key []byte) (Address, chainhash.Hash, error) {
	want := 1 + AddressSize + chainhash.HashSize
	if len(key) != want || Tag(key[0]) != TagAddrTxEdge {
		return Address{}, chainhash.Hash{}, fmt.Errorf("keys: not an addr-tx key: %x", key)
	}
	addr, err := ParseAddress(key[1 : 1+AddressSize])
	if err != nil {
		return Address{}, chainhash.Hash{}, err
	}
	var h chainhash.Hash
	copy(h[:], key[1+AddressSize:])
	return addr, h, nil
}

// AddrCoinPrefix returns the key range prefix for every coin edge owned by
// addr (C[addr, *, *]).
func AddrCoinPrefix(addr Address) []byte {
	return AddrTxAndCoinTxPrefix(addr)
}

// AddrTxAndCoinTxPrefix is the shared tag+address prefix used to build both
// C[addr,*] and C[addr,txhash,*] prefixes.
func AddrTxAndCoinTxPrefix(addr Address) []byte {
	out := make([]byte, 1+AddressSize)
	out[0] = byte(TagAddrCoinEdge)
	copy(out[1:], addr.Bytes())
	return out
}

// AddrCoinTxPrefix narrows AddrCoinPrefix to one originating tx hash
// (C[addr, txhash, *]).
func AddrCoinTxPrefix(addr Address, txhash chainhash.Hash) []byte {
	return append(AddrTxAndCoinTxPrefix(addr), txhash[:]...)
}

// AddrCoinKey encodes C[addr, txhash, vout] -> empty (presence-only).
func AddrCoinKey(addr Address, txhash chainhash.Hash, vout uint32) []byte {
	out := AddrCoinTxPrefix(addr, txhash)
	vb := make([]byte, 4)
	binary.BigEndian.PutUint32(vb, vout)
	return append(out, vb...)
}
