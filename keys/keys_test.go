package keys

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/sha3"
)

// hash160Fixture derives a deterministic 20-byte test digest from seed the
// same way the teacher's crypto package derives its own hashes (sha3.New256
// truncated), so address-hash tests don't depend on a hand-rolled digest.
func hash160Fixture(seed byte) [20]byte {
	h := sha3.New256()
	h.Write([]byte{seed})
	sum := h.Sum(nil)
	var out [20]byte
	copy(out[:], sum[:20])
	return out
}

func TestHeightKeyRoundtripAndOrder(t *testing.T) {
	k0 := HeightKey(0)
	k1 := HeightKey(1)
	kMax := HeightKey(0xFFFFFFFF)

	if bytes.Compare(k0, k1) >= 0 {
		t.Fatalf("HeightKey(0) must sort before HeightKey(1)")
	}
	if bytes.Compare(k1, kMax) >= 0 {
		t.Fatalf("HeightKey(1) must sort before HeightKey(max)")
	}

	h, err := ParseHeightKey(k1)
	if err != nil {
		t.Fatalf("ParseHeightKey: %v", err)
	}
	if h != 1 {
		t.Fatalf("got height %d, want 1", h)
	}

	if _, err := ParseHeightKey([]byte{byte(TagTxRecord), 0, 0, 0, 1}); err == nil {
		t.Fatalf("expected error parsing a non-height key")
	}
}

func TestAddressRoundtrip(t *testing.T) {
	h20 := hash160Fixture(0x42)
	a := NewHash160Address(h20)
	got, err := ParseAddress(a.Bytes())
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got != a {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", got, a)
	}
	if len(a.Bytes()) != AddressSize {
		t.Fatalf("Bytes() length = %d, want %d", len(a.Bytes()), AddressSize)
	}

	var h32 [32]byte
	for i := range h32 {
		h32[i] = byte(i)
	}
	b := NewHash256Address(h32)
	got2, err := ParseAddress(b.Bytes())
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got2 != b {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", got2, b)
	}

	if _, err := ParseAddress(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestAddrTxKeyRoundtrip(t *testing.T) {
	var h20 [20]byte
	h20[0] = 0xAB
	addr := NewHash160Address(h20)
	var txhash chainhash.Hash
	txhash[0] = 0xCD

	k := AddrTxKey(addr, txhash)
	gotAddr, gotHash, err := ParseAddrTxKey(k)
	if err != nil {
		t.Fatalf("ParseAddrTxKey: %v", err)
	}
	if gotAddr != addr {
		t.Fatalf("address mismatch: got %+v want %+v", gotAddr, addr)
	}
	if gotHash != txhash {
		t.Fatalf("hash mismatch: got %s want %s", gotHash, txhash)
	}

	prefix := AddrTxPrefix(addr)
	if !bytes.HasPrefix(k, prefix) {
		t.Fatalf("AddrTxKey does not start with AddrTxPrefix")
	}
}

func TestAddrCoinKeyOrderingWithinAddress(t *testing.T) {
	var h20 [20]byte
	addr := NewHash160Address(h20)
	var tx chainhash.Hash
	tx[0] = 1

	k0 := AddrCoinKey(addr, tx, 0)
	k1 := AddrCoinKey(addr, tx, 1)
	if bytes.Compare(k0, k1) >= 0 {
		t.Fatalf("AddrCoinKey must order by vout ascending")
	}

	txPrefix := AddrCoinTxPrefix(addr, tx)
	if !bytes.HasPrefix(k0, txPrefix) || !bytes.HasPrefix(k1, txPrefix) {
		t.Fatalf("AddrCoinKey must start with its AddrCoinTxPrefix")
	}
}

func TestNetworkMagicRoundtrip(t *testing.T) {
	b := EncodeNetworkMagic(0xDEADBEEF)
	got, err := DecodeNetworkMagic(b)
	if err != nil {
		t.Fatalf("DecodeNetworkMagic: %v", err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x, want %#x", got, 0xDEADBEEF)
	}
	if _, err := DecodeNetworkMagic([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short input")
	}
}

func TestMinMaxBoundOwnRange(t *testing.T) {
	lo := Min(TagHeightMap)
	hi := Max(TagHeightMap)
	mid := HeightKey(12345)
	if bytes.Compare(lo, mid) > 0 {
		t.Fatalf("Min must be <= any height key")
	}
	if bytes.Compare(mid, hi) > 0 {
		t.Fatalf("Max must be >= any height key")
	}
}
