package keys

import "fmt"

// Kind discriminates the two address-hash widths the core accepts (spec
// GLOSSARY "Address hash: a 20- or 32-byte digest").
type Kind byte

const (
	KindHash160 Kind = 0x14 // 20-byte digest
	KindHash256 Kind = 0x20 // 32-byte digest
)

// Address is the fixed-width (33 byte) on-disk representation of an address
// hash: one kind byte followed by the digest, zero-extended at the high end
// to 32 bytes when the digest is only 20 bytes. Fixing the width lets every
// composite key stay a flat concatenation of fixed-width fields (spec ยง6),
// regardless of which digest width the chain producer used for a given
// output script.
type Address struct {
	Kind Kind
	Hash [32]byte
}

const AddressSize = 1 + 32

// NewHash160Address builds an Address from a 20-byte digest.
func NewHash160Address(h [20]byte) Address {
	var a Address
	a.Kind = KindHash160
	copy(a.Hash[12:], h[:])
	return a
}

// NewHash256Address builds an Address from a 32-byte digest.
func NewHash256Address(h [32]byte) Address {
	return Address{Kind: KindHash256, Hash: h}
}

// Bytes returns the 33-byte fixed-width encoding used inside composite keys.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	out[0] = byte(a.Kind)
	copy(out[1:], a.Hash[:])
	return out
}

// ParseAddress decodes the 33-byte fixed-width encoding produced by Bytes.
func ParseAddress(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("keys: address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	a.Kind = Kind(b[0])
	if a.Kind != KindHash160 && a.Kind != KindHash256 {
		return Address{}, fmt.Errorf("keys: unknown address kind %#x", b[0])
	}
	copy(a.Hash[:], b[1:])
	return a, nil
}
