// Package kvstore defines the ordered key/value contract the index core
// assumes of its backing store (spec ยง6): point lookups, atomic batched
// mutation, and reverse-iterable range scans over a single flat keyspace
// shared by every record kind.
package kvstore

import "errors"

// ErrNotFound names a missing key. Get does not return it (it reports
// absence with ok=false), and Verify does not either (it records the tag on
// a fresh store).
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the ordered KV contract. Implementations: boltstore (on-disk,
// backed by go.etcd.io/bbolt) and memstore (ephemeral, for tests and the
// "memory: true" configuration option).
type Store interface {
	// Get returns the value for key, or (nil, false, nil) if absent.
	Get(key []byte) (value []byte, ok bool, err error)

	// NewBatch opens a batch of puts/deletes committed atomically by Write.
	NewBatch() Batch

	// Iterator opens a range scan. The returned Iterator must be closed.
	Iterator(r Range) Iterator

	// Verify writes tag+version under key on first open, or compares the
	// stored value against tag+version on every subsequent open. Mismatch
	// is reported via the returned error (not panic); callers decide
	// fatality.
	Verify(key []byte, tag string, version uint32) error

	// Close releases all resources. Close must not be called concurrently
	// with an in-flight batch Write or Iterator use.
	Close() error
}

// Batch accumulates mutations for one atomic commit.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	// Write commits every accumulated Put/Delete atomically. A Batch must
	// not be reused after Write returns.
	Write() error
}

// Range bounds an Iterator. A nil Gte/Lte bound is unbounded on that side.
// KeysOnly skips loading values (Value() returns nil) for cheaper prefix
// existence scans.
type Range struct {
	Gte      []byte
	Lte      []byte
	Reverse  bool
	KeysOnly bool
}

// Iterator walks a Range in key order (or reverse key order when
// Range.Reverse is set). Typical use:
//
//	it := store.Iterator(r)
//	defer it.Close()
//	for it.Next() {
//	    use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}
