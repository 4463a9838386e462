// Package boltstore implements kvstore.Store on top of go.etcd.io/bbolt,
// the embedded KV engine this repo's chain node already uses for its own
// chainstate (node/store/db.go). Unlike that chainstate store, which spreads
// records across several named buckets, boltstore keeps every tagged record
// in one bucket so that a single Iterator can range-scan across record
// kinds the way spec ยง6 describes ("ordered KV store ... reverse-iterable
// iterator").
package boltstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"rubin.dev/indexer/kvstore"
)

var rootBucket = []byte("indexcore")

// Options configures Open. MaxFiles and CacheSize are accepted for parity
// with spec ยง6's configuration surface; bbolt has no file-descriptor or
// block-cache knobs of its own (it memory-maps a single file), so Open
// ignores every field of Options, Compression included.
type Options struct {
	MaxFiles    uint32
	CacheSize   uint64
	Compression bool
}

// DefaultOptions mirrors the defaults enumerated in spec ยง6.
func DefaultOptions() Options {
	return Options{MaxFiles: 64, CacheSize: 16 << 20, Compression: true}
}

type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt-backed store at location/kv.db,
// following this repo's prefix/index/ directory convention
// (node/store/paths.go's ChainDir).
func Open(location string, _ Options) (*Store, error) {
	if location == "" {
		return nil, fmt.Errorf("boltstore: location required")
	}
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, fmt.Errorf("boltstore: mkdir %s: %w", location, err)
	}
	path := filepath.Join(location, "kv.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get(key)
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (s *Store) NewBatch() kvstore.Batch {
	return &batch{db: s.db}
}

type batchOp struct {
	key   []byte
	value []byte // nil marks a delete
}

type batch struct {
	db  *bolt.DB
	ops []batchOp
}

func (b *batch) Put(key, value []byte) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, batchOp{key: k, value: v})
}

func (b *batch) Delete(key []byte) {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, batchOp{key: k, value: nil})
}

func (b *batch) Write() error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(rootBucket)
		for _, op := range b.ops {
			if op.value == nil {
				if err := bk.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := bk.Put(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Iterator(r kvstore.Range) kvstore.Iterator {
	tx, err := s.db.Begin(false)
	if err != nil {
		return &errIterator{err: err}
	}
	return newBoltIterator(tx, r)
}

type errIterator struct{ err error }

func (e *errIterator) Next() bool      { return false }
func (e *errIterator) Key() []byte     { return nil }
func (e *errIterator) Value() []byte   { return nil }
func (e *errIterator) Err() error      { return e.err }
func (e *errIterator) Close() error    { return nil }

type boltIterator struct {
	tx       *bolt.Tx
	cur      *bolt.Cursor
	r        kvstore.Range
	key, val []byte
	started  bool
	err      error
}

func newBoltIterator(tx *bolt.Tx, r kvstore.Range) *boltIterator {
	return &boltIterator{tx: tx, cur: tx.Bucket(rootBucket).Cursor(), r: r}
}

func (it *boltIterator) Next() bool {
	if it.err != nil {
		return false
	}
	var k, v []byte
	if !it.started {
		it.started = true
		if it.r.Reverse {
			if it.r.Lte != nil {
				// Seek lands on the first key >= Lte; since we want the
				// last key <= Lte, step one back unless it's an exact hit.
				k, v = it.cur.Seek(it.r.Lte)
				if k == nil || !bytes.Equal(k, it.r.Lte) {
					k, v = it.cur.Prev()
				}
			} else {
				k, v = it.cur.Last()
			}
		} else {
			if it.r.Gte != nil {
				k, v = it.cur.Seek(it.r.Gte)
			} else {
				k, v = it.cur.First()
			}
		}
	} else {
		if it.r.Reverse {
			k, v = it.cur.Prev()
		} else {
			k, v = it.cur.Next()
		}
	}
	if k == nil {
		it.key, it.val = nil, nil
		return false
	}
	if it.r.Reverse {
		if it.r.Gte != nil && bytes.Compare(k, it.r.Gte) < 0 {
			it.key, it.val = nil, nil
			return false
		}
	} else {
		if it.r.Lte != nil && bytes.Compare(k, it.r.Lte) > 0 {
			it.key, it.val = nil, nil
			return false
		}
	}
	it.key = append([]byte(nil), k...)
	if it.r.KeysOnly || v == nil {
		it.val = nil
	} else {
		it.val = append([]byte(nil), v...)
	}
	return true
}

func (it *boltIterator) Key() []byte   { return it.key }
func (it *boltIterator) Value() []byte { return it.val }
func (it *boltIterator) Err() error    { return it.err }
func (it *boltIterator) Close() error  { return it.tx.Rollback() }

// Verify implements the schema/network binding check of spec ยง4.5 and ยง3
// invariant 4: write (tag,version) under key on first open, compare on
// subsequent opens.
func (s *Store) Verify(key []byte, tag string, version uint32) error {
	want := encodeTagVersion(tag, version)
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(rootBucket)
		existing := bk.Get(key)
		if existing == nil {
			return bk.Put(key, want)
		}
		if !bytes.Equal(existing, want) {
			return fmt.Errorf("boltstore: tag mismatch for %q: stored %x want %x", key, existing, want)
		}
		return nil
	})
}

func encodeTagVersion(tag string, version uint32) []byte {
	out := make([]byte, len(tag)+4)
	copy(out, tag)
	binary.LittleEndian.PutUint32(out[len(tag):], version)
	return out
}
