// Package memstore implements kvstore.Store over a sorted in-memory slice.
// It backs the "memory: true" configuration option and the index core's own
// test suite, mirroring the role NullClient plays on the chainsrc side: a
// zero-dependency double that satisfies the real contract exactly.
package memstore

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"rubin.dev/indexer/kvstore"
)

type entry struct {
	key, value []byte
}

type Store struct {
	mu      sync.Mutex
	entries []entry // kept sorted by key
}

func New() *Store {
	return &Store{}
}

func (s *Store) Close() error { return nil }

func (s *Store) search(key []byte) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return bytes.Compare(s.entries[i].key, key) >= 0
	})
	if i < len(s.entries) && bytes.Equal(s.entries[i].key, key) {
		return i, true
	}
	return i, false
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.search(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), s.entries[i].value...), true, nil
}

func (s *Store) put(key, value []byte) {
	i, ok := s.search(key)
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	if ok {
		s.entries[i].value = v
		return
	}
	s.entries = append(s.entries, entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry{key: k, value: v}
}

func (s *Store) delete(key []byte) {
	i, ok := s.search(key)
	if !ok {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

type batchOp struct {
	key   []byte
	value []byte
	del   bool
}

type batch struct {
	s   *Store
	ops []batchOp
}

func (s *Store) NewBatch() kvstore.Batch {
	return &batch{s: s}
}

func (b *batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

func (b *batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, del: true})
}

func (b *batch) Write() error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	for _, op := range b.ops {
		if op.del {
			b.s.delete(op.key)
			continue
		}
		b.s.put(op.key, op.value)
	}
	return nil
}

func (s *Store) Iterator(r kvstore.Range) kvstore.Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo := 0
	if r.Gte != nil {
		lo = sort.Search(len(s.entries), func(i int) bool {
			return bytes.Compare(s.entries[i].key, r.Gte) >= 0
		})
	}
	hi := len(s.entries)
	if r.Lte != nil {
		hi = sort.Search(len(s.entries), func(i int) bool {
			return bytes.Compare(s.entries[i].key, r.Lte) > 0
		})
	}
	if lo > hi {
		lo = hi
	}
	snap := make([]entry, hi-lo)
	for i, e := range s.entries[lo:hi] {
		v := e.value
		if r.KeysOnly {
			v = nil
		}
		snap[i] = entry{key: append([]byte(nil), e.key...), value: append([]byte(nil), v...)}
	}
	if r.Reverse {
		for i, j := 0, len(snap)-1; i < j; i, j = i+1, j-1 {
			snap[i], snap[j] = snap[j], snap[i]
		}
	}
	return &iterator{snap: snap, pos: -1}
}

type iterator struct {
	snap []entry
	pos  int
}

func (it *iterator) Next() bool {
	it.pos++
	return it.pos < len(it.snap)
}

func (it *iterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.snap) {
		return nil
	}
	return it.snap[it.pos].key
}

func (it *iterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.snap) {
		return nil
	}
	return it.snap[it.pos].value
}

func (it *iterator) Err() error   { return nil }
func (it *iterator) Close() error { return nil }

func (s *Store) Verify(key []byte, tag string, version uint32) error {
	want := make([]byte, len(tag)+4)
	copy(want, tag)
	want[len(tag)] = byte(version)
	want[len(tag)+1] = byte(version >> 8)
	want[len(tag)+2] = byte(version >> 16)
	want[len(tag)+3] = byte(version >> 24)

	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.search(key)
	if !ok {
		s.put(key, want)
		return nil
	}
	if !bytes.Equal(s.entries[i].value, want) {
		return fmt.Errorf("memstore: tag mismatch for %q", key)
	}
	return nil
}
