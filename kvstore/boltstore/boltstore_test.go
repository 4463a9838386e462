package boltstore

import (
	"testing"

	"rubin.dev/indexer/kvstore"
)

func TestOpenPutGetDelete(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	b := s.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	if err := b.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v, ok, err := s.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
	}

	b2 := s.NewBatch()
	b2.Delete([]byte("a"))
	if err := b2.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, ok, err = s.Get([]byte("a"))
	if err != nil || ok {
		t.Fatalf("expected a to be deleted, ok=%v err=%v", ok, err)
	}
}

func TestOpenRequiresLocation(t *testing.T) {
	if _, err := Open("", DefaultOptions()); err == nil {
		t.Fatalf("expected error for empty location")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b := s.NewBatch()
	b.Put([]byte("k"), []byte("v"))
	if err := b.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	v, ok, err := s2.Get([]byte("k"))
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get after reopen = %q, %v, %v", v, ok, err)
	}
}

func TestIteratorForwardAndReverseBounds(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	b := s.NewBatch()
	for _, k := range []string{"a", "b", "c", "d"} {
		b.Put([]byte(k), []byte(k))
	}
	if err := b.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	it := s.Iterator(kvstore.Range{Gte: []byte("b"), Lte: []byte("c")})
	defer it.Close()
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator err: %v", err)
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("forward range = %v, want [b c]", got)
	}

	rit := s.Iterator(kvstore.Range{Gte: []byte("a"), Lte: []byte("d"), Reverse: true})
	defer rit.Close()
	var rgot []string
	for rit.Next() {
		rgot = append(rgot, string(rit.Key()))
	}
	if len(rgot) != 4 || rgot[0] != "d" || rgot[3] != "a" {
		t.Fatalf("reverse range = %v, want [d c b a]", rgot)
	}
}

func TestVerifyTagVersionMismatch(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	key := []byte("schema")
	if err := s.Verify(key, "indexers", 0); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := s.Verify(key, "indexers", 0); err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if err := s.Verify(key, "indexers", 1); err == nil {
		t.Fatalf("expected mismatch error")
	}
}
