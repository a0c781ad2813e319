package vkv

import "testing"

func TestMemtableInsertSearch(t *testing.T) {
	m := newMemtable()
	m.insert(5, []byte("five"))
	m.insert(1, []byte("one"))
	m.insert(3, []byte("three"))

	if v, ok := m.search(1); !ok || string(v) != "one" {
		t.Fatalf("expected one, got %v ok=%v", v, ok)
	}
	if v, ok := m.search(5); !ok || string(v) != "five" {
		t.Fatalf("expected five, got %v ok=%v", v, ok)
	}
	if _, ok := m.search(99); ok {
		t.Fatalf("expected miss for absent key")
	}
}

func TestMemtableInsertReplaces(t *testing.T) {
	m := newMemtable()
	m.insert(1, []byte("a"))
	m.insert(1, []byte("bb"))

	v, ok := m.search(1)
	if !ok || string(v) != "bb" {
		t.Fatalf("expected replaced value bb, got %v", v)
	}
}

func TestMemtableDel(t *testing.T) {
	m := newMemtable()
	m.insert(1, []byte("a"))

	if !m.del(1) {
		t.Fatalf("expected del to report key was present")
	}
	if _, ok := m.search(1); ok {
		t.Fatalf("expected key gone after del")
	}
	if m.del(1) {
		t.Fatalf("expected second del to report absence")
	}
}

func TestMemtableScanOrdered(t *testing.T) {
	m := newMemtable()
	for _, k := range []uint64{5, 1, 3, 2, 4} {
		m.insert(k, []byte{byte(k)})
	}

	got := m.scan(2, 4)
	want := []uint64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, k := range want {
		if got[i].key != k {
			t.Fatalf("position %d: expected key %d, got %d", i, k, got[i].key)
		}
	}
}

func TestMemtableByteSizeTracksInsertsAndDeletes(t *testing.T) {
	m := newMemtable()
	if m.byteSize() != 0 {
		t.Fatalf("expected empty memtable to report zero bytes")
	}
	m.insert(1, []byte("hello"))
	size := m.byteSize()
	if size != skiplistEntryOverhead+5 {
		t.Fatalf("expected byteSize %d, got %d", skiplistEntryOverhead+5, size)
	}
	m.del(1)
	if m.byteSize() != 0 {
		t.Fatalf("expected byteSize to return to zero after del, got %d", m.byteSize())
	}
}

func TestMemtableReset(t *testing.T) {
	m := newMemtable()
	m.insert(1, []byte("a"))
	m.reset()
	if _, ok := m.search(1); ok {
		t.Fatalf("expected empty memtable after reset")
	}
	if m.byteSize() != 0 {
		t.Fatalf("expected zero byteSize after reset")
	}
}
