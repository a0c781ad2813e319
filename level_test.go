package vkv

import "testing"

// buildHead writes a fresh sstable into its own temp directory (so
// multiple heads in one test never collide on the fixed "test.sst" name)
// and loads its head.
func buildHead(t *testing.T, ts uint64, entries []kv) *sstableHead {
	t.Helper()
	dir := t.TempDir()
	path := writeTestSSTable(t, dir, ts, entries)
	head, err := loadSSTableHead(path)
	if err != nil {
		t.Fatalf("loadSSTableHead: %v", err)
	}
	return head
}

func TestLevelLimitDoublesPerLevel(t *testing.T) {
	if limitFor(0) != 2 {
		t.Fatalf("expected limit(0) = 2, got %d", limitFor(0))
	}
	if limitFor(1) != 4 {
		t.Fatalf("expected limit(1) = 4, got %d", limitFor(1))
	}
	if limitFor(2) != 8 {
		t.Fatalf("expected limit(2) = 8, got %d", limitFor(2))
	}
}

func TestLevelZeroSearchesNewestFirst(t *testing.T) {
	lv := newLevel(0)
	h1 := buildHead(t, 1, []kv{{key: 5, val: []byte("old")}})
	h2 := buildHead(t, 2, []kv{{key: 5, val: []byte("new")}})
	lv.add(h1)
	lv.add(h2)

	head, off, ln, ok := lv.lookup(5)
	if !ok {
		t.Fatalf("expected key 5 to be found")
	}
	val, err := head.readValue(off, ln, nil)
	if err != nil {
		t.Fatalf("readValue: %v", err)
	}
	if string(val) != "new" {
		t.Fatalf("expected newest value 'new', got %q", val)
	}
}

func TestLevelDisjointDetection(t *testing.T) {
	lv := newLevel(1)
	h1 := buildHead(t, 1, []kv{{key: 1, val: []byte("a")}, {key: 2, val: []byte("b")}})
	h2 := buildHead(t, 2, []kv{{key: 3, val: []byte("c")}, {key: 4, val: []byte("d")}})
	lv.add(h1)
	lv.add(h2)
	if !lv.disjoint() {
		t.Fatalf("expected disjoint ranges to be reported disjoint")
	}

	h3 := buildHead(t, 3, []kv{{key: 2, val: []byte("x")}})
	lv.add(h3)
	if lv.disjoint() {
		t.Fatalf("expected overlapping ranges to be reported non-disjoint")
	}
}

func TestLevelOverflow(t *testing.T) {
	lv := newLevel(0)
	for i := 0; i < 3; i++ {
		lv.add(buildHead(t, uint64(i+1), []kv{{key: uint64(i), val: []byte("x")}}))
	}
	if lv.overflow() != 1 {
		t.Fatalf("expected overflow 1 (3 heads, limit 2), got %d", lv.overflow())
	}
}
