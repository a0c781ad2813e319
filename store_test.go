package vkv

import (
	"fmt"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// S1 (Basic KV).
func TestStoreBasicKV(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(1, []byte("SE")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v := s.Get(1); string(v) != "SE" {
		t.Fatalf("expected SE, got %q", v)
	}
	had, err := s.Del(1)
	if err != nil || !had {
		t.Fatalf("expected first Del to report true, got had=%v err=%v", had, err)
	}
	if v := s.Get(1); v != nil {
		t.Fatalf("expected nil after Del, got %q", v)
	}
	had, err = s.Del(1)
	if err != nil || had {
		t.Fatalf("expected second Del to report false, got had=%v err=%v", had, err)
	}
}

// S4 (Scan).
func TestStoreScan(t *testing.T) {
	s := openTestStore(t)
	for i := uint64(0); i <= 511; i++ {
		if err := s.Put(i, []byte(strings.Repeat("s", int(i)+1))); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	recs, err := s.Scan(0, 255)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(recs) != 256 {
		t.Fatalf("expected 256 records, got %d", len(recs))
	}
	for i, r := range recs {
		if r.Key != uint64(i) {
			t.Fatalf("position %d: expected key %d, got %d", i, i, r.Key)
		}
		if string(r.Value) != strings.Repeat("s", i+1) {
			t.Fatalf("key %d: unexpected value %q", i, r.Value)
		}
	}
}

// S5 (KNN brute force), exercised through SearchText with a trivial
// one-hot embedder standing in for a real embedding model (spec.md
// Non-goals: the store never imports an embedding model itself).
func TestStoreSearchTextKNN(t *testing.T) {
	embed := func(text string) ([]float32, error) {
		switch text {
		case "cat":
			return []float32{1, 0, 0}, nil
		case "dog":
			return []float32{0, 1, 0}, nil
		case "car":
			return []float32{0, 0, 1}, nil
		default:
			return nil, fmt.Errorf("unknown text %q", text)
		}
	}
	s, err := Open(Options{Dir: t.TempDir(), Embed: embed, DisableHNSW: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.PutVector(1, []float32{1, 0, 0}); err != nil {
		t.Fatalf("PutVector cat: %v", err)
	}
	if err := s.PutVector(2, []float32{0, 1, 0}); err != nil {
		t.Fatalf("PutVector dog: %v", err)
	}
	if err := s.PutVector(3, []float32{0, 0, 1}); err != nil {
		t.Fatalf("PutVector car: %v", err)
	}

	got, err := s.SearchText("cat", 1)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected key 1 (cat) as nearest match, got %v", got)
	}
}

func TestStorePutVectorRejectsDimensionMismatch(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutVector(1, []float32{1, 2, 3}); err != nil {
		t.Fatalf("PutVector: %v", err)
	}
	err := s.PutVector(2, []float32{1, 2})
	if !Is(err, CodeInvalidInput) {
		t.Fatalf("expected InvalidInput error for dimension mismatch, got %v", err)
	}
}

func TestStoreCloseOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(0); i < 5; i++ {
		_ = s.Put(i, []byte(fmt.Sprintf("v%d", i)))
	}
	if err := s.PutVector(0, []float32{1, 2, 3}); err != nil {
		t.Fatalf("PutVector: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for i := uint64(0); i < 5; i++ {
		if v := reopened.Get(i); string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("key %d: expected survival across reopen, got %q", i, v)
		}
	}
}

func TestStoreReset(t *testing.T) {
	s := openTestStore(t)
	_ = s.Put(1, []byte("a"))
	_ = s.PutVector(1, []float32{1, 2, 3})

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if v := s.Get(1); v != nil {
		t.Fatalf("expected empty store after Reset, got %q", v)
	}
	if got := s.SearchVector([]float32{1, 2, 3}, 1); len(got) != 0 {
		t.Fatalf("expected no vector matches after Reset, got %v", got)
	}
}
