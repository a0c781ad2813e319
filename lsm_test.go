package vkv

import (
	"fmt"
	"io"
	"log"
	"testing"
)

func newTestLSM(t *testing.T, flushThreshold int) *lsm {
	t.Helper()
	return newLSM(t.TempDir(), DefaultFS, flushThreshold, 0, log.New(io.Discard, "", 0))
}

func TestLSMPutGet(t *testing.T) {
	l := newTestLSM(t, 1<<20)
	if err := l.put(1, []byte("SE")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok := l.get(1)
	if !ok || string(v) != "SE" {
		t.Fatalf("expected SE, got %q ok=%v", v, ok)
	}
}

func TestLSMDelSemantics(t *testing.T) {
	l := newTestLSM(t, 1<<20)
	_ = l.put(1, []byte("SE"))

	had, err := l.del(1)
	if err != nil || !had {
		t.Fatalf("expected del to report true, got had=%v err=%v", had, err)
	}
	if _, ok := l.get(1); ok {
		t.Fatalf("expected get to miss after del")
	}

	had, err = l.del(1)
	if err != nil || had {
		t.Fatalf("expected second del to report false, got had=%v err=%v", had, err)
	}
}

func TestLSMSurvivesFlush(t *testing.T) {
	// Small threshold forces every put to flush immediately.
	l := newTestLSM(t, 64)
	val := make([]byte, 100)
	for i := range val {
		val[i] = 'x'
	}
	for i := uint64(1); i <= 30; i++ {
		if err := l.put(i, val); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	for i := uint64(1); i <= 30; i++ {
		got, ok := l.get(i)
		if !ok || string(got) != string(val) {
			t.Fatalf("key %d: expected flush-surviving value, got ok=%v", i, ok)
		}
	}
	anySSTable := false
	for _, lv := range l.levels {
		if len(lv.heads) > 0 {
			anySSTable = true
		}
	}
	if !anySSTable {
		t.Fatalf("expected at least one sstable on disk after forced flushes")
	}
}

func TestLSMScanReturnsLiveRangeOnly(t *testing.T) {
	l := newTestLSM(t, 1<<20)
	for i := uint64(0); i < 512; i++ {
		_ = l.put(i, []byte(fmt.Sprintf("v%d", i)))
	}
	_, _ = l.del(10)

	recs, err := l.scan(0, 255)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(recs) != 255 {
		t.Fatalf("expected 255 live records (256 minus the deleted key), got %d", len(recs))
	}
	for i, r := range recs {
		if i > 0 && r.key <= recs[i-1].key {
			t.Fatalf("scan not strictly ascending at index %d", i)
		}
	}
}

func TestLSMResetClearsEverything(t *testing.T) {
	l := newTestLSM(t, 64)
	val := make([]byte, 100)
	for i := uint64(1); i <= 10; i++ {
		_ = l.put(i, val)
	}
	if err := l.reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok := l.get(1); ok {
		t.Fatalf("expected empty store after reset")
	}
	for _, lv := range l.levels {
		if len(lv.heads) != 0 {
			t.Fatalf("expected no heads remaining after reset")
		}
	}
}
