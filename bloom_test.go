package vkv

import "testing"

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := newBloomFilter()
	keys := []uint64{1, 2, 3, 100, 100000, 1 << 40}
	for _, k := range keys {
		bf.add(k)
	}
	for _, k := range keys {
		if !bf.mayContain(k) {
			t.Fatalf("bloom filter false negative for key %d", k)
		}
	}
}

func TestBloomFilterMarshalRoundTrip(t *testing.T) {
	bf := newBloomFilter()
	bf.add(42)
	bf.add(7)

	data := bf.marshal()
	if len(data) != bloomFilterBytes {
		t.Fatalf("expected marshaled size %d, got %d", bloomFilterBytes, len(data))
	}

	restored, err := bloomFromBytes(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !restored.mayContain(42) || !restored.mayContain(7) {
		t.Fatalf("restored bloom filter lost a key")
	}
}

func TestBloomFromBytesRejectsWrongSize(t *testing.T) {
	if _, err := bloomFromBytes(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for wrong-sized input")
	}
}
