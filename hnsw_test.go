package vkv

import (
	"math"
	"testing"
)

func newTestGraph() *hnswGraph {
	return newHNSWGraph(8, 16, 20, 4)
}

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestHNSWInsertQueryReturnsSameKey(t *testing.T) {
	g := newTestGraph()
	vec := []float32{1, 0, 0, 0}
	g.insert(1, vec)
	g.insert(2, []float32{0, 1, 0, 0})
	g.insert(3, []float32{0, 0, 1, 0})

	got := g.query(vec, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected query to return key 1, got %v", got)
	}
}

func TestHNSWEraseNeverReturnedAgain(t *testing.T) {
	g := newTestGraph()
	vec := []float32{1, 0, 0, 0}
	g.insert(1, vec)
	g.insert(2, []float32{0.9, 0.1, 0, 0})

	g.erase(1, vec)

	for i := 0; i < 5; i++ {
		got := g.query(vec, 2)
		for _, k := range got {
			if k == 1 {
				t.Fatalf("erased key 1 resurfaced in query results: %v", got)
			}
		}
	}
}

func TestHNSWReinsertAfterEraseRevives(t *testing.T) {
	g := newTestGraph()
	vec := []float32{1, 0, 0, 0}
	g.insert(1, vec)
	g.erase(1, vec)
	g.insert(1, vec)

	got := g.query(vec, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected reinserted key to be queryable again, got %v", got)
	}
}

func TestHNSWPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := newTestGraph()
	for i := 0; i < 20; i++ {
		vec := unitVec(8, i%8)
		g.insert(uint64(i), vec)
	}

	if err := g.putFile(DefaultFS, dir); err != nil {
		t.Fatalf("putFile: %v", err)
	}

	fresh := newHNSWGraph(0, 0, 0, 0)
	if err := fresh.loadFile(DefaultFS, dir); err != nil {
		t.Fatalf("loadFile: %v", err)
	}

	for i := 0; i < 8; i++ {
		vec := unitVec(8, i)
		got := fresh.query(vec, 1)
		if len(got) == 0 {
			t.Fatalf("expected a result for hot index %d", i)
		}
	}

	if DefaultFS.Exists(dir) {
		t.Fatalf("expected loadFile to clear the hnsw directory")
	}
}

func TestCosineDistanceConventions(t *testing.T) {
	zero := []float32{0, 0, 0}
	nonzero := []float32{1, 0, 0}

	if d := cosineDistance(zero, zero); d != 0 {
		t.Fatalf("expected zero-vs-zero distance 0 (similarity 1), got %v", d)
	}
	if d := cosineDistance(zero, nonzero); d != 1 {
		t.Fatalf("expected zero-vs-nonzero distance 1 (similarity 0), got %v", d)
	}
	if d := cosineDistance(nonzero, nonzero); math.Abs(d) > 1e-9 {
		t.Fatalf("expected identical vectors to have distance ~0, got %v", d)
	}
}
