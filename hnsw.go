package vkv

import (
	"container/heap"
	"crypto/rand"
	"encoding/binary"
	"math"
)

// hnswNode is one node of the proximity graph (spec §3/§4.F). Nodes are
// identified by their index in hnswGraph.nodes and are never physically
// removed; deletion is logical via the tombstone list.
type hnswNode struct {
	key       uint64
	vec       []float32
	maxLayer  int
	neighbors [][]uint32 // neighbors[layer] = node indices
}

// hnswGraph is a hierarchical navigable small world index, grounded on
// original_source/lib/hnsw/hnsw.cpp with the two ambiguities in spec §9
// resolved as documented in SPEC_FULL.md §4.F.
type hnswGraph struct {
	m             int
	mMax          int
	efConstruct   int
	mL            float64
	dim           int
	nodes         []hnswNode
	entryPoint    int // -1 if empty
	topLayer      int
	tombstones    []kvPair
}

type kvPair struct {
	key uint64
	vec []float32
}

func newHNSWGraph(m, mMax, efConstruct, mL int) *hnswGraph {
	return &hnswGraph{
		m:           m,
		mMax:        mMax,
		efConstruct: efConstruct,
		mL:          float64(mL),
		entryPoint:  -1,
		topLayer:    -1,
	}
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 && nb == 0 {
		return 1
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

func randomUnitFloat() float64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	u := binary.LittleEndian.Uint64(buf[:])
	// map to (0, 1], never exactly 0 so ln is defined
	return float64((u>>11)+1) / float64(1<<53)
}

// randomLayer returns floor(-ln(U) * m_L) with U uniform in (0, 1].
func (g *hnswGraph) randomLayer() int {
	u := randomUnitFloat()
	return int(math.Floor(-math.Log(u) * g.mL))
}

func (g *hnswGraph) isTombstoned(key uint64, vec []float32) bool {
	for _, t := range g.tombstones {
		if t.key != key {
			continue
		}
		if vecEqual(t.vec, vec) {
			return true
		}
	}
	return false
}

func vecEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (g *hnswGraph) isLive(idx int) bool {
	n := &g.nodes[idx]
	return !g.isTombstoned(n.key, n.vec)
}

// erase appends (key, vec) to the tombstone list. Edges remain in place
// as routing scaffolding.
func (g *hnswGraph) erase(key uint64, vec []float32) {
	g.tombstones = append(g.tombstones, kvPair{key: key, vec: append([]float32(nil), vec...)})
}

// insert implements spec §4.F's 6-step insertion algorithm.
func (g *hnswGraph) insert(key uint64, vec []float32) {
	if g.dim == 0 {
		g.dim = len(vec)
	}
	l := g.randomLayer()

	if len(g.nodes) == 0 {
		g.nodes = append(g.nodes, hnswNode{
			key: key, vec: append([]float32(nil), vec...), maxLayer: l,
			neighbors: make([][]uint32, l+1),
		})
		g.entryPoint = 0
		g.topLayer = l
		return
	}

	// If a live node with this key already exists, mark it deleted. If
	// the exact (key, vec) pair is currently tombstoned, reinsertion
	// revives it instead of creating a duplicate tombstone.
	for i := range g.nodes {
		if g.nodes[i].key != key {
			continue
		}
		if g.isLive(i) {
			g.erase(g.nodes[i].key, g.nodes[i].vec)
		}
	}
	g.untombstone(key, vec)

	ep := g.entryPoint
	for layer := g.topLayer; layer >= l+1; layer-- {
		ep = g.searchLayerGreedy(ep, vec, layer)
	}

	newIdx := len(g.nodes)
	g.nodes = append(g.nodes, hnswNode{
		key: key, vec: append([]float32(nil), vec...), maxLayer: l,
		neighbors: make([][]uint32, l+1),
	})

	startLayer := l
	if g.topLayer < startLayer {
		startLayer = g.topLayer
	}
	entries := []int{ep}
	for layer := startLayer; layer >= 0; layer-- {
		candidates := g.searchLayer(entries, vec, layer, g.efConstruct)
		selected := closestN(candidates, vec, g.m, g)
		for _, c := range selected {
			g.connect(newIdx, c, layer)
			g.connect(c, newIdx, layer)
			g.pruneToMMax(c, layer)
		}
		g.pruneToMMax(newIdx, layer)
		entries = selected
		if len(entries) == 0 {
			entries = []int{ep}
		}
	}

	if l > g.topLayer {
		g.entryPoint = newIdx
		g.topLayer = l
	}
}

func (g *hnswGraph) untombstone(key uint64, vec []float32) {
	for i, t := range g.tombstones {
		if t.key == key && vecEqual(t.vec, vec) {
			g.tombstones = append(g.tombstones[:i], g.tombstones[i+1:]...)
			return
		}
	}
}

// connect adds a one-directional edge from -> to at layer, if not already
// present.
func (g *hnswGraph) connect(from, to int, layer int) {
	for _, n := range g.nodes[from].neighbors[layer] {
		if int(n) == to {
			return
		}
	}
	g.nodes[from].neighbors[layer] = append(g.nodes[from].neighbors[layer], uint32(to))
}

// pruneToMMax drops idx's farthest neighbor at layer (and the reciprocal
// edge) until its degree is within mMax.
func (g *hnswGraph) pruneToMMax(idx int, layer int) {
	for len(g.nodes[idx].neighbors[layer]) > g.mMax {
		neighbors := g.nodes[idx].neighbors[layer]
		worst := 0
		worstDist := -1.0
		for i, n := range neighbors {
			d := cosineDistance(g.nodes[idx].vec, g.nodes[n].vec)
			if d > worstDist {
				worstDist = d
				worst = i
			}
		}
		dropped := neighbors[worst]
		g.nodes[idx].neighbors[layer] = append(neighbors[:worst], neighbors[worst+1:]...)
		g.removeEdge(int(dropped), idx, layer)
	}
}

func (g *hnswGraph) removeEdge(from, to, layer int) {
	neighbors := g.nodes[from].neighbors[layer]
	for i, n := range neighbors {
		if int(n) == to {
			g.nodes[from].neighbors[layer] = append(neighbors[:i], neighbors[i+1:]...)
			return
		}
	}
}

// searchLayerGreedy hops to the live neighbor strictly closer to vec until
// no improvement is possible, starting from ep.
func (g *hnswGraph) searchLayerGreedy(ep int, vec []float32, layer int) int {
	best := ep
	bestDist := cosineDistance(g.nodes[best].vec, vec)
	for {
		improved := false
		for _, n := range g.nodes[best].neighbors[layer] {
			idx := int(n)
			if !g.isLive(idx) {
				continue
			}
			d := cosineDistance(g.nodes[idx].vec, vec)
			if d < bestDist {
				bestDist = d
				best = idx
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

type candHeapItem struct {
	idx  int
	dist float64
}

// minCandHeap expands nearest-first.
type minCandHeap []candHeapItem

func (h minCandHeap) Len() int            { return len(h) }
func (h minCandHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minCandHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minCandHeap) Push(x any)         { *h = append(*h, x.(candHeapItem)) }
func (h *minCandHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// maxResultHeap keeps the current best bounded to ef, worst on top so it
// can be evicted when a closer candidate arrives.
type maxResultHeap []candHeapItem

func (h maxResultHeap) Len() int            { return len(h) }
func (h maxResultHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxResultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxResultHeap) Push(x any)         { *h = append(*h, x.(candHeapItem)) }
func (h *maxResultHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// searchLayer is HNSW's best-first search: a min-heap of candidates to
// expand and a max-heap (bounded to ef) of current best, grounded on the
// scatter-gather bounded heap pattern in
// Chris-Alexander-Pop-microservices-library/pkg/database/vector/search.go.
// Deleted nodes are skipped when evaluated as results but their edges may
// still be expanded, per spec §4.F.
func (g *hnswGraph) searchLayer(entries []int, vec []float32, layer int, ef int) []int {
	visited := make(map[int]bool)
	candidates := &minCandHeap{}
	results := &maxResultHeap{}
	heap.Init(candidates)
	heap.Init(results)

	for _, e := range entries {
		if visited[e] {
			continue
		}
		visited[e] = true
		d := cosineDistance(g.nodes[e].vec, vec)
		heap.Push(candidates, candHeapItem{idx: e, dist: d})
		if g.isLive(e) {
			heap.Push(results, candHeapItem{idx: e, dist: d})
			if results.Len() > ef {
				heap.Pop(results)
			}
		}
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candHeapItem)
		if results.Len() >= ef {
			worst := (*results)[0].dist
			if c.dist > worst {
				break
			}
		}
		for _, n := range g.nodes[c.idx].neighbors[layer] {
			idx := int(n)
			if visited[idx] {
				continue
			}
			visited[idx] = true
			d := cosineDistance(g.nodes[idx].vec, vec)
			if results.Len() < ef {
				heap.Push(candidates, candHeapItem{idx: idx, dist: d})
				if g.isLive(idx) {
					heap.Push(results, candHeapItem{idx: idx, dist: d})
				}
			} else if d < (*results)[0].dist {
				heap.Push(candidates, candHeapItem{idx: idx, dist: d})
				if g.isLive(idx) {
					heap.Push(results, candHeapItem{idx: idx, dist: d})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]int, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candHeapItem).idx
	}
	return out
}

// closestN returns the m closest of candidates to vec, ascending.
func closestN(candidates []int, vec []float32, m int, g *hnswGraph) []int {
	type scored struct {
		idx  int
		dist float64
	}
	scoredList := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredList[i] = scored{idx: c, dist: cosineDistance(g.nodes[c].vec, vec)}
	}
	for i := 1; i < len(scoredList); i++ {
		for j := i; j > 0 && scoredList[j].dist < scoredList[j-1].dist; j-- {
			scoredList[j], scoredList[j-1] = scoredList[j-1], scoredList[j]
		}
	}
	if m > len(scoredList) {
		m = len(scoredList)
	}
	out := make([]int, m)
	for i := 0; i < m; i++ {
		out[i] = scoredList[i].idx
	}
	return out
}

// query implements spec §4.F's 3-step query algorithm: greedy descent from
// the entry point through layers topLayer..1, then a best-first search at
// layer 0, returning the min(k, |candidates|) closest live keys.
func (g *hnswGraph) query(vec []float32, k int) []uint64 {
	if g.entryPoint == -1 {
		return nil
	}
	ep := g.entryPoint
	for layer := g.topLayer; layer >= 1; layer-- {
		ep = g.searchLayerGreedy(ep, vec, layer)
	}

	candidates := g.searchLayer([]int{ep}, vec, 0, g.efConstruct)

	type scored struct {
		idx  int
		dist float64
	}
	var live []scored
	for _, c := range candidates {
		if !g.isLive(c) {
			continue
		}
		live = append(live, scored{idx: c, dist: cosineDistance(g.nodes[c].vec, vec)})
	}
	for i := 1; i < len(live); i++ {
		for j := i; j > 0 && live[j].dist < live[j-1].dist; j-- {
			live[j], live[j-1] = live[j-1], live[j]
		}
	}
	if k > len(live) {
		k = len(live)
	}
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = g.nodes[live[i].idx].key
	}
	return out
}
