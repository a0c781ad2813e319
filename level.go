package vkv

import "sort"

// limitFor returns the soft cardinality bound for level L: 2^(L+1).
func limitFor(level int) int {
	return 1 << uint(level+1)
}

// level is an ordered vector of sstableHeads, per spec §4.C. Level 0 may
// hold heads whose key ranges overlap; levels >= 1 hold pairwise disjoint
// ranges. Heads are kept sorted ascending by (timestamp, path) so that
// iteration for lookups at level >= 1 can stop at the first range match,
// and level-0 lookups can walk newest-first.
type level struct {
	num   int
	heads []*sstableHead
}

func newLevel(num int) *level {
	return &level{num: num}
}

func (lv *level) add(h *sstableHead) {
	lv.heads = append(lv.heads, h)
	lv.sort()
}

// removeByPath drops the head backed by path, if present.
func (lv *level) removeByPath(path string) {
	for i, h := range lv.heads {
		if h.path == path {
			lv.heads = append(lv.heads[:i], lv.heads[i+1:]...)
			return
		}
	}
}

// sort orders heads ascending by (timestamp, path) — path stands in for
// the spec's "name-suffix" tiebreaker since the timestamp is already
// embedded in the filename.
func (lv *level) sort() {
	sort.Slice(lv.heads, func(i, j int) bool {
		a, b := lv.heads[i], lv.heads[j]
		if a.timestamp != b.timestamp {
			return a.timestamp < b.timestamp
		}
		return a.path < b.path
	})
}

// lookup searches this level for key, returning the matching head and its
// (offset, length) in the payload, or ok=false. Level 0 may have
// overlapping ranges and is searched newest-first; levels >= 1 have
// disjoint ranges so any match is returned immediately.
func (lv *level) lookup(key uint64) (head *sstableHead, offset, length uint32, ok bool) {
	if lv.num == 0 {
		for i := len(lv.heads) - 1; i >= 0; i-- {
			h := lv.heads[i]
			if off, ln, found := h.lookup(key); found {
				return h, off, ln, true
			}
		}
		return nil, 0, 0, false
	}
	for _, h := range lv.heads {
		if off, ln, found := h.lookup(key); found {
			return h, off, ln, true
		}
	}
	return nil, 0, 0, false
}

// overflow returns how many heads exceed this level's soft limit, or 0.
func (lv *level) overflow() int {
	n := len(lv.heads) - limitFor(lv.num)
	if n < 0 {
		return 0
	}
	return n
}

// overlapping returns every head in lv whose [minKey,maxKey] intersects
// [lo,hi].
func (lv *level) overlapping(lo, hi uint64) []*sstableHead {
	var out []*sstableHead
	for _, h := range lv.heads {
		if h.count == 0 {
			continue
		}
		if h.maxKey < lo || h.minKey > hi {
			continue
		}
		out = append(out, h)
	}
	return out
}

// disjoint reports whether no two heads in lv overlap — the invariant
// levels >= 1 must hold after compaction (spec testable property 5).
func (lv *level) disjoint() bool {
	lv.sort()
	sorted := append([]*sstableHead(nil), lv.heads...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].minKey < sorted[j].minKey })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].minKey <= sorted[i-1].maxKey {
			return false
		}
	}
	return true
}
