package vkv

import (
	"fmt"
	"path/filepath"
	"sort"
)

// sstableSizeBudget bounds how many records a single compaction output
// sstable carries before a new one is started, keeping file sizes roughly
// comparable to a freshly flushed memtable.
const sstableSizeBudget = 50_000

// compact runs the size-tiered-at-L0 / leveled-for-L>=1 algorithm of spec
// §4.D starting at level 0, cascading upward while a level overflows its
// soft limit.
func (l *lsm) compact() error {
	for n := 0; n < len(l.levels); n++ {
		lv := l.levels[n]
		if n == 0 {
			if len(lv.heads) <= limitFor(0) {
				continue
			}
		} else if lv.overflow() == 0 {
			continue
		}
		if err := l.compactLevel(n); err != nil {
			return err
		}
	}
	return nil
}

// compactLevel merges victims selected from level n (and overlapping
// heads from n+1) into new sstables installed into n+1.
func (l *lsm) compactLevel(n int) error {
	lv := l.levelAt(n)

	var victims []*sstableHead
	if n == 0 {
		sorted := append([]*sstableHead(nil), lv.heads...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].timestamp < sorted[j].timestamp })
		count := l0CompactionSize
		if count > len(sorted) {
			count = len(sorted)
		}
		victims = sorted[:count]
	} else {
		sorted := append([]*sstableHead(nil), lv.heads...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].timestamp < sorted[j].timestamp })
		count := lv.overflow()
		if count > len(sorted) {
			count = len(sorted)
		}
		victims = sorted[:count]
	}
	if len(victims) == 0 {
		return nil
	}

	minK, maxK := victims[0].minKey, victims[0].maxKey
	for _, h := range victims[1:] {
		if h.minKey < minK {
			minK = h.minKey
		}
		if h.maxKey > maxK {
			maxK = h.maxKey
		}
	}

	next := l.levelAt(n + 1)
	overlapping := next.overlapping(minK, maxK)
	victims = append(append([]*sstableHead(nil), victims...), overlapping...)

	sort.Slice(victims, func(i, j int) bool { return victims[i].timestamp < victims[j].timestamp })

	merged := make(map[uint64][]byte)
	var maxTS uint64
	for _, h := range victims {
		if h.timestamp > maxTS {
			maxTS = h.timestamp
		}
		recs, err := h.readAll()
		if err != nil {
			return err
		}
		for _, e := range recs {
			merged[e.key] = e.val
		}
	}

	// The bottom level is whichever level currently has no successor with
	// any data; tombstones are dropped only once merged into it.
	if l.isBottomLevel(n + 1) {
		for k, v := range merged {
			if string(v) == tombstoneValue {
				delete(merged, k)
			}
		}
	}

	keys := make([]uint64, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	levelDir := filepath.Join(l.dir, fmt.Sprintf("level-%d", n+1))
	if err := l.fs.MkdirAll(levelDir); err != nil {
		return ioErr("create level directory", err)
	}

	var newHeads []*sstableHead
	for start := 0; start < len(keys); start += sstableSizeBudget {
		end := start + sstableSizeBudget
		if end > len(keys) {
			end = len(keys)
		}
		batch := make([]kv, 0, end-start)
		for _, k := range keys[start:end] {
			batch = append(batch, kv{key: k, val: merged[k]})
		}
		l.fileSeq++
		name := fmt.Sprintf("%020d-%d.sst", maxTS, l.fileSeq)
		path := filepath.Join(levelDir, name)
		if err := writeSSTable(l.fs, path, maxTS, batch); err != nil {
			return err
		}
		head, err := loadSSTableHead(path)
		if err != nil {
			return err
		}
		newHeads = append(newHeads, head)
	}

	for _, h := range victims {
		lvOfHead := l.levelOf(h)
		if lvOfHead != nil {
			lvOfHead.removeByPath(h.path)
		}
		l.cache.evictPath(h.path)
		if err := l.fs.Remove(h.path); err != nil {
			return ioErr("remove compacted sstable", err)
		}
	}
	for _, h := range newHeads {
		next.add(h)
	}
	next.sort()

	l.logger.Printf("vkv: compacted level %d into level %d, merged %d victims into %d sstables",
		n, n+1, len(victims), len(newHeads))

	return nil
}

// levelOf returns the level currently holding h, by identity of path.
func (l *lsm) levelOf(h *sstableHead) *level {
	for _, lv := range l.levels {
		for _, candidate := range lv.heads {
			if candidate.path == h.path {
				return lv
			}
		}
	}
	return nil
}

// isBottomLevel reports whether n is the highest level currently holding
// any sstables — tombstones merged into it may be dropped for good.
func (l *lsm) isBottomLevel(n int) bool {
	for i := n + 1; i < len(l.levels); i++ {
		if len(l.levels[i].heads) > 0 {
			return false
		}
	}
	return true
}
