package vkv

import (
	"container/heap"
	"fmt"
	"log"
	"path/filepath"
)

// lsm is the log-structured merge key-value engine of spec §4.D. It owns
// the memtable and the per-level sstable head indices and is driven by a
// single caller at a time, per the concurrency model in spec §5.
type lsm struct {
	dir    string
	fs     FS
	mt     *memtable
	levels []*level

	flushThreshold int
	clock          uint64 // monotonically increasing timestamp watermark
	fileSeq        uint64 // monotonic suffix for new sstable filenames
	cache          *valueCache
	logger         *log.Logger
}

func newLSM(dir string, fs FS, flushThreshold int, cacheBytes int, logger *log.Logger) *lsm {
	return &lsm{
		dir:            dir,
		fs:             fs,
		mt:             newMemtable(),
		flushThreshold: flushThreshold,
		cache:          newValueCache(cacheBytes),
		logger:         logger,
	}
}

func (l *lsm) levelAt(n int) *level {
	for len(l.levels) <= n {
		l.levels = append(l.levels, newLevel(len(l.levels)))
	}
	return l.levels[n]
}

// open scans level-0..level-N subdirectories, loads every sstable header,
// and advances the timestamp watermark — the construction contract of
// spec §4.H.
func (l *lsm) open() error {
	if err := l.fs.MkdirAll(l.dir); err != nil {
		return ioErr("create base directory", err)
	}
	for n := 0; ; n++ {
		levelDir := filepath.Join(l.dir, fmt.Sprintf("level-%d", n))
		if !l.fs.Exists(levelDir) {
			if n == 0 {
				continue
			}
			break
		}
		names, err := l.fs.ReadDir(levelDir)
		if err != nil {
			return ioErr("list level directory", err)
		}
		lv := l.levelAt(n)
		for _, name := range names {
			head, err := loadSSTableHead(filepath.Join(levelDir, name))
			if err != nil {
				return err
			}
			lv.add(head)
			if head.timestamp > l.clock {
				l.clock = head.timestamp
			}
		}
	}
	return nil
}

func (l *lsm) nextTimestamp() uint64 {
	l.clock++
	return l.clock
}

// put inserts or overwrites key. If the projected memtable size would
// exceed the flush threshold, the current memtable is flushed first.
func (l *lsm) put(key uint64, val []byte) error {
	projected := l.mt.byteSize() + skiplistEntryOverhead + len(val)
	if existing, ok := l.mt.search(key); ok {
		projected = l.mt.byteSize() - len(existing) + len(val)
	}
	if projected > l.flushThreshold {
		if err := l.flush(); err != nil {
			return err
		}
	}
	l.mt.insert(key, val)
	return nil
}

// get returns the value for key, or (nil, false) if absent or tombstoned.
func (l *lsm) get(key uint64) ([]byte, bool) {
	if val, ok := l.mt.search(key); ok {
		if string(val) == tombstoneValue {
			return nil, false
		}
		return val, true
	}

	var best []byte
	var bestTS uint64
	found := false
	for _, lv := range l.levels {
		for _, h := range lv.heads {
			off, ln, ok := h.lookup(key)
			if !ok {
				continue
			}
			if found && h.timestamp <= bestTS {
				continue
			}
			val, err := h.readValue(off, ln, l.cache)
			if err != nil {
				continue
			}
			best, bestTS, found = val, h.timestamp, true
		}
	}
	if !found || string(best) == tombstoneValue {
		return nil, false
	}
	return best, true
}

// del removes key logically: it must already be live, then a tombstone
// write shadows it. Returns whether a prior live value existed.
func (l *lsm) del(key uint64) (bool, error) {
	if _, ok := l.get(key); !ok {
		return false, nil
	}
	if err := l.put(key, []byte(tombstoneValue)); err != nil {
		return false, err
	}
	return true, nil
}

// heapItem is a candidate record in the scan merge, ordered by (key asc,
// timestamp desc) so that for ties the newest version surfaces first.
type heapItem struct {
	key   uint64
	ts    uint64
	val   []byte
	isTmb bool
}

type scanHeap []heapItem

func (h scanHeap) Len() int { return len(h) }
func (h scanHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	return h[i].ts > h[j].ts
}
func (h scanHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scanHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *scanHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scan merges the memtable and every qualifying sstable's range using a
// min-heap keyed by (key asc, timestamp desc), emitting the newest
// non-tombstone value per distinct key, per spec §4.D.
func (l *lsm) scan(k1, k2 uint64) ([]kv, error) {
	h := &scanHeap{}
	heap.Init(h)

	for _, e := range l.mt.scan(k1, k2) {
		heap.Push(h, heapItem{key: e.key, ts: l.clock + 1, val: e.val, isTmb: string(e.val) == tombstoneValue})
	}
	for _, lv := range l.levels {
		for _, head := range lv.heads {
			recs, err := head.scan(k1, k2)
			if err != nil {
				return nil, err
			}
			for _, e := range recs {
				heap.Push(h, heapItem{key: e.key, ts: head.timestamp, val: e.val, isTmb: string(e.val) == tombstoneValue})
			}
		}
	}

	var out []kv
	var lastKey uint64
	haveLast := false
	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		if haveLast && item.key == lastKey {
			continue // a newer version of this key already emitted (or dropped as tombstone)
		}
		lastKey, haveLast = item.key, true
		if item.isTmb {
			continue
		}
		out = append(out, kv{key: item.key, val: item.val})
	}
	return out, nil
}

// reset clears the memtable, deletes every level directory, and clears
// the in-memory indices and their cached values.
func (l *lsm) reset() error {
	l.mt.reset()
	for n, lv := range l.levels {
		levelDir := filepath.Join(l.dir, fmt.Sprintf("level-%d", n))
		if err := l.fs.RemoveAll(levelDir); err != nil {
			return ioErr("remove level directory", err)
		}
		for _, h := range lv.heads {
			l.cache.evictPath(h.path)
		}
		lv.heads = nil
	}
	l.levels = nil
	l.clock = 0
	l.fileSeq = 0
	return nil
}

// flush serializes the current memtable into a new level-0 sstable, adds
// its head, runs compaction, and clears the memtable.
func (l *lsm) flush() error {
	entries := l.mt.scan(0, ^uint64(0))
	if len(entries) == 0 {
		return nil
	}

	levelDir := filepath.Join(l.dir, "level-0")
	if err := l.fs.MkdirAll(levelDir); err != nil {
		return ioErr("create level-0 directory", err)
	}

	ts := l.nextTimestamp()
	l.fileSeq++
	name := fmt.Sprintf("%020d-%d.sst", ts, l.fileSeq)
	path := filepath.Join(levelDir, name)
	if err := writeSSTable(l.fs, path, ts, entries); err != nil {
		return err
	}
	head, err := loadSSTableHead(path)
	if err != nil {
		return err
	}
	l.levelAt(0).add(head)
	l.mt.reset()
	l.logger.Printf("vkv: flushed memtable to %s (%d records)", name, len(entries))

	return l.compact()
}
