package vkv

import "log"

// Default tuning knobs, per the external interface contract: a ~2MiB
// memtable flush threshold (less the bloom filter and header overhead a
// flushed sstable would also carry), a per-level size limit of 2^(L+1),
// an L0 compaction batch of 3 heads, and the HNSW defaults.
const (
	memtableMaxSize  = 2 * 1024 * 1024 // 2 MiB
	bloomFilterBytes = 10240           // 81,920 bits
	sstableHeaderLen = 32
	l0CompactionSize = 3

	defaultHNSWM            = 24
	defaultHNSWMMax         = 38
	defaultHNSWEfConstruct  = 30
	defaultHNSWML           = 6
	defaultKvecFlushWorkers = 4
)

// tombstoneValue is the value-layer sentinel: a put of this exact byte
// string marks the key deleted without removing older sstable entries.
const tombstoneValue = "~DELETED~"

// Options configures Open. Every field has a workable zero value; only
// Dir is required.
type Options struct {
	// Dir is the base directory the store reads and writes under. Level
	// directories, the kvec log, and the HNSW dump all live beneath it.
	Dir string

	// FS is the filesystem capability used for directory listing, mkdir,
	// and unlink. Defaults to DefaultFS (the real filesystem).
	FS FS

	// MemtableFlushThreshold caps the projected in-memory memtable size
	// (payload bytes only; the eventual sstable's bloom filter and header
	// overhead are added on top) before a flush is forced. Defaults to
	// memtableMaxSize minus the per-sstable fixed overhead.
	MemtableFlushThreshold int

	// CacheBytes sizes the optional read-through value cache sitting in
	// front of sstable payload reads. Zero (the default) disables it.
	CacheBytes int

	// KvecFlushWorkers bounds the parallel kvec segment writer fan-out.
	KvecFlushWorkers int

	// HNSW parameters; see spec §4.F. Zero values are replaced with the
	// documented defaults.
	HNSWM              int
	HNSWMMax           int
	HNSWEfConstruction int
	HNSWML             int

	// DisableHNSW skips HNSW graph maintenance on PutVector/Del, leaving
	// SearchVector/SearchText to fall back to the brute-force kvec scan
	// (spec §4.G). Vector storage and retrieval by key are unaffected.
	DisableHNSW bool

	// Logger receives flush/compaction diagnostics. Defaults to a
	// discarding logger (nothing is logged unless the caller asks).
	Logger *log.Logger

	// Embed is the text -> vector function used by SearchText. It may be
	// left nil for stores that only ever query by vector directly.
	Embed EmbedFunc
}

func (o *Options) setDefaults() {
	if o.FS == nil {
		o.FS = DefaultFS
	}
	if o.MemtableFlushThreshold <= 0 {
		o.MemtableFlushThreshold = memtableMaxSize - bloomFilterBytes - sstableHeaderLen
	}
	if o.KvecFlushWorkers <= 0 {
		o.KvecFlushWorkers = defaultKvecFlushWorkers
	}
	if o.HNSWM <= 0 {
		o.HNSWM = defaultHNSWM
	}
	if o.HNSWMMax <= 0 {
		o.HNSWMMax = defaultHNSWMMax
	}
	if o.HNSWEfConstruction <= 0 {
		o.HNSWEfConstruction = defaultHNSWEfConstruct
	}
	if o.HNSWML <= 0 {
		o.HNSWML = defaultHNSWML
	}
	if o.Logger == nil {
		o.Logger = log.New(discard{}, "", 0)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
