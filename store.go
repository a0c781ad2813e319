package vkv

import (
	"math"
	"path/filepath"
)

// Record is a single (key, value) pair returned by Scan.
type Record struct {
	Key   uint64
	Value []byte
}

// Store is the top-level embedded key-value + vector store of spec §4.H,
// composing the LSM engine (A-D), the kvec table (E), and the HNSW index
// (F) behind a single API. Grounded on oarkflow/velocity's DB struct
// (velocity.go) for the shape of a composing top-level type, reworked
// around this spec's component boundaries instead of the teacher's
// encryption/WAL/master-key machinery.
type Store struct {
	opts  Options
	lsm   *lsm
	kvec  *kvecTable
	hnsw  *hnswGraph
	embed EmbedFunc
}

// Open constructs a Store over opts.Dir: it scans level-0..level-N,
// loads every sstable header into the per-level index, advances the
// timestamp watermark to the maximum observed, and loads any previously
// persisted kvec/HNSW state.
func Open(opts Options) (*Store, error) {
	opts.setDefaults()

	s := &Store{
		opts:  opts,
		lsm:   newLSM(opts.Dir, opts.FS, opts.MemtableFlushThreshold, opts.CacheBytes, opts.Logger),
		kvec:  newKvecTable(opts.KvecFlushWorkers),
		hnsw:  newHNSWGraph(opts.HNSWM, opts.HNSWMMax, opts.HNSWEfConstruction, opts.HNSWML),
		embed: opts.Embed,
	}

	if err := s.lsm.open(); err != nil {
		return nil, err
	}
	if err := s.kvec.loadFile(opts.FS, s.kvecDir()); err != nil {
		return nil, err
	}
	if err := s.hnsw.loadFile(opts.FS, s.hnswDir()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) kvecDir() string { return filepath.Join(s.opts.Dir, "embedding_data") }
func (s *Store) hnswDir() string { return filepath.Join(s.opts.Dir, "hnsw_data") }

// Put stores bytes under key in the LSM engine.
func (s *Store) Put(key uint64, value []byte) error {
	return s.lsm.put(key, value)
}

// PutVector stores vec under key in the kvec table and, unless disabled,
// the HNSW index. Rejects mismatched dimensions and non-finite components
// as InvalidInput without touching the LSM side (spec §7).
func (s *Store) PutVector(key uint64, vec []float32) error {
	if s.kvec.dim != 0 && len(vec) != s.kvec.dim {
		return invalidErr("vector dimension mismatch")
	}
	for _, f := range vec {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return invalidErr("vector contains NaN or Inf")
		}
	}
	s.kvec.put(key, vec)
	if !s.opts.DisableHNSW {
		s.hnsw.insert(key, vec)
	}
	return nil
}

// Get returns the stored bytes for key, or nil if absent or tombstoned.
func (s *Store) Get(key uint64) []byte {
	val, ok := s.lsm.get(key)
	if !ok {
		return nil
	}
	return val
}

// Del removes key: the LSM value is tombstoned (iff it was live) and the
// vector entry is always forwarded a delete, per spec §4.D.
func (s *Store) Del(key uint64) (bool, error) {
	had, err := s.lsm.del(key)
	if err != nil {
		return false, err
	}
	if vec := s.kvec.get(key); !isKvecDeleted(vec) {
		if !s.opts.DisableHNSW {
			s.hnsw.erase(key, vec)
		}
	}
	s.kvec.del(key)
	return had, nil
}

// Scan returns every live (key, value) with lo <= key <= hi, ascending.
func (s *Store) Scan(lo, hi uint64) ([]Record, error) {
	kvs, err := s.lsm.scan(lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(kvs))
	for i, e := range kvs {
		out[i] = Record{Key: e.key, Value: e.val}
	}
	return out, nil
}

// Reset clears the memtable, every level directory, the kvec table, and
// the HNSW graph.
func (s *Store) Reset() error {
	if err := s.lsm.reset(); err != nil {
		return err
	}
	if err := s.kvec.reset(s.opts.FS, s.kvecDir()); err != nil {
		return err
	}
	if err := s.opts.FS.RemoveAll(s.hnswDir()); err != nil {
		return ioErr("remove hnsw directory", err)
	}
	s.hnsw = newHNSWGraph(s.opts.HNSWM, s.opts.HNSWMMax, s.opts.HNSWEfConstruction, s.opts.HNSWML)
	return nil
}

// LoadEmbeddingFromDisk replays a kvec snapshot directory into the live
// vector state. This mirrors the original's destructive load semantics
// (spec §4.E/§9): the caller is expected to re-flush if persistence is
// still wanted, since the source files are unlinked as they're consumed.
func (s *Store) LoadEmbeddingFromDisk(path string) error {
	return s.kvec.loadFile(s.opts.FS, path)
}

// SearchVector returns up to k keys whose stored vector is closest to vec
// by cosine similarity, using the HNSW index when available and enabled,
// falling back to a brute-force scan over the kvec live set otherwise.
func (s *Store) SearchVector(vec []float32, k int) []uint64 {
	if !s.opts.DisableHNSW && s.hnsw.entryPoint != -1 {
		return s.hnsw.query(vec, k)
	}
	return bruteForceKNN(s.kvec, vec, k)
}

// SearchText embeds text via the configured EmbedFunc, then delegates to
// SearchVector.
func (s *Store) SearchText(text string, k int) ([]uint64, error) {
	if s.embed == nil {
		return nil, invalidErr("no EmbedFunc configured")
	}
	vec, err := s.embed(text)
	if err != nil {
		return nil, err
	}
	return s.SearchVector(vec, k), nil
}

// Close flushes the current memtable (if non-empty) to a new level-0
// sstable, runs compaction, and persists the kvec log and HNSW graph —
// the Go-idiomatic spelling of the original's implicit destructor
// persistence (SPEC_FULL §4.H). Embedding hosts that want this behavior
// must call it explicitly.
func (s *Store) Close() error {
	if err := s.lsm.flush(); err != nil {
		return err
	}
	if err := s.kvec.putFile(s.opts.FS, s.kvecDir()); err != nil {
		return err
	}
	if err := s.hnsw.putFile(s.opts.FS, s.hnswDir()); err != nil {
		return err
	}
	return nil
}
