package vkv

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// kvecDelSentinel is a vector of dim copies of the largest finite float32,
// the vector tombstone per spec §6.
func kvecDelSentinel(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.MaxFloat32
	}
	return v
}

func isKvecDeleted(v []float32) bool {
	for _, f := range v {
		if f != math.MaxFloat32 {
			return false
		}
	}
	return len(v) > 0
}

// kvecRecord is one logged (key, vec) pair, append-only.
type kvecRecord struct {
	key uint64
	vec []float32
}

// kvecTable is the append-only vector log of spec §4.E, grounded on
// original_source/lib/kvecTable/kvecTable.cpp: an in-memory log, a live-key
// set, and a sequence of on-disk segment files loaded destructively on
// open.
type kvecTable struct {
	dim     int
	log     []kvecRecord
	live    map[uint64]bool
	workers int
}

func newKvecTable(workers int) *kvecTable {
	return &kvecTable{live: make(map[uint64]bool), workers: workers}
}

func (t *kvecTable) put(key uint64, vec []float32) {
	if t.dim == 0 {
		t.dim = len(vec)
	}
	t.log = append(t.log, kvecRecord{key: key, vec: append([]float32(nil), vec...)})
	t.live[key] = true
}

func (t *kvecTable) del(key uint64) {
	delete(t.live, key)
	if t.dim == 0 {
		return
	}
	t.log = append(t.log, kvecRecord{key: key, vec: kvecDelSentinel(t.dim)})
}

// get checks the live-key set first and returns the delete sentinel
// immediately on a miss — matching the reference implementation's
// short-circuit exactly, before the in-memory log or any disk segment is
// touched (there are none to touch once putFile/loadFile round-trips, but
// the ordering is preserved regardless).
func (t *kvecTable) get(key uint64) []float32 {
	if !t.live[key] {
		return kvecDelSentinel(t.dim)
	}
	for i := len(t.log) - 1; i >= 0; i-- {
		if t.log[i].key == key {
			return t.log[i].vec
		}
	}
	return kvecDelSentinel(t.dim)
}

// liveKeys returns every key currently marked live, for brute-force scans.
func (t *kvecTable) liveKeys() []uint64 {
	keys := make([]uint64, 0, len(t.live))
	for k := range t.live {
		keys = append(keys, k)
	}
	return keys
}

func existingSegments(fs FS, root string) ([]int, error) {
	if !fs.Exists(root) {
		return nil, nil
	}
	names, err := fs.ReadDir(root)
	if err != nil {
		return nil, ioErr("list kvec segments", err)
	}
	var indices []int
	for _, name := range names {
		if !strings.HasSuffix(name, ".kvec") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".kvec"))
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)
	return indices, nil
}

// putFile splits the in-memory log into up to t.workers equal contiguous
// chunks and writes each to root/<next+i>.kvec in parallel, one errgroup
// goroutine per chunk, so at most t.workers writers run at once. putFile
// waits for every writer and returns the first write error, if any; the
// other writers are not cancelled, so segments they finish stay on disk
// (spec §5 / SPEC_FULL §5).
func (t *kvecTable) putFile(fs FS, root string) error {
	if len(t.log) == 0 || t.dim == 0 {
		return nil
	}
	if err := fs.MkdirAll(root); err != nil {
		return ioErr("create kvec directory", err)
	}

	existing, err := existingSegments(fs, root)
	if err != nil {
		return err
	}
	next := 0
	if len(existing) > 0 {
		next = existing[len(existing)-1] + 1
	}

	workers := t.workers
	if workers > len(t.log) {
		workers = len(t.log)
	}
	if workers < 1 {
		workers = 1
	}
	chunkSize := (len(t.log) + workers - 1) / workers

	g := &errgroup.Group{}
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		if start >= len(t.log) {
			break
		}
		end := start + chunkSize
		if end > len(t.log) {
			end = len(t.log)
		}
		chunk := t.log[start:end]
		segIndex := next + w
		g.Go(func() error {
			return writeKvecSegment(filepath.Join(root, fmt.Sprintf("%d.kvec", segIndex)), t.dim, chunk)
		})
	}
	return g.Wait()
}

func writeKvecSegment(path string, dim int, chunk []kvecRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return ioErr("create kvec segment", err)
	}
	defer f.Close()

	var dimBuf [8]byte
	binary.LittleEndian.PutUint64(dimBuf[:], uint64(dim))
	if _, err := f.Write(dimBuf[:]); err != nil {
		return ioErr("write kvec segment dim", err)
	}

	buf := make([]byte, 8+4*dim)
	for _, rec := range chunk {
		binary.LittleEndian.PutUint64(buf[0:8], rec.key)
		for i, v := range rec.vec {
			binary.LittleEndian.PutUint32(buf[8+4*i:12+4*i], math.Float32bits(v))
		}
		if _, err := f.Write(buf); err != nil {
			return ioErr("write kvec record", err)
		}
	}
	return nil
}

// loadFile lists segment files in root, sorts ascending by numeric name,
// replays each into the in-memory state, then unlinks the file — a
// deliberately destructive rotate-on-open snapshot per spec §4.E.
func (t *kvecTable) loadFile(fs FS, root string) error {
	indices, err := existingSegments(fs, root)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		path := filepath.Join(root, fmt.Sprintf("%d.kvec", idx))
		if err := t.replaySegment(path); err != nil {
			return err
		}
		if err := fs.Remove(path); err != nil {
			return ioErr("remove consumed kvec segment", err)
		}
	}
	return nil
}

func (t *kvecTable) replaySegment(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ioErr("read kvec segment", err)
	}
	if len(data) < 8 {
		return corruptErr("kvec segment missing dim prefix", nil)
	}
	dim := int(binary.LittleEndian.Uint64(data[0:8]))
	if t.dim == 0 {
		t.dim = dim
	}
	recSize := 8 + 4*dim
	for off := 8; off+recSize <= len(data); off += recSize {
		key := binary.LittleEndian.Uint64(data[off : off+8])
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+8+4*i : off+12+4*i]))
		}
		if isKvecDeleted(vec) {
			t.del(key)
		} else {
			t.put(key, vec)
		}
	}
	return nil
}

// reset clears in-memory state and deletes every file under root.
func (t *kvecTable) reset(fs FS, root string) error {
	t.log = nil
	t.live = make(map[uint64]bool)
	t.dim = 0
	if err := fs.RemoveAll(root); err != nil {
		return ioErr("remove kvec directory", err)
	}
	return nil
}
