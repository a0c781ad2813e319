package vkv

import (
	"encoding/binary"
	"os"
	"path/filepath"
)

// payloadBase returns the byte offset at which the value payload region
// begins for an sstable with n entries, per spec §4.B.
func payloadBase(n int) int64 {
	return int64(sstableHeaderLen) + bloomFilterBytes + int64(n)*12
}

// writeSSTable serializes kvs (already sorted ascending by key, one entry
// per key) to path using the teacher's atomic temp-file-then-rename
// pattern (grounded on oarkflow/velocity's NewSSTable), laid out exactly
// as spec §4.B describes: fixed header, fixed bloom filter, key/offset
// table, concatenated payload.
func writeSSTable(fs FS, path string, timestamp uint64, kvs []kv) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return ioErr("create temp sstable", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bf := newBloomFilter()
	for _, e := range kvs {
		bf.add(e.key)
	}

	var minKey, maxKey uint64
	if len(kvs) > 0 {
		minKey = kvs[0].key
		maxKey = kvs[len(kvs)-1].key
	}

	header := make([]byte, sstableHeaderLen)
	binary.LittleEndian.PutUint64(header[0:8], timestamp)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(kvs)))
	binary.LittleEndian.PutUint64(header[16:24], minKey)
	binary.LittleEndian.PutUint64(header[24:32], maxKey)
	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		return ioErr("write sstable header", err)
	}
	if _, err := tmp.Write(bf.marshal()); err != nil {
		tmp.Close()
		return ioErr("write sstable bloom", err)
	}

	offsetTable := make([]byte, 12*len(kvs))
	var offset uint32
	for i, e := range kvs {
		binary.LittleEndian.PutUint64(offsetTable[i*12:i*12+8], e.key)
		binary.LittleEndian.PutUint32(offsetTable[i*12+8:i*12+12], offset)
		offset += uint32(len(e.val))
	}
	if _, err := tmp.Write(offsetTable); err != nil {
		tmp.Close()
		return ioErr("write sstable offset table", err)
	}

	for _, e := range kvs {
		if _, err := tmp.Write(e.val); err != nil {
			tmp.Close()
			return ioErr("write sstable payload", err)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ioErr("sync sstable", err)
	}
	if err := tmp.Close(); err != nil {
		return ioErr("close sstable", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ioErr("install sstable", err)
	}
	return nil
}

// offsetEntry is one row of an sstable's key/offset table.
type offsetEntry struct {
	key    uint64
	offset uint32
}

// sstableHead is the in-memory projection of an sstable file described in
// spec §4.B/§4.C: header fields, bloom filter, and the key/offset table. It
// never materializes the payload.
type sstableHead struct {
	path      string
	timestamp uint64
	count     uint64
	minKey    uint64
	maxKey    uint64
	bloom     *bloomFilter
	offsets   []offsetEntry
	fileSize  int64
}

// loadSSTableHead reads and validates an sstable's header, bloom filter,
// and offset table from disk without touching the payload region.
func loadSSTableHead(path string) (*sstableHead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open sstable", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, ioErr("stat sstable", err)
	}
	size := stat.Size()
	if size < int64(sstableHeaderLen)+bloomFilterBytes {
		return nil, corruptErr("sstable smaller than fixed header+bloom region", nil)
	}

	header := make([]byte, sstableHeaderLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, ioErr("read sstable header", err)
	}

	bloomBytes := make([]byte, bloomFilterBytes)
	if _, err := f.ReadAt(bloomBytes, int64(sstableHeaderLen)); err != nil {
		return nil, ioErr("read sstable bloom", err)
	}
	bf, err := bloomFromBytes(bloomBytes)
	if err != nil {
		return nil, err
	}

	head := &sstableHead{
		path:      path,
		timestamp: binary.LittleEndian.Uint64(header[0:8]),
		count:     binary.LittleEndian.Uint64(header[8:16]),
		minKey:    binary.LittleEndian.Uint64(header[16:24]),
		maxKey:    binary.LittleEndian.Uint64(header[24:32]),
		bloom:     bf,
		fileSize:  size,
	}

	tableBytes := int64(head.count) * 12
	tableStart := int64(sstableHeaderLen) + bloomFilterBytes
	if tableStart+tableBytes > size {
		return nil, corruptErr("sstable offset table extends past end of file", nil)
	}
	table := make([]byte, tableBytes)
	if tableBytes > 0 {
		if _, err := f.ReadAt(table, tableStart); err != nil {
			return nil, ioErr("read sstable offset table", err)
		}
	}
	head.offsets = make([]offsetEntry, head.count)
	for i := range head.offsets {
		head.offsets[i].key = binary.LittleEndian.Uint64(table[i*12 : i*12+8])
		head.offsets[i].offset = binary.LittleEndian.Uint32(table[i*12+8 : i*12+12])
	}

	if err := validateHead(head); err != nil {
		return nil, err
	}
	return head, nil
}

// validateHead checks the self-described header against its own offset
// table: strictly ascending keys, min/max matching the first/last entry,
// and monotonically non-decreasing value offsets. This is the mechanism
// behind spec §7's CorruptSegment error kind.
func validateHead(h *sstableHead) error {
	if h.count == 0 {
		if h.minKey != 0 || h.maxKey != 0 {
			return corruptErr("empty sstable with non-zero min/max", nil)
		}
		return nil
	}
	if h.offsets[0].key != h.minKey {
		return corruptErr("sstable minKey does not match first table entry", nil)
	}
	if h.offsets[len(h.offsets)-1].key != h.maxKey {
		return corruptErr("sstable maxKey does not match last table entry", nil)
	}
	for i := 1; i < len(h.offsets); i++ {
		if h.offsets[i].key <= h.offsets[i-1].key {
			return corruptErr("sstable keys not strictly ascending", nil)
		}
		if h.offsets[i].offset < h.offsets[i-1].offset {
			return corruptErr("sstable value offsets not monotonic", nil)
		}
	}
	base := payloadBase(int(h.count))
	if base > h.fileSize {
		return corruptErr("sstable payload region missing", nil)
	}
	return nil
}

// lookup returns (offset, length, true) for key within this head's key
// range whose bloom filter may contain it, or (0, 0, false) otherwise. It
// performs a binary search over the strictly ascending offset table.
func (h *sstableHead) lookup(key uint64) (offset uint32, length uint32, ok bool) {
	if h.count == 0 || key < h.minKey || key > h.maxKey {
		return 0, 0, false
	}
	if !h.bloom.mayContain(key) {
		return 0, 0, false
	}
	lo, hi := 0, len(h.offsets)
	for lo < hi {
		mid := (lo + hi) / 2
		if h.offsets[mid].key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(h.offsets) || h.offsets[lo].key != key {
		return 0, 0, false
	}
	start := h.offsets[lo].offset
	var end uint32
	if lo == len(h.offsets)-1 {
		end = uint32(h.fileSize - payloadBase(int(h.count)))
	} else {
		end = h.offsets[lo+1].offset
	}
	return start, end - start, true
}

// readValue reads the value bytes for a prior lookup() result, consulting
// and populating cache first when one is configured.
func (h *sstableHead) readValue(offset, length uint32, cache *valueCache) ([]byte, error) {
	if v, ok := cache.get(h.path, offset); ok {
		return v, nil
	}

	f, err := os.Open(h.path)
	if err != nil {
		return nil, ioErr("open sstable for read", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	at := payloadBase(int(h.count)) + int64(offset)
	if length > 0 {
		if _, err := f.ReadAt(buf, at); err != nil {
			return nil, ioErr("read sstable value", err)
		}
	}
	cache.put(h.path, offset, buf)
	return buf, nil
}

// scan returns every (key, value) with k1 <= key <= k2 present in this
// head, ascending. Used by the engine's scan merge.
func (h *sstableHead) scan(k1, k2 uint64) ([]kv, error) {
	if h.count == 0 || k2 < h.minKey || k1 > h.maxKey {
		return nil, nil
	}
	lo := 0
	for lo < len(h.offsets) && h.offsets[lo].key < k1 {
		lo++
	}
	var out []kv
	f, err := os.Open(h.path)
	if err != nil {
		return nil, ioErr("open sstable for scan", err)
	}
	defer f.Close()
	base := payloadBase(int(h.count))
	for i := lo; i < len(h.offsets) && h.offsets[i].key <= k2; i++ {
		start := h.offsets[i].offset
		var end uint32
		if i == len(h.offsets)-1 {
			end = uint32(h.fileSize - base)
		} else {
			end = h.offsets[i+1].offset
		}
		buf := make([]byte, end-start)
		if len(buf) > 0 {
			if _, err := f.ReadAt(buf, base+int64(start)); err != nil {
				return nil, ioErr("read sstable scan value", err)
			}
		}
		out = append(out, kv{key: h.offsets[i].key, val: buf})
	}
	return out, nil
}

// readAll materializes every record in this head, used by compaction's
// victim merge.
func (h *sstableHead) readAll() ([]kv, error) {
	return h.scan(h.minKey, h.maxKey)
}
