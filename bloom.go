package vkv

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// bloomFilter is a fixed-size bitset sized exactly as the on-disk sstable
// format requires: bloomFilterBytes bytes (81,920 bits). Four independent
// 32-bit lanes are derived from a single blake2b-256 digest of the key and
// each sets one bit. golang.org/x/crypto is already a dependency pulled in
// for the teacher's encryption primitives; this reuses the same module for
// a hashing concern instead of adding a new one.
type bloomFilter struct {
	bits [bloomFilterBytes]byte
}

const bloomBitCount = bloomFilterBytes * 8

func newBloomFilter() *bloomFilter {
	return &bloomFilter{}
}

func bloomLanes(key uint64) [4]uint32 {
	var kb [8]byte
	binary.LittleEndian.PutUint64(kb[:], key)
	digest := blake2b.Sum256(kb[:])

	var lanes [4]uint32
	for i := range lanes {
		lanes[i] = binary.LittleEndian.Uint32(digest[i*4 : i*4+4])
	}
	return lanes
}

func (bf *bloomFilter) add(key uint64) {
	for _, lane := range bloomLanes(key) {
		bit := lane % bloomBitCount
		bf.bits[bit/8] |= 1 << (bit % 8)
	}
}

// mayContain reports whether key could be present. A false result is
// authoritative (the key is definitely absent); a true result may be a
// false positive.
func (bf *bloomFilter) mayContain(key uint64) bool {
	for _, lane := range bloomLanes(key) {
		bit := lane % bloomBitCount
		if bf.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) marshal() []byte {
	out := make([]byte, bloomFilterBytes)
	copy(out, bf.bits[:])
	return out
}

func bloomFromBytes(b []byte) (*bloomFilter, error) {
	if len(b) != bloomFilterBytes {
		return nil, corruptErr("bloom filter size mismatch", nil)
	}
	bf := newBloomFilter()
	copy(bf.bits[:], b)
	return bf, nil
}
