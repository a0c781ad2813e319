// Package vkv is an embedded key-value store with a parallel vector index.
//
// It durably stores a totally ordered map from uint64 keys to opaque byte
// values in a log-structured merge tree (memtable + leveled sstables), and
// maintains a second, append-only log mapping the same keys to fixed-width
// float32 vectors, searchable either by brute-force cosine scan or through
// an HNSW approximate nearest-neighbor graph.
//
// vkv is a library for a single host process with a local filesystem. It
// does not coordinate multiple writers, does not replicate, and does not
// speak a network protocol.
package vkv
