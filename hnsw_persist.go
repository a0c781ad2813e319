package vkv

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// putFile dumps the graph to root, matching the byte layout of
// original_source/lib/hnsw/hnsw.cpp exactly: a global header, the
// tombstone list, then one subdirectory per node holding its header and
// per-layer edge lists. Any pre-existing directory contents are removed
// first, per spec §4.F.
func (g *hnswGraph) putFile(fs FS, root string) error {
	if err := fs.RemoveAll(root); err != nil {
		return ioErr("clear hnsw directory", err)
	}
	if err := fs.MkdirAll(root); err != nil {
		return ioErr("create hnsw directory", err)
	}

	header := make([]byte, 28)
	binary.LittleEndian.PutUint32(header[0:4], uint32(g.m))
	binary.LittleEndian.PutUint32(header[4:8], uint32(g.mMax))
	binary.LittleEndian.PutUint32(header[8:12], uint32(g.efConstruct))
	binary.LittleEndian.PutUint32(header[12:16], uint32(g.mL))
	binary.LittleEndian.PutUint32(header[16:20], uint32(int32(g.topLayer))) // -1 (empty graph) -> 0xFFFFFFFF
	binary.LittleEndian.PutUint32(header[20:24], uint32(len(g.nodes)))
	binary.LittleEndian.PutUint32(header[24:28], uint32(g.dim))
	if err := os.WriteFile(filepath.Join(root, "global_header.bin"), header, 0o644); err != nil {
		return ioErr("write hnsw global header", err)
	}

	del := make([]byte, 0, len(g.tombstones)*(8+4*g.dim))
	for _, t := range g.tombstones {
		var rec [8]byte
		binary.LittleEndian.PutUint64(rec[:], t.key)
		del = append(del, rec[:]...)
		del = append(del, floatsToBytes(t.vec)...)
	}
	if err := os.WriteFile(filepath.Join(root, "deleted_nodes.bin"), del, 0o644); err != nil {
		return ioErr("write hnsw tombstones", err)
	}

	nodesDir := filepath.Join(root, "nodes")
	for i, n := range g.nodes {
		nodeDir := filepath.Join(nodesDir, fmt.Sprintf("%d", i))
		if err := fs.MkdirAll(nodeDir); err != nil {
			return ioErr("create hnsw node directory", err)
		}

		nh := make([]byte, 4+8)
		binary.LittleEndian.PutUint32(nh[0:4], uint32(n.maxLayer))
		binary.LittleEndian.PutUint64(nh[4:12], n.key)
		nh = append(nh, floatsToBytes(n.vec)...)
		if err := os.WriteFile(filepath.Join(nodeDir, "header.bin"), nh, 0o644); err != nil {
			return ioErr("write hnsw node header", err)
		}

		edgesDir := filepath.Join(nodeDir, "edges")
		if err := fs.MkdirAll(edgesDir); err != nil {
			return ioErr("create hnsw edges directory", err)
		}
		for layer := 0; layer <= n.maxLayer; layer++ {
			neighbors := n.neighbors[layer]
			buf := make([]byte, 4+4*len(neighbors))
			binary.LittleEndian.PutUint32(buf[0:4], uint32(len(neighbors)))
			for i, nb := range neighbors {
				binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], nb)
			}
			path := filepath.Join(edgesDir, fmt.Sprintf("%d.bin", layer))
			if err := os.WriteFile(path, buf, 0o644); err != nil {
				return ioErr("write hnsw edge list", err)
			}
		}
	}
	return nil
}

// loadFile is the inverse of putFile; after loading, the directory is
// cleared, per spec §4.F.
func (g *hnswGraph) loadFile(fs FS, root string) error {
	if !fs.Exists(root) {
		return nil
	}
	headerBytes, err := os.ReadFile(filepath.Join(root, "global_header.bin"))
	if err != nil {
		return ioErr("read hnsw global header", err)
	}
	if len(headerBytes) < 28 {
		return corruptErr("hnsw global header truncated", nil)
	}
	g.m = int(binary.LittleEndian.Uint32(headerBytes[0:4]))
	g.mMax = int(binary.LittleEndian.Uint32(headerBytes[4:8]))
	g.efConstruct = int(binary.LittleEndian.Uint32(headerBytes[8:12]))
	g.mL = float64(binary.LittleEndian.Uint32(headerBytes[12:16]))
	g.topLayer = int(int32(binary.LittleEndian.Uint32(headerBytes[16:20])))
	nodeCount := int(binary.LittleEndian.Uint32(headerBytes[20:24]))
	g.dim = int(binary.LittleEndian.Uint32(headerBytes[24:28]))

	delBytes, err := os.ReadFile(filepath.Join(root, "deleted_nodes.bin"))
	if err != nil {
		return ioErr("read hnsw tombstones", err)
	}
	recSize := 8 + 4*g.dim
	g.tombstones = nil
	for off := 0; off+recSize <= len(delBytes); off += recSize {
		key := binary.LittleEndian.Uint64(delBytes[off : off+8])
		vec := bytesToFloats(delBytes[off+8:off+recSize], g.dim)
		g.tombstones = append(g.tombstones, kvPair{key: key, vec: vec})
	}

	g.nodes = make([]hnswNode, nodeCount)
	g.entryPoint = -1
	for i := 0; i < nodeCount; i++ {
		nodeDir := filepath.Join(root, "nodes", fmt.Sprintf("%d", i))
		nh, err := os.ReadFile(filepath.Join(nodeDir, "header.bin"))
		if err != nil {
			return ioErr("read hnsw node header", err)
		}
		if len(nh) < 12+4*g.dim {
			return corruptErr("hnsw node header truncated", nil)
		}
		maxLayer := int(binary.LittleEndian.Uint32(nh[0:4]))
		key := binary.LittleEndian.Uint64(nh[4:12])
		vec := bytesToFloats(nh[12:12+4*g.dim], g.dim)

		neighbors := make([][]uint32, maxLayer+1)
		for layer := 0; layer <= maxLayer; layer++ {
			path := filepath.Join(nodeDir, "edges", fmt.Sprintf("%d.bin", layer))
			eb, err := os.ReadFile(path)
			if err != nil {
				return ioErr("read hnsw edge list", err)
			}
			if len(eb) < 4 {
				return corruptErr("hnsw edge list truncated", nil)
			}
			count := int(binary.LittleEndian.Uint32(eb[0:4]))
			ns := make([]uint32, count)
			for j := 0; j < count; j++ {
				ns[j] = binary.LittleEndian.Uint32(eb[4+4*j : 8+4*j])
			}
			neighbors[layer] = ns
		}

		g.nodes[i] = hnswNode{key: key, vec: vec, maxLayer: maxLayer, neighbors: neighbors}
	}

	// The original never persists entry_point and reloads it as -1, which
	// would strand every subsequent query (loadFile is always followed by
	// queries here). The HNSW invariant ties entry_point to whichever node
	// last raised top_layer, i.e. any node with maxLayer == topLayer, so
	// that node is recovered deterministically instead.
	for i := range g.nodes {
		if g.nodes[i].maxLayer == g.topLayer {
			g.entryPoint = i
			break
		}
	}

	return fs.RemoveAll(root)
}

func floatsToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:4*i+4], math.Float32bits(f))
	}
	return buf
}

func bytesToFloats(b []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i : 4*i+4]))
	}
	return out
}
