package vkv

import "sort"

// EmbedFunc is the opaque text -> vector function spec §4.G treats as an
// external collaborator. The store never imports an embedding model
// itself (spec.md Non-goals); host applications plug in whatever backend
// they use.
type EmbedFunc func(text string) ([]float32, error)

// bruteForceKNN implements spec §4.G's fallback path: iterate every key in
// the kvec live set, compute cosine similarity to vec, and return the top
// k keys by similarity descending.
func bruteForceKNN(t *kvecTable, vec []float32, k int) []uint64 {
	type scored struct {
		key uint64
		sim float64
	}
	var scoredList []scored
	for _, key := range t.liveKeys() {
		candidate := t.get(key)
		if isKvecDeleted(candidate) {
			continue
		}
		scoredList = append(scoredList, scored{key: key, sim: cosineSimilarity(candidate, vec)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].sim > scoredList[j].sim })
	if k > len(scoredList) {
		k = len(scoredList)
	}
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = scoredList[i].key
	}
	return out
}
