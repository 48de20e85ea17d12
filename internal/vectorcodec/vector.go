// Package vectorcodec packs and ranks 32-bit float embedding vectors without
// any dependency on an external vector engine.
package vectorcodec

import (
	"encoding/binary"
	"math"
	"sort"
)

// Pack serializes a float32 vector into little-endian bytes.
func Pack(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Unpack deserializes little-endian bytes back into a float32 vector.
func Unpack(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// L2Norm returns the Euclidean length of vec.
func L2Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity between a and b. Zero if either
// vector has zero norm.
func Cosine(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

// CosinePrecomputed is Cosine but reuses a precomputed norm for b, avoiding
// a re-scan of the stored vector on every comparison.
func CosinePrecomputed(query []float32, queryNorm float64, vec []float32, vecNorm float64) float64 {
	if queryNorm == 0 || vecNorm == 0 {
		return 0
	}
	n := len(query)
	if len(vec) < n {
		n = len(vec)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(query[i]) * float64(vec[i])
	}
	return dot / (queryNorm * vecNorm)
}

// ScoredItem is one candidate in a cosine ranking, keyed by an arbitrary
// comparable identifier (an observation id in practice).
type ScoredItem struct {
	ID    int64
	Score float64
}

// VectorRow is one stored row eligible for cosine ranking: a packed vector
// and its precomputed L2 norm.
type VectorRow struct {
	ID     int64
	Vector []byte
	Norm   float64
}

// RankCosine scores every row against query and returns the top `limit` by
// score descending, ties broken by ascending id. Rows with a zero norm or
// an empty vector are skipped.
func RankCosine(query []float32, rows []VectorRow, limit int) []ScoredItem {
	qNorm := L2Norm(query)
	out := make([]ScoredItem, 0, len(rows))
	for _, r := range rows {
		if r.Norm == 0 || len(r.Vector) == 0 {
			continue
		}
		vec := Unpack(r.Vector)
		score := CosinePrecomputed(query, qNorm, vec, r.Norm)
		out = append(out, ScoredItem{ID: r.ID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DefaultRRFK is the standard Reciprocal Rank Fusion smoothing constant.
const DefaultRRFK = 60

// RankRRF performs Reciprocal Rank Fusion over any number of ranked id
// lists. For each list, and each 0-based position r, the id at that
// position accumulates 1/(k+r+1). The fused ranking is sorted by
// accumulator descending, ties broken by ascending id. Empty input yields
// empty output.
func RankRRF(lists [][]int64, k int, limit int) []ScoredItem {
	if k <= 0 {
		k = DefaultRRFK
	}
	acc := make(map[int64]float64)
	order := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, list := range lists {
		for r, id := range list {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
			acc[id] += 1.0 / float64(k+r+1)
		}
	}
	out := make([]ScoredItem, 0, len(order))
	for _, id := range order {
		out = append(out, ScoredItem{ID: id, Score: acc[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RankRRFScored is a convenience wrapper accepting lists of already-scored
// items (e.g. ScoredItem slices from RankCosine) rather than bare ids.
// It is an alternate calling shape for the same rank_rrf contract; it does
// not change the semantics documented for RankRRF.
func RankRRFScored(lists [][]ScoredItem, k int, limit int) []ScoredItem {
	idLists := make([][]int64, len(lists))
	for i, list := range lists {
		ids := make([]int64, len(list))
		for j, it := range list {
			ids[j] = it.ID
		}
		idLists[i] = ids
	}
	return RankRRF(idLists, k, limit)
}
