package store

import (
	"math"
	"sort"
)

// fusedHit is one row of a fused ranking.
type fusedHit struct {
	rowid      int64
	score      float64
	vectorRank int // 1-based, 0 when the row only came from the text leg
}

// fuseRanks combines the vector and text rankings with reciprocal rank fusion:
// score = sum over legs of 1/(k + rank). Ties go to the better vector rank, then to the
// earlier row. At most limit hits are returned.
func fuseRanks(k float64, limit int, vector, text []int64) []fusedHit {
	hits := make(map[int64]*fusedHit, len(vector)+len(text))

	for i, rowid := range vector {
		hits[rowid] = &fusedHit{rowid: rowid, score: 1 / (k + float64(i+1)), vectorRank: i + 1}
	}
	for i, rowid := range text {
		h, ok := hits[rowid]
		if !ok {
			h = &fusedHit{rowid: rowid}
			hits[rowid] = h
		}
		h.score += 1 / (k + float64(i+1))
	}

	out := make([]fusedHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if ra, rb := rankOrMax(a.vectorRank), rankOrMax(b.vectorRank); ra != rb {
			return ra < rb
		}
		return a.rowid < b.rowid
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rankOrMax(rank int) int {
	if rank == 0 {
		return math.MaxInt
	}
	return rank
}
