package search

import (
	"sort"

	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/domain/scope"
)

// rank turns raw backend hits into the final passage list:
// scope guard, dedup by identity (highest score wins), score desc with record id
// as tie-breaker, min score, limit. limit <= 0 keeps everything.
func rank(hits []passage.Passage, sc scope.Filter, minScore float64, limit int) []passage.Passage {
	index := make(map[passage.ID]int, len(hits))
	out := make([]passage.Passage, 0, len(hits))

	for _, p := range hits {
		if !sc.Admits(p.ID()) {
			continue
		}
		if i, ok := index[p.ID()]; ok {
			if p.Score() > out[i].Score() {
				out[i] = p
			}
			continue
		}
		index[p.ID()] = len(out)
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		return out[i].ID().RecordID() < out[j].ID().RecordID()
	})

	if minScore > 0 {
		filtered := out[:0]
		for _, p := range out {
			if p.Score() >= minScore {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// byChunk orders passages of one listing by document then chunk index.
func byChunk(ps []passage.Passage) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i].ID(), ps[j].ID()
		if a.DocumentKey() != b.DocumentKey() {
			return a.DocumentKey() < b.DocumentKey()
		}
		return a.ChunkIndex < b.ChunkIndex
	})
}
