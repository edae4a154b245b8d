package vectordb

import (
	"fmt"
	"math"
	"sort"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is 1 - cosine similarity, in [0, 2]. Lower is closer.
func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// storedEntry is an index entry with its assigned ID and insertion position.
type storedEntry struct {
	id       string
	position int
	entry    entities.IndexEntry
}

// rankByDistance scores entries against query and keeps the k closest.
// Entries must be in insertion order; ties keep that order.
func rankByDistance(query []float32, entries []storedEntry, k int) []entities.RetrievalResult {
	if k <= 0 || len(entries) == 0 {
		return []entities.RetrievalResult{}
	}

	type scored struct {
		e    storedEntry
		dist float64
	}
	results := make([]scored, len(entries))
	for i, e := range entries {
		results[i] = scored{e: e, dist: cosineDistance(query, e.entry.Vector)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].dist < results[j].dist
	})

	if len(results) > k {
		results = results[:k]
	}

	out := make([]entities.RetrievalResult, len(results))
	for i, r := range results {
		dist := r.dist
		out[i] = entities.RetrievalResult{
			ID:       r.e.id,
			Text:     r.e.entry.Text,
			Metadata: r.e.entry.Metadata,
			Distance: &dist,
		}
	}
	return out
}

// checkDimensions rejects vectors that do not match the configured dimension.
// dims <= 0 only requires the batch to agree with itself.
func checkDimensions(entries []entities.IndexEntry, dims int) error {
	for i, e := range entries {
		if dims <= 0 {
			dims = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dims {
			return fmt.Errorf("%w: entry %d has %d dimensions, index expects %d",
				entities.ErrConfiguration, i, len(e.Vector), dims)
		}
	}
	return nil
}
