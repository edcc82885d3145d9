package memory

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"mneme/internal/domain"
)

// VectorIndex is the caller-facing similarity search contract. Callers never
// choose the subsystem (spec.md §4.2): when the configured backend is
// pgvector, it delegates to the ANN path; otherwise it falls back to a
// bounded linear scan over every stored episode using gonum for the cosine
// similarity arithmetic.
type VectorIndex struct {
	episodes EpisodicRepository
	backend  string // "pgvector" | "linear_scan"
	maxScan  int
}

func NewVectorIndex(episodes EpisodicRepository, backend string, maxScan int) *VectorIndex {
	if maxScan <= 0 {
		maxScan = 5000
	}
	return &VectorIndex{episodes: episodes, backend: backend, maxScan: maxScan}
}

func (v *VectorIndex) Search(ctx context.Context, queryEmbedding []float32, k int) ([]domain.ScoredEpisode, error) {
	if v.backend == "pgvector" {
		return v.episodes.SearchByEmbedding(ctx, queryEmbedding, k)
	}
	return v.linearScan(ctx, queryEmbedding, k)
}

// linearScan is the bounded fallback used when no ANN index is configured,
// or when it is rebuilding after a crash (spec.md §4.2 "crash-safe
// reindexing" — the index itself is derivative of the episodes table, so a
// crash mid-rebuild just means the next search recomputes from source).
func (v *VectorIndex) linearScan(ctx context.Context, queryEmbedding []float32, k int) ([]domain.ScoredEpisode, error) {
	all, err := v.episodes.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: linear scan source read: %w", err)
	}
	if len(all) > v.maxScan {
		all = all[len(all)-v.maxScan:] // bound the scan to the most recent N
	}

	scored := make([]domain.ScoredEpisode, 0, len(all))
	for _, ep := range all {
		if len(ep.Embedding) == 0 {
			continue
		}
		scored = append(scored, domain.ScoredEpisode{Episode: ep, Similarity: cosineSimilarity(queryEmbedding, ep.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// cosineSimilarity uses gonum's floats package for the dot product and norm
// reductions rather than hand-rolled loops.
func cosineSimilarity(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	af := make([]float64, n)
	bf := make([]float64, n)
	for i := 0; i < n; i++ {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}
	dot := floats.Dot(af, bf)
	normA := floats.Norm(af, 2)
	normB := floats.Norm(bf, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}
