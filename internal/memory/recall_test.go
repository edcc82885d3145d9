package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

type fakeEpisodic struct {
	episodes []domain.Episode
}

func (f *fakeEpisodic) Insert(ctx context.Context, ep domain.Episode) error {
	f.episodes = append(f.episodes, ep)
	return nil
}

func (f *fakeEpisodic) UpdateStrength(ctx context.Context, id string, strength float64) error {
	for i := range f.episodes {
		if f.episodes[i].ID == id {
			f.episodes[i].Strength = strength
		}
	}
	return nil
}

func (f *fakeEpisodic) Recent(ctx context.Context, limit int) ([]domain.Episode, error) {
	if limit > len(f.episodes) {
		limit = len(f.episodes)
	}
	return f.episodes[:limit], nil
}

func (f *fakeEpisodic) All(ctx context.Context) ([]domain.Episode, error) {
	return f.episodes, nil
}

func (f *fakeEpisodic) SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]domain.ScoredEpisode, error) {
	idx := NewVectorIndex(f, "linear_scan", 0)
	return idx.linearScan(ctx, embedding, k)
}

func episode(id, body string, embedding []float32, strength, valence float64) domain.Episode {
	return domain.Episode{
		ID: id, Body: body, Embedding: embedding, Strength: strength, Valence: valence,
		Timestamp: time.Now(), CreatedAt: time.Now(),
	}
}

func TestRecall_ExcludesForgottenEpisodes(t *testing.T) {
	repo := &fakeEpisodic{episodes: []domain.Episode{
		episode("1", "about X", []float32{1, 0, 0}, 0.9, 0),
		episode("2", "about X but faded", []float32{1, 0, 0}, 0.01, 0), // below floor
	}}
	idx := NewVectorIndex(repo, "linear_scan", 0)
	mem := NewMemory(repo, nil, nil, nil, nil, idx, 0.05, 5)

	result, err := mem.Recall(context.Background(), []float32{1, 0, 0}, 0, "", "")
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)
	require.Equal(t, "1", result.Episodes[0].Episode.ID)
}

func TestRecall_MoodBiasFavorsCongruentTone(t *testing.T) {
	repo := &fakeEpisodic{episodes: []domain.Episode{
		episode("pos1", "good memory", []float32{1, 0, 0}, 0.8, 0.9),
		episode("pos2", "good memory 2", []float32{1, 0, 0}, 0.8, 0.9),
		episode("neg1", "bad memory", []float32{1, 0, 0}, 0.8, -0.9),
		episode("neg2", "bad memory 2", []float32{1, 0, 0}, 0.8, -0.9),
		episode("neg3", "bad memory 3", []float32{1, 0, 0}, 0.8, -0.9),
	}}
	idx := NewVectorIndex(repo, "linear_scan", 0)
	mem := NewMemory(repo, nil, nil, nil, nil, idx, 0.0, 5)

	result, err := mem.Recall(context.Background(), []float32{1, 0, 0}, -0.6, "", "")
	require.NoError(t, err)

	negCount := 0
	for _, se := range result.Episodes[:3] {
		if se.Episode.Valence < 0 {
			negCount++
		}
	}
	require.GreaterOrEqual(t, negCount, 3)
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsScoreZero(t *testing.T) {
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_ZeroVectorIsZero(t *testing.T) {
	require.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestVectorIndex_LinearScan_BoundsToMaxScan(t *testing.T) {
	episodes := make([]domain.Episode, 20)
	for i := range episodes {
		episodes[i] = episode(string(rune('a'+i)), "x", []float32{1, 0}, 1, 0)
	}
	repo := &fakeEpisodic{episodes: episodes}
	idx := NewVectorIndex(repo, "linear_scan", 5)

	result, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, result, 3)
	for _, se := range result {
		require.GreaterOrEqual(t, se.Episode.ID, "p", "only the 5 most recent episodes (p..t) are scanned")
	}
}
