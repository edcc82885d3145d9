package reasoning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestSurprise_NoRecallIsMaximallySurprising(t *testing.T) {
	require.Equal(t, 1.0, Surprise([]float32{1, 0}, 0, false))
}

func TestSurprise_CloseMatchIsLowSurprise(t *testing.T) {
	s := Surprise([]float32{1, 0}, 0.95, true)
	require.Less(t, s, SurpriseThreshold)
}

func TestSurprise_DistantMatchIsHighSurprise(t *testing.T) {
	s := Surprise([]float32{1, 0}, 0.1, true)
	require.Greater(t, s, SurpriseThreshold)
}

func TestBestSimilarity_PicksMaximum(t *testing.T) {
	episodes := []domain.ScoredEpisode{
		{Similarity: 0.2}, {Similarity: 0.8}, {Similarity: 0.5},
	}
	best, ok := bestSimilarity(episodes)
	require.True(t, ok)
	require.Equal(t, 0.8, best)
}

func TestBestSimilarity_EmptyIsFalse(t *testing.T) {
	_, ok := bestSimilarity(nil)
	require.False(t, ok)
}
