package organism

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestBig5FromRows_OverridesOnlyMatchingCategory(t *testing.T) {
	fallback := domain.Big5{Openness: 50, Conscientiousness: 50, Extraversion: 50, Agreeableness: 50, Neuroticism: 50}
	rows := []domain.TraitRow{
		{Category: domain.TraitCategoryBigFive, Trait: "openness", Value: 80},
		{Category: domain.TraitCategoryBigFive, Trait: "neuroticism", Value: 20},
		{Category: domain.TraitCategoryValues, Trait: "honesty", Value: 90},
	}

	got := Big5FromRows(rows, fallback)

	require.Equal(t, 80, got.Openness)
	require.Equal(t, 20, got.Neuroticism)
	require.Equal(t, 50, got.Conscientiousness, "unrelated trait rows must not perturb other scales")
}

func TestBig5FromRows_EmptyRowsReturnsFallback(t *testing.T) {
	fallback := domain.Big5{Openness: 60, Conscientiousness: 60, Extraversion: 50, Agreeableness: 60, Neuroticism: 30}

	got := Big5FromRows(nil, fallback)

	require.Equal(t, fallback, got)
}

func TestCoreValueWeightsFromRows_NormalisesIntoUnitInterval(t *testing.T) {
	fallback := map[string]float64{"honesty": 0.7, "curiosity": 0.6}
	rows := []domain.TraitRow{
		{Category: domain.TraitCategoryValues, Trait: "honesty", Value: 90},
		{Category: domain.TraitCategoryBigFive, Trait: "openness", Value: 80},
	}

	got := CoreValueWeightsFromRows(rows, fallback)

	require.InDelta(t, 0.9, got["honesty"], 0.0001)
	require.InDelta(t, 0.6, got["curiosity"], 0.0001, "values absent from rows keep the fallback weight")
	require.NotContains(t, got, "openness", "BIG_FIVE rows must not leak into core_value_weights")
}

func TestCoreValueWeightsFromRows_AddsNewValueNotInFallback(t *testing.T) {
	rows := []domain.TraitRow{
		{Category: domain.TraitCategoryValues, Trait: "autonomy", Value: 75},
	}

	got := CoreValueWeightsFromRows(rows, map[string]float64{})

	require.InDelta(t, 0.75, got["autonomy"], 0.0001)
}
