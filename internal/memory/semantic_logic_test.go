package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlendConfidence_MovesPartwayTowardFresh(t *testing.T) {
	blended := blendConfidence(0.8, 0.2)
	require.Less(t, blended, 0.8)
	require.Greater(t, blended, 0.2)
}

func TestDiscount_ReducesConfidenceAndClamps(t *testing.T) {
	require.InDelta(t, 0.65, discount(0.8), 1e-9)
	require.Equal(t, 0.0, discount(0.05))
}

func TestClamp01_Bounds(t *testing.T) {
	require.Equal(t, 0.0, clamp01(-1))
	require.Equal(t, 1.0, clamp01(2))
	require.Equal(t, 0.5, clamp01(0.5))
}
