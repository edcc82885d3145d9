package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOverLimit(t *testing.T) {
	require.True(t, overLimit(100, 100))
	require.True(t, overLimit(150, 100))
	require.False(t, overLimit(99, 100))
	require.False(t, overLimit(100, 0)) // limit <= 0 means unlimited
}

func TestFractionUsed(t *testing.T) {
	require.InDelta(t, 0.5, fractionUsed(50, 100), 1e-9)
	require.Equal(t, 0.0, fractionUsed(50, 0))
}

func TestEndOfDay_IsSameCalendarDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	end := endOfDay(now)
	require.Equal(t, now.Day(), end.Day())
	require.Equal(t, 23, end.Hour())
}

func TestEndOfMonth_RollsToLastDay(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	end := endOfMonth(now)
	require.Equal(t, time.February, end.Month())
	require.Equal(t, 28, end.Day()) // 2026 is not a leap year
}

func TestEndOfMonth_HandlesLeapYear(t *testing.T) {
	now := time.Date(2028, 2, 10, 9, 0, 0, 0, time.UTC)
	end := endOfMonth(now)
	require.Equal(t, 29, end.Day())
}

func TestSecondsUntil_NeverReturnsSubSecond(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	target := now.Add(500 * time.Millisecond)
	require.Equal(t, int64(60), secondsUntil(now, target))
}

func TestSecondsUntil_ReturnsRemainingDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	target := now.Add(time.Hour)
	require.Equal(t, int64(3600), secondsUntil(now, target))
}
