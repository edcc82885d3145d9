package triggers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestScheduledCheckIn_BelowThresholdIsNil(t *testing.T) {
	now := time.Now()
	c := scheduledCheckIn(now, now.Add(-time.Hour), 18*time.Hour)
	require.Nil(t, c)
}

func TestScheduledCheckIn_ScoresAboveThreshold(t *testing.T) {
	now := time.Now()
	c := scheduledCheckIn(now, now.Add(-36*time.Hour), 18*time.Hour)
	require.NotNil(t, c)
	require.Equal(t, domain.TriggerScheduledCheckIn, c.Kind)
	require.InDelta(t, 1.0, c.Score, 1e-9)
}

func TestScheduledCheckIn_ZeroLastInteractionIsNil(t *testing.T) {
	c := scheduledCheckIn(time.Now(), time.Time{}, 18*time.Hour)
	require.Nil(t, c)
}

func TestStateDriven_BelowFloorIsNil(t *testing.T) {
	state := domain.OrganismState{Fast: domain.FastState{SocialNeed: 0.3}}
	require.Nil(t, stateDriven(time.Now(), state, 0.6))
}

func TestStateDriven_AboveFloorScores(t *testing.T) {
	state := domain.OrganismState{Fast: domain.FastState{SocialNeed: 0.9}}
	c := stateDriven(time.Now(), state, 0.6)
	require.NotNil(t, c)
	require.Equal(t, domain.TriggerStateDriven, c.Kind)
	require.Greater(t, c.Score, 0.0)
}

func TestMemoryResurface_PicksHighestScoringEligibleEpisode(t *testing.T) {
	now := time.Now()
	episodes := []domain.Episode{
		{ID: "too-recent", Strength: 0.95, CreatedAt: now.Add(-time.Hour)},
		{ID: "old-weak", Strength: 0.1, CreatedAt: now.Add(-200 * time.Hour)},
		{ID: "old-strong", Strength: 0.9, CreatedAt: now.Add(-200 * time.Hour)},
	}
	c := memoryResurface(now, episodes, 72*time.Hour)
	require.NotNil(t, c)
	require.Equal(t, "old-strong", c.EpisodeID)
}

func TestMemoryResurface_NoEligibleEpisodesIsNil(t *testing.T) {
	now := time.Now()
	episodes := []domain.Episode{{ID: "a", Strength: 0.9, CreatedAt: now}}
	require.Nil(t, memoryResurface(now, episodes, 72*time.Hour))
}

func TestParsePresenceSchedule_ParsesValidWindows(t *testing.T) {
	windows, bad := parsePresenceSchedule([]string{"09:00-21:00", "22:00-06:00"})
	require.Len(t, windows, 2)
	require.Empty(t, bad)
}

func TestParsePresenceSchedule_ReportsMalformedEntries(t *testing.T) {
	windows, bad := parsePresenceSchedule([]string{"not-a-window", "09:00-21:00"})
	require.Len(t, windows, 1)
	require.Equal(t, []string{"not-a-window"}, bad)
}

func TestWithinPresence_EmptyScheduleAlwaysTrue(t *testing.T) {
	e := &Evaluator{}
	require.True(t, e.withinPresence(time.Now()))
}

func TestWithinPresence_RespectsOrdinaryWindow(t *testing.T) {
	e := &Evaluator{Presence: []presenceWindow{{start: 9 * time.Hour, end: 21 * time.Hour}}}
	noon := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	require.True(t, e.withinPresence(noon))
	require.False(t, e.withinPresence(midnight))
}

func TestWithinPresence_RespectsMidnightWrappingWindow(t *testing.T) {
	e := &Evaluator{Presence: []presenceWindow{{start: 22 * time.Hour, end: 6 * time.Hour}}}
	lateNight := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	require.True(t, e.withinPresence(lateNight))
	require.True(t, e.withinPresence(earlyMorning))
	require.False(t, e.withinPresence(midday))
}

func TestCooldownFor_UnknownKindDefaultsToOneHour(t *testing.T) {
	e := &Evaluator{}
	require.Equal(t, time.Hour, e.cooldownFor(domain.TriggerKind("unknown")))
}
