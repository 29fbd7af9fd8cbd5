package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/heistctf/models"
)

func TestCalculateChallengeXP(t *testing.T) {
	e := NewEngine(DefaultConfig())
	tests := []struct {
		name string
		in   XPInput
		want int64
	}{
		{"every factor", XPInput{BasePoints: 100, FirstBlood: true, SolveSeconds: 120, StreakCount: 3, HasTeam: true}, 207},
		{"no factor", XPInput{BasePoints: 100, SolveSeconds: 900}, 100},
		{"first blood", XPInput{BasePoints: 100, FirstBlood: true}, 150},
		{"speed just under", XPInput{BasePoints: 100, SolveSeconds: 299}, 120},
		{"speed boundary excluded", XPInput{BasePoints: 100, SolveSeconds: 300}, 100},
		{"unknown solve time", XPInput{BasePoints: 100, SolveSeconds: 0}, 100},
		{"streak below minimum", XPInput{BasePoints: 100, StreakCount: 2}, 100},
		{"streak", XPInput{BasePoints: 100, StreakCount: 3}, 110},
		{"team", XPInput{BasePoints: 100, HasTeam: true}, 105},
		{"floors", XPInput{BasePoints: 33, HasTeam: true}, 34},
		{"zero base", XPInput{BasePoints: 0, FirstBlood: true}, 0},
		{"negative base", XPInput{BasePoints: -50, FirstBlood: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CalculateChallengeXP(tt.in))
		})
	}
}

func TestLevelForXP(t *testing.T) {
	e := NewEngine(DefaultConfig())

	assert.Equal(t, int64(100), e.Threshold(1))
	assert.Equal(t, int64(282), e.Threshold(2))
	assert.Equal(t, int64(519), e.Threshold(3))
	assert.Equal(t, int64(800), e.Threshold(4))
	assert.Equal(t, int64(100000), e.Threshold(100))

	tests := []struct {
		xp   int64
		want LevelProgress
	}{
		{0, LevelProgress{Level: 1, XP: 0, XPIntoLevel: 0, XPToNext: 282, LevelSpan: 282}},
		{-40, LevelProgress{Level: 1, XP: 0, XPIntoLevel: 0, XPToNext: 282, LevelSpan: 282}},
		{100, LevelProgress{Level: 1, XP: 100, XPIntoLevel: 0, XPToNext: 182, LevelSpan: 182}},
		{282, LevelProgress{Level: 2, XP: 282, XPIntoLevel: 0, XPToNext: 237, LevelSpan: 237}},
		{600, LevelProgress{Level: 3, XP: 600, XPIntoLevel: 81, XPToNext: 200, LevelSpan: 281}},
		{100000, LevelProgress{Level: 100, XP: 100000}},
		{5_000_000, LevelProgress{Level: 100, XP: 5_000_000, XPIntoLevel: 4_900_000}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.LevelForXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestLevelForXPMonotone(t *testing.T) {
	e := NewEngine(DefaultConfig())
	prev := e.LevelForXP(0).Level
	for xp := int64(0); xp <= 120000; xp += 37 {
		l := e.LevelForXP(xp).Level
		require.GreaterOrEqual(t, l, prev, "xp=%d", xp)
		require.GreaterOrEqual(t, l, 1)
		require.LessOrEqual(t, l, 100)
		prev = l
	}
}

func TestNextLevels(t *testing.T) {
	e := NewEngine(DefaultConfig())
	got := e.NextLevels(0, 3)
	assert.Equal(t, []LevelStep{
		{Level: 2, XPRequired: 282, XPRemaining: 282},
		{Level: 3, XPRequired: 519, XPRemaining: 519},
		{Level: 4, XPRequired: 800, XPRemaining: 800},
	}, got)
	assert.Empty(t, e.NextLevels(100000, 5))
}

func TestUpdateStreak(t *testing.T) {
	e := NewEngine(DefaultConfig())
	day := func(d, h int) time.Time { return time.Date(2026, 3, d, h, 0, 0, 0, time.UTC) }
	now := day(10, 15)

	tests := []struct {
		name      string
		times     []time.Time
		want      int
		wantBroke bool
	}{
		{"no solves", nil, 0, false},
		{"today only", []time.Time{day(10, 9)}, 1, false},
		{"same day ignored", []time.Time{day(10, 10), day(10, 8), day(9, 22)}, 2, false},
		{"gap stops walk", []time.Time{day(10, 10), day(9, 8), day(8, 1), day(6, 5)}, 3, true},
		{"ending yesterday still alive", []time.Time{day(9, 10), day(8, 10)}, 2, false},
		{"stale", []time.Time{day(7, 10), day(6, 10)}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broke := e.UpdateStreak(tt.times, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantBroke, broke)
		})
	}
}

func TestUpdateStreakUsesConfiguredLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("UTC-5", -5*3600)
	e := NewEngine(cfg)

	// 03:00 UTC on the 10th is still the 9th at UTC-5
	times := []time.Time{
		time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	got, _ := e.UpdateStreak(times, now)
	assert.Equal(t, 1, got)

	utc, _ := NewEngine(DefaultConfig()).UpdateStreak(times, now)
	assert.Equal(t, 2, utc)
}

func TestCheckBadges(t *testing.T) {
	e := NewEngine(DefaultConfig())
	st := BadgeState{
		Owned:         map[string]struct{}{BadgeFirstSolve: {}},
		CurrentStreak: 7,
		Stats: models.SubmissionStats{
			CorrectSolves:  12,
			FirstBloods:    2,
			SpeedSolves:    4,
			NoHintSolves:   10,
			TeamSolves:     9,
			CategorySolved: map[string]int{"web": 2},
			CategoryTotals: map[string]int{"web": 2, "pwn": 3},
		},
	}

	got := e.CheckBadges(st)
	assert.Equal(t, []string{BadgeCategoryMaster, BadgePerfectionist, BadgeStreakMaster}, got)

	for _, b := range got {
		st.Owned[b] = struct{}{}
	}
	assert.Empty(t, e.CheckBadges(st), "awarding the result again must be a no-op")
}

func TestCheckBadgesMonotone(t *testing.T) {
	e := NewEngine(DefaultConfig())
	earned := map[string]struct{}{}
	st := BadgeState{Owned: earned, Stats: models.SubmissionStats{}}
	for i := 0; i <= 60; i++ {
		st.Stats.CorrectSolves = i
		st.Stats.NoHintSolves = i / 2
		st.Stats.TeamSolves = i / 3
		st.Stats.SpeedSolves = i / 4
		st.CurrentStreak = i % 9
		before := len(earned)
		for _, b := range e.CheckBadges(st) {
			earned[b] = struct{}{}
		}
		assert.GreaterOrEqual(t, len(earned), before)
	}
	assert.Contains(t, earned, BadgeMarathonRunner)
	assert.Contains(t, earned, BadgeSpeedDemon)
	assert.Contains(t, earned, BadgeTeamPlayer)
	assert.NotContains(t, earned, BadgeFirstSolve)
}

func TestBadgesCatalogue(t *testing.T) {
	e := NewEngine(DefaultConfig())
	badges := e.Badges()
	require.Len(t, badges, 7)
	badges[0].Name = "mutated"
	assert.Equal(t, "Pioneer", e.Badges()[0].Name)
}
