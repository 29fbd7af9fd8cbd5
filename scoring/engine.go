// Package scoring derives XP, levels, streaks and badges from the submission
// stream. Engine is pure; Recorder applies its results to the store.
package scoring

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Engine holds an immutable Config and the precomputed level table.
type Engine struct {
	cfg        Config
	thresholds []int64 // thresholds[L] for L in 1..MaxLevel; index 0 unused
}

// NewEngine builds an engine; zero-valued fields of cfg take the defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.LevelBase <= 0 {
		cfg.LevelBase = def.LevelBase
	}
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = def.MaxLevel
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SpeedThresholdSeconds <= 0 {
		cfg.SpeedThresholdSeconds = def.SpeedThresholdSeconds
	}
	if cfg.StreakBonusMin <= 0 {
		cfg.StreakBonusMin = def.StreakBonusMin
	}
	for _, pair := range []struct{ v, d *int }{
		{&cfg.SpeedDemonSolves, &def.SpeedDemonSolves},
		{&cfg.StreakMasterDays, &def.StreakMasterDays},
		{&cfg.TeamPlayerSolves, &def.TeamPlayerSolves},
		{&cfg.PerfectionistSolves, &def.PerfectionistSolves},
		{&cfg.MarathonSolves, &def.MarathonSolves},
	} {
		if *pair.v <= 0 {
			*pair.v = *pair.d
		}
	}
	if cfg.FirstBloodFactor.IsZero() {
		cfg.FirstBloodFactor = def.FirstBloodFactor
	}
	if cfg.SpeedFactor.IsZero() {
		cfg.SpeedFactor = def.SpeedFactor
	}
	if cfg.StreakFactor.IsZero() {
		cfg.StreakFactor = def.StreakFactor
	}
	if cfg.TeamFactor.IsZero() {
		cfg.TeamFactor = def.TeamFactor
	}

	th := make([]int64, cfg.MaxLevel+1)
	for l := 1; l <= cfg.MaxLevel; l++ {
		th[l] = int64(math.Floor(float64(cfg.LevelBase) * math.Pow(float64(l), 1.5)))
	}
	return &Engine{cfg: cfg, thresholds: th}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// XPInput describes one correct solve.
type XPInput struct {
	BasePoints   int  `json:"base_points"`
	FirstBlood   bool `json:"first_blood"`
	SolveSeconds int  `json:"solve_seconds"`
	StreakCount  int  `json:"streak_count"`
	HasTeam      bool `json:"has_team"`
}

// IsSpeedSolve reports whether a solve time earns the speed factor.
func (e *Engine) IsSpeedSolve(seconds int) bool {
	return seconds > 0 && seconds < e.cfg.SpeedThresholdSeconds
}

// CalculateChallengeXP multiplies base points by every applicable factor and
// floors the exact product.
func (e *Engine) CalculateChallengeXP(in XPInput) int64 {
	if in.BasePoints <= 0 {
		return 0
	}
	xp := decimal.NewFromInt(int64(in.BasePoints))
	if in.FirstBlood {
		xp = xp.Mul(e.cfg.FirstBloodFactor)
	}
	if e.IsSpeedSolve(in.SolveSeconds) {
		xp = xp.Mul(e.cfg.SpeedFactor)
	}
	if in.StreakCount >= e.cfg.StreakBonusMin {
		xp = xp.Mul(e.cfg.StreakFactor)
	}
	if in.HasTeam {
		xp = xp.Mul(e.cfg.TeamFactor)
	}
	return xp.Floor().IntPart()
}

// LevelProgress locates an XP total on the level curve.
type LevelProgress struct {
	Level       int   `json:"level"`
	XP          int64 `json:"xp"`
	XPIntoLevel int64 `json:"xp_into_level"`
	// XPToNext is what is still missing to reach the next level; 0 at max level.
	XPToNext int64 `json:"xp_to_next"`
	// LevelSpan is the XP distance between this level and the next.
	LevelSpan int64 `json:"level_span"`
}

// Threshold returns the cumulative XP needed for level l.
func (e *Engine) Threshold(l int) int64 {
	if l < 1 {
		return 0
	}
	if l > e.cfg.MaxLevel {
		l = e.cfg.MaxLevel
	}
	return e.thresholds[l]
}

// LevelForXP is total and monotone in totalXP. Negative totals count as zero.
func (e *Engine) LevelForXP(totalXP int64) LevelProgress {
	if totalXP < 0 {
		totalXP = 0
	}
	level := 1
	for l := 1; l <= e.cfg.MaxLevel; l++ {
		if e.thresholds[l] > totalXP {
			break
		}
		level = l
	}

	p := LevelProgress{Level: level, XP: totalXP}
	base := e.thresholds[level]
	if totalXP < base {
		base = 0
	}
	p.XPIntoLevel = totalXP - base
	if level < e.cfg.MaxLevel {
		next := e.thresholds[level+1]
		p.XPToNext = next - totalXP
		p.LevelSpan = next - base
	}
	return p
}

// LevelStep is one upcoming level on the curve.
type LevelStep struct {
	Level       int   `json:"level"`
	XPRequired  int64 `json:"xp_required"`
	XPRemaining int64 `json:"xp_remaining"`
}

// NextLevels lists up to n levels above the one totalXP is at.
func (e *Engine) NextLevels(totalXP int64, n int) []LevelStep {
	if totalXP < 0 {
		totalXP = 0
	}
	cur := e.LevelForXP(totalXP).Level
	var out []LevelStep
	for l := cur + 1; l <= e.cfg.MaxLevel && len(out) < n; l++ {
		out = append(out, LevelStep{
			Level:       l,
			XPRequired:  e.thresholds[l],
			XPRemaining: e.thresholds[l] - totalXP,
		})
	}
	return out
}

// civilDay maps t to a day number in loc, immune to DST length changes.
func civilDay(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// UpdateStreak counts consecutive solving days ending at the newest solve.
// solveTimes must be newest first. The walk stops at the first gap and
// reports broke. A newest day older than yesterday resets the streak to 0.
func (e *Engine) UpdateStreak(solveTimes []time.Time, now time.Time) (current int, broke bool) {
	if len(solveTimes) == 0 {
		return 0, false
	}
	loc := e.cfg.Location
	newest := civilDay(solveTimes[0], loc)
	last := newest
	current = 1
	for _, t := range solveTimes[1:] {
		day := civilDay(t, loc)
		switch {
		case day == last:
			continue
		case day == last-1:
			current++
			last = day
			continue
		}
		broke = true
		break
	}

	today := civilDay(now, loc)
	if newest != today && newest != today-1 {
		return 0, true
	}
	return current, broke
}
