package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is injected once at startup and never mutated afterwards.
type Config struct {
	FirstBloodFactor decimal.Decimal
	SpeedFactor      decimal.Decimal
	StreakFactor     decimal.Decimal
	TeamFactor       decimal.Decimal

	// SpeedThresholdSeconds is exclusive: a solve must be strictly faster.
	SpeedThresholdSeconds int
	StreakBonusMin        int

	// LevelBase is C in threshold(L) = floor(C * L^1.5).
	LevelBase int64
	MaxLevel  int

	// Location decides calendar days for streaks.
	Location *time.Location

	SpeedDemonSolves    int
	StreakMasterDays    int
	TeamPlayerSolves    int
	PerfectionistSolves int
	MarathonSolves      int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		FirstBloodFactor:      decimal.RequireFromString("1.5"),
		SpeedFactor:           decimal.RequireFromString("1.2"),
		StreakFactor:          decimal.RequireFromString("1.1"),
		TeamFactor:            decimal.RequireFromString("1.05"),
		SpeedThresholdSeconds: 300,
		StreakBonusMin:        3,
		LevelBase:             100,
		MaxLevel:              100,
		Location:              time.UTC,
		SpeedDemonSolves:      5,
		StreakMasterDays:      7,
		TeamPlayerSolves:      10,
		PerfectionistSolves:   10,
		MarathonSolves:        50,
	}
}
