package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/heistctf/config"
	"github.com/cppla/heistctf/hints"
	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/utils"
)

// ConfigController serves the public tuning of the hint economy and scoring.
type ConfigController struct {
	engine *scoring.Engine
	cfg    config.AppConfig
}

func NewConfigController(engine *scoring.Engine, cfg config.AppConfig) *ConfigController {
	return &ConfigController{engine: engine, cfg: cfg}
}

// GetScoring returns XP factors, the level curve and the badge catalogue.
func (c *ConfigController) GetScoring(ctx *gin.Context) {
	sc := c.engine.Config()
	levels := make([]gin.H, 0, sc.MaxLevel)
	for l := 1; l <= sc.MaxLevel; l++ {
		levels = append(levels, gin.H{"level": l, "xp_required": c.engine.Threshold(l)})
	}
	utils.Success(ctx, gin.H{
		"factors": gin.H{
			"first_blood": sc.FirstBloodFactor.String(),
			"speed":       sc.SpeedFactor.String(),
			"streak":      sc.StreakFactor.String(),
			"team":        sc.TeamFactor.String(),
		},
		"speed_threshold_seconds": sc.SpeedThresholdSeconds,
		"streak_bonus_min":        sc.StreakBonusMin,
		"streak_timezone":         sc.Location.String(),
		"levels":                  levels,
		"badges":                  c.engine.Badges(),
	})
}

// GetHints returns the auto-approval timing players can rely on.
func (c *ConfigController) GetHints(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"auto_approve_after_seconds": c.cfg.HintAutoApproveSeconds,
		"sweep_interval_seconds":     c.cfg.HintSweepIntervalSeconds,
		"max_note_length":            hints.MaxNoteRunes,
	})
}
