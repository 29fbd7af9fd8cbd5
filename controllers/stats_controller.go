package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/heistctf/leaderboard"
	"github.com/cppla/heistctf/utils"
)

// StatsController provides rankings and platform counters.
type StatsController struct {
	board *leaderboard.Board
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(board *leaderboard.Board) *StatsController {
	return &StatsController{board: board}
}

// Leaderboard returns the top users by XP.
func (s *StatsController) Leaderboard(ctx *gin.Context) {
	limit := leaderboard.ClampLimit(parseLimit(ctx))
	entries, err := s.board.Leaderboard(requestContext(ctx), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": entries, "limit": limit})
}

// TeamScoreboard returns the top teams by score points.
func (s *StatsController) TeamScoreboard(ctx *gin.Context) {
	limit := leaderboard.ClampLimit(parseLimit(ctx))
	entries, err := s.board.TeamScoreboard(requestContext(ctx), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": entries, "limit": limit})
}

// GetStats returns aggregate statistics for the platform.
func (s *StatsController) GetStats(ctx *gin.Context) {
	counts, err := s.board.PlatformStats(requestContext(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, counts)
}
