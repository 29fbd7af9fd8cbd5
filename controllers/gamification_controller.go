package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/heistctf/leaderboard"
	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

const nextLevelsShown = 5

// GamificationController serves XP, level, streak and badge views.
type GamificationController struct {
	recorder *scoring.Recorder
	board    *leaderboard.Board
	reader   store.Reader
}

// NewGamificationController creates a new GamificationController instance.
func NewGamificationController(recorder *scoring.Recorder, board *leaderboard.Board, reader store.Reader) *GamificationController {
	return &GamificationController{recorder: recorder, board: board, reader: reader}
}

func (g *GamificationController) engine() *scoring.Engine {
	return g.recorder.Engine()
}

// Sync applies streak decay and awards any badges the caller now qualifies for.
func (g *GamificationController) Sync(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	out, err := g.recorder.SyncProgress(requestContext(ctx), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if len(out.NewBadges) > 0 {
		g.board.Invalidate(requestContext(ctx))
	}
	utils.Success(ctx, out)
}

// XPPreview computes the XP a solve would earn without recording anything.
func (g *GamificationController) XPPreview(ctx *gin.Context) {
	var in struct {
		BasePoints   int  `form:"base_points" binding:"min=0"`
		FirstBlood   bool `form:"first_blood"`
		SolveSeconds int  `form:"solve_seconds" binding:"min=0"`
		StreakCount  int  `form:"streak_count" binding:"min=0"`
		HasTeam      bool `form:"has_team"`
	}
	if err := ctx.ShouldBindQuery(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid query parameters")
		return
	}
	xp := g.engine().CalculateChallengeXP(scoring.XPInput{
		BasePoints:   in.BasePoints,
		FirstBlood:   in.FirstBlood,
		SolveSeconds: in.SolveSeconds,
		StreakCount:  in.StreakCount,
		HasTeam:      in.HasTeam,
	})
	utils.Success(ctx, gin.H{"xp": xp})
}

// LevelProgress shows where an XP total sits on the curve. Without an xp
// query parameter the caller's own XP is used.
func (g *GamificationController) LevelProgress(ctx *gin.Context) {
	var xp int64
	if raw := ctx.Query("xp"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid xp")
			return
		}
		xp = v
	} else {
		userID, ok := getUserID(ctx)
		if !ok {
			return
		}
		u, err := g.reader.GetUser(requestContext(ctx), userID)
		if err != nil {
			respondError(ctx, err)
			return
		}
		xp = u.XP
	}
	utils.Success(ctx, gin.H{
		"progress":    g.engine().LevelForXP(xp),
		"next_levels": g.engine().NextLevels(xp, nextLevelsShown),
	})
}

// Stats returns the profile view of the caller, or of user_id when given.
func (g *GamificationController) Stats(ctx *gin.Context) {
	target, ok := parseOptionalUint(ctx, "user_id")
	if !ok {
		return
	}
	var userID uint
	if target != nil {
		userID = *target
	} else if userID, ok = getUserID(ctx); !ok {
		return
	}
	stats, err := g.board.UserStats(requestContext(ctx), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, stats)
}

type badgeView struct {
	scoring.Badge
	Earned bool              `json:"earned"`
	Record *models.UserBadge `json:"record,omitempty"`
}

// Badges lists the catalogue with the caller's earned flags.
func (g *GamificationController) Badges(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	owned, err := g.reader.UserBadges(requestContext(ctx), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	byID := make(map[string]*models.UserBadge, len(owned))
	for i := range owned {
		byID[owned[i].BadgeID] = &owned[i]
	}
	catalogue := g.engine().Badges()
	out := make([]badgeView, len(catalogue))
	for i, b := range catalogue {
		rec := byID[b.ID]
		out[i] = badgeView{Badge: b, Earned: rec != nil, Record: rec}
	}
	utils.Success(ctx, gin.H{"badges": out, "earned": len(owned), "total": len(catalogue)})
}
