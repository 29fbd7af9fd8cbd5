package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
	DefaultTTL   = 30 * time.Second

	cachePrefix = "cache:leaderboard:"
)

// ClampLimit maps a requested board size into [1, MaxLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// CategoryProgress is one row of a user's category breakdown.
type CategoryProgress struct {
	Category string `json:"category"`
	Solved   int    `json:"solved"`
	Total    int    `json:"total"`
}

// UserStats is the profile view of one user's gamification state.
type UserStats struct {
	UserID        uint                  `json:"user_id"`
	Username      string                `json:"username"`
	TeamID        *uint                 `json:"team_id"`
	XP            int64                 `json:"xp"`
	Progress      scoring.LevelProgress `json:"progress"`
	CurrentStreak int                   `json:"current_streak"`
	LongestStreak int                   `json:"longest_streak"`
	LastSolveAt   *time.Time            `json:"last_solve_at"`
	CorrectSolves int                   `json:"correct_solves"`
	FirstBloods   int                   `json:"first_bloods"`
	SpeedSolves   int                   `json:"speed_solves"`
	NoHintSolves  int                   `json:"no_hint_solves"`
	Badges        []models.UserBadge    `json:"badges"`
	Categories    []CategoryProgress    `json:"categories"`
	// Rank is zero for blocked users, who are not on the board.
	Rank int64 `json:"rank"`
}

// Board serves rankings from the store through a short-lived Redis cache.
type Board struct {
	store  store.Store
	engine *scoring.Engine
	cache  *utils.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewBoard builds a Board. cache and logger may be nil.
func NewBoard(s store.Store, engine *scoring.Engine, cache *utils.Cache, ttl time.Duration, logger *zap.Logger) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{store: s, engine: engine, cache: cache, ttl: ttl, logger: logger}
}

func userBoardKey(limit int) string {
	return fmt.Sprintf("%susers:limit=%d", cachePrefix, limit)
}

func teamBoardKey(limit int) string {
	return fmt.Sprintf("%steams:limit=%d", cachePrefix, limit)
}

// Leaderboard returns the top users. Blocked users are never listed.
func (b *Board) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)
	key := userBoardKey(limit)
	var cached []Entry
	if b.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	standings, err := b.store.ListUserStandings(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := Rank(standings, limit)
	b.cache.SetJSON(ctx, key, entries, b.ttl)
	return entries, nil
}

// TeamScoreboard returns the top teams by score points.
func (b *Board) TeamScoreboard(ctx context.Context, limit int) ([]TeamEntry, error) {
	limit = ClampLimit(limit)
	key := teamBoardKey(limit)
	var cached []TeamEntry
	if b.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	standings, err := b.store.ListTeamStandings(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := RankTeams(standings, limit)
	b.cache.SetJSON(ctx, key, entries, b.ttl)
	return entries, nil
}

// Invalidate drops every cached board. It satisfies scoring.Invalidator.
func (b *Board) Invalidate(ctx context.Context) {
	b.cache.InvalidateByPrefix(ctx, cachePrefix)
}

// UserRank returns the 1-based position of userID on the full board, or zero
// if the user is blocked.
func (b *Board) UserRank(ctx context.Context, userID uint) (int64, error) {
	u, err := b.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return b.rankOf(ctx, u)
}

func (b *Board) rankOf(ctx context.Context, u *models.User) (int64, error) {
	if u.IsBlocked {
		return 0, nil
	}
	ahead, err := b.store.CountUsersAhead(ctx, store.UserStanding{
		UserID: u.ID, Username: u.Username, TeamID: u.TeamID,
		XP: u.XP, Level: u.Level, LastSolveAt: u.LastSolveAt,
	})
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// UserStats assembles the profile view for userID.
func (b *Board) UserStats(ctx context.Context, userID uint) (*UserStats, error) {
	u, err := b.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := b.store.SubmissionStats(ctx, u.ID, b.engine.Config().SpeedThresholdSeconds)
	if err != nil {
		return nil, err
	}
	badges, err := b.store.UserBadges(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	rank, err := b.rankOf(ctx, u)
	if err != nil {
		return nil, err
	}

	categories := make([]CategoryProgress, 0, len(stats.CategoryTotals))
	for cat, total := range stats.CategoryTotals {
		categories = append(categories, CategoryProgress{Category: cat, Solved: stats.CategorySolved[cat], Total: total})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Category < categories[j].Category })
	if badges == nil {
		badges = []models.UserBadge{}
	}

	return &UserStats{
		UserID:        u.ID,
		Username:      u.Username,
		TeamID:        u.TeamID,
		XP:            u.XP,
		Progress:      b.engine.LevelForXP(u.XP),
		CurrentStreak: u.CurrentStreak,
		LongestStreak: u.LongestStreak,
		LastSolveAt:   u.LastSolveAt,
		CorrectSolves: stats.CorrectSolves,
		FirstBloods:   stats.FirstBloods,
		SpeedSolves:   stats.SpeedSolves,
		NoHintSolves:  stats.NoHintSolves,
		Badges:        badges,
		Categories:    categories,
		Rank:          rank,
	}, nil
}

// PlatformStats returns the public platform counters.
func (b *Board) PlatformStats(ctx context.Context) (store.PlatformCounts, error) {
	return b.store.PlatformCounts(ctx)
}
