// Package store is the persistence contract shared by the hint workflow, the
// scoring recorder and the leaderboard. Row locks live for one Transaction and
// conditional updates report lost races as apperr.ErrInvalidState or
// apperr.ErrInsufficientCurrency instead of silently doing nothing.
package store

import (
	"context"
	"time"

	"github.com/cppla/heistctf/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// HintRequestFilter narrows ListHintRequests. Zero values mean "any".
type HintRequestFilter struct {
	TeamID      *uint
	ChallengeID *uint
	Status      models.HintRequestStatus
	Limit       int
}

// NormalizedLimit clamps Limit into [1, MaxListLimit].
func (f HintRequestFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// UserStanding is the leaderboard projection of a user row.
type UserStanding struct {
	UserID      uint       `json:"user_id"`
	Username    string     `json:"username"`
	TeamID      *uint      `json:"team_id"`
	XP          int64      `json:"xp"`
	Level       int        `json:"level"`
	LastSolveAt *time.Time `json:"last_solve_at"`
}

// TeamStanding is the scoreboard projection of a team row.
type TeamStanding struct {
	TeamID      uint       `json:"team_id"`
	Name        string     `json:"name"`
	ScorePoints int64      `json:"score_points"`
	Solves      int        `json:"solves"`
	LastSolveAt *time.Time `json:"last_solve_at"`
}

// PendingRef locates a pending request in sweep order. The sweeper keeps the
// last one it scanned as a cursor so requests it had to defer do not pin the
// head of every later scan.
type PendingRef struct {
	ID          uint
	RequestedAt time.Time
}

// PlatformCounts backs the public stats endpoint.
type PlatformCounts struct {
	Users               int64 `json:"users"`
	Teams               int64 `json:"teams"`
	Challenges          int64 `json:"challenges"`
	Submissions         int64 `json:"submissions"`
	CorrectSubmissions  int64 `json:"correct_submissions"`
	PendingHintRequests int64 `json:"pending_hint_requests"`
}

// Reader holds the non-locking queries available both outside and inside a
// transaction.
type Reader interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetTeam(ctx context.Context, id uint) (*models.Team, error)
	GetChallenge(ctx context.Context, id uint) (*models.Challenge, error)
	GetHintRequest(ctx context.Context, id uint) (*models.HintRequest, error)
	// FindHint returns apperr.ErrNotFound unless hintID belongs to challengeID.
	FindHint(ctx context.Context, hintID, challengeID uint) (*models.Hint, error)
	ListHintRequests(ctx context.Context, filter HintRequestFilter) ([]models.HintRequest, error)
	UserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error)
	SubmissionStats(ctx context.Context, userID uint, speedThreshold int) (models.SubmissionStats, error)
	// RecentSolveTimes returns correct submission times newest first.
	RecentSolveTimes(ctx context.Context, userID uint, limit int) ([]time.Time, error)
	HasCorrectSubmission(ctx context.Context, userID, challengeID uint) (bool, error)
	ChallengeSolved(ctx context.Context, challengeID uint) (bool, error)
	CountResolvedHints(ctx context.Context, teamID, challengeID uint) (int, error)
}

// Tx is a unit of work. Locks taken through it are released when the
// enclosing Transaction returns.
type Tx interface {
	Reader

	LockHintRequest(ctx context.Context, id uint) (*models.HintRequest, error)
	LockTeam(ctx context.Context, id uint) (*models.Team, error)
	LockUser(ctx context.Context, id uint) (*models.User, error)
	LockChallenge(ctx context.Context, id uint) (*models.Challenge, error)

	// ResolveHintRequest persists req's resolution fields only if the stored
	// status still equals from.
	ResolveHintRequest(ctx context.Context, req *models.HintRequest, from models.HintRequestStatus) error
	// DebitTeam applies p only if the team can still afford it.
	DebitTeam(ctx context.Context, teamID uint, p models.Payment) error
	CreditTeamSolve(ctx context.Context, teamID uint, points int64, at time.Time) error
	SaveUserProgress(ctx context.Context, u *models.User) error

	AppendSubmission(ctx context.Context, s *models.Submission) error
	AppendScoreHistory(ctx context.Context, h *models.ScoreHistory) error
	AddUserBadges(ctx context.Context, userID uint, badgeIDs []string, at time.Time) error
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Store is implemented by GormStore and MemoryStore.
type Store interface {
	Reader

	// Transaction runs fn in one unit of work and rolls back when fn errors.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	CreateHintRequest(ctx context.Context, req *models.HintRequest) error
	// StalePendingRequests lists pending requests created before cutoff in
	// (requested_at, id) order, starting strictly after the cursor when set.
	StalePendingRequests(ctx context.Context, cutoff time.Time, after *PendingRef, limit int) ([]PendingRef, error)
	ListUserStandings(ctx context.Context, limit int) ([]UserStanding, error)
	ListTeamStandings(ctx context.Context, limit int) ([]TeamStanding, error)
	CountUsersAhead(ctx context.Context, of UserStanding) (int64, error)
	PlatformCounts(ctx context.Context) (PlatformCounts, error)
}

// UserAhead reports whether a ranks before b: more XP, then the earlier last
// solve (never solved sorts last), then the lower id.
func UserAhead(a, b UserStanding) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	if c := compareSolveTime(a.LastSolveAt, b.LastSolveAt); c != 0 {
		return c < 0
	}
	return a.UserID < b.UserID
}

// TeamAhead orders teams by score, then earlier last solve, then id.
func TeamAhead(a, b TeamStanding) bool {
	if a.ScorePoints != b.ScorePoints {
		return a.ScorePoints > b.ScorePoints
	}
	if c := compareSolveTime(a.LastSolveAt, b.LastSolveAt); c != 0 {
		return c < 0
	}
	return a.TeamID < b.TeamID
}

func compareSolveTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}
