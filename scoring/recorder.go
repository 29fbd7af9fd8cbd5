package scoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/metrics"
	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/store"
)

// Correct solves are unique per (user, challenge), so the solve history of a
// user is bounded by the challenge count and this window covers it.
const streakLookback = 1000

// MaxClockSkew bounds how far a submission time may run ahead of the
// recorder's clock.
const MaxClockSkew = time.Minute

// Invalidator drops derived views, such as cached leaderboards, after a
// submission commits.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// SubmissionEvent is one judged flag attempt.
type SubmissionEvent struct {
	UserID       uint      `json:"user_id" binding:"required"`
	ChallengeID  uint      `json:"challenge_id" binding:"required"`
	Correct      bool      `json:"correct"`
	SolveSeconds int       `json:"solve_seconds"`
	At           time.Time `json:"at"`
}

// Outcome reports what a submission or sync changed.
type Outcome struct {
	Submission    *models.Submission `json:"submission,omitempty"`
	XPAwarded     int64              `json:"xp_awarded"`
	Progress      LevelProgress      `json:"progress"`
	LeveledUp     bool               `json:"leveled_up"`
	CurrentStreak int                `json:"current_streak"`
	LongestStreak int                `json:"longest_streak"`
	StreakBroken  bool               `json:"streak_broken"`
	NewBadges     []string           `json:"new_badges"`
}

// Recorder applies submission events. The user row lock serializes every
// XP change of one user.
type Recorder struct {
	store       store.Store
	engine      *Engine
	invalidator Invalidator
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithInvalidator sets the view invalidated after each committed submission.
func WithInvalidator(inv Invalidator) RecorderOption {
	return func(r *Recorder) { r.invalidator = inv }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder builds a Recorder.
func NewRecorder(s store.Store, engine *Engine, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{store: s, engine: engine, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the pure scoring engine.
func (r *Recorder) Engine() *Engine {
	return r.engine
}

// RecordSubmission appends the submission and, when correct, awards XP,
// advances the streak, grants badges and credits the team. Locks are taken
// challenge, then user, then team.
func (r *Recorder) RecordSubmission(ctx context.Context, ev SubmissionEvent) (*Outcome, error) {
	now := r.now().UTC()
	at := ev.At.UTC()
	if ev.At.IsZero() {
		at = now
	}
	if at.After(now.Add(MaxClockSkew)) {
		return nil, fmt.Errorf("%w: submission time %s is in the future", apperr.ErrInvalidState, at.Format(time.RFC3339))
	}
	if at.After(now) {
		now = at
	}

	var out Outcome
	err := r.store.Transaction(ctx, func(tx store.Tx) error {
		ch, err := tx.LockChallenge(ctx, ev.ChallengeID)
		if err != nil {
			return err
		}
		user, err := tx.LockUser(ctx, ev.UserID)
		if err != nil {
			return err
		}
		if user.IsBlocked {
			return fmt.Errorf("%w: user %d is blocked", apperr.ErrPermissionDenied, user.ID)
		}

		sub := &models.Submission{
			UserID:       user.ID,
			TeamID:       user.TeamID,
			ChallengeID:  ch.ID,
			Correct:      ev.Correct,
			SolveSeconds: ev.SolveSeconds,
			CreatedAt:    at,
		}
		if !ev.Correct {
			out = Outcome{
				Submission:    sub,
				Progress:      r.engine.LevelForXP(user.XP),
				CurrentStreak: user.CurrentStreak,
				LongestStreak: user.LongestStreak,
			}
			return tx.AppendSubmission(ctx, sub)
		}

		solved, err := tx.HasCorrectSubmission(ctx, user.ID, ch.ID)
		if err != nil {
			return err
		}
		if solved {
			return fmt.Errorf("%w: user %d already solved challenge %d", apperr.ErrInvalidState, user.ID, ch.ID)
		}
		// the challenge lock makes this check race free
		solvedByAnyone, err := tx.ChallengeSolved(ctx, ch.ID)
		if err != nil {
			return err
		}
		hintsUsed := 0
		if user.TeamID != nil {
			if hintsUsed, err = tx.CountResolvedHints(ctx, *user.TeamID, ch.ID); err != nil {
				return err
			}
		}

		history, err := tx.RecentSolveTimes(ctx, user.ID, streakLookback)
		if err != nil {
			return err
		}
		// events may arrive late, so the streak is rebuilt from the merged history
		solves := mergeSolveTime(history, at)
		streak, broke := r.engine.UpdateStreak(solves, now)
		streakAtSolve, _ := r.engine.UpdateStreak(solvesUpTo(solves, at), at)

		points := ch.BasePoints
		if points < 0 {
			points = 0
		}
		xp := r.engine.CalculateChallengeXP(XPInput{
			BasePoints:   points,
			FirstBlood:   !solvedByAnyone,
			SolveSeconds: ev.SolveSeconds,
			StreakCount:  streakAtSolve,
			HasTeam:      user.TeamID != nil,
		})
		sub.PointsAwarded = points
		sub.XPAwarded = xp
		sub.IsFirstBlood = !solvedByAnyone
		sub.HintsUsed = hintsUsed
		if err := tx.AppendSubmission(ctx, sub); err != nil {
			return err
		}

		prevLevel := user.Level
		user.XP += xp
		progress := r.engine.LevelForXP(user.XP)
		user.Level = progress.Level
		user.CurrentStreak = streak
		if streak > user.LongestStreak {
			user.LongestStreak = streak
		}
		if user.LastSolveAt == nil || at.After(*user.LastSolveAt) {
			user.LastSolveAt = &at
		}
		if err := tx.SaveUserProgress(ctx, user); err != nil {
			return err
		}

		newBadges, err := r.awardBadges(ctx, tx, user, at)
		if err != nil {
			return err
		}

		if user.TeamID != nil {
			if _, err := tx.LockTeam(ctx, *user.TeamID); err != nil {
				return err
			}
			if err := tx.CreditTeamSolve(ctx, *user.TeamID, int64(points), at); err != nil {
				return err
			}
			uid := user.ID
			if err := tx.AppendScoreHistory(ctx, &models.ScoreHistory{
				TeamID:    user.TeamID,
				UserID:    &uid,
				Delta:     int64(points),
				Reason:    fmt.Sprintf("solved challenge %d", ch.ID),
				CreatedAt: at,
			}); err != nil {
				return err
			}
		}

		out = Outcome{
			Submission:    sub,
			XPAwarded:     xp,
			Progress:      progress,
			LeveledUp:     progress.Level > prevLevel,
			CurrentStreak: user.CurrentStreak,
			LongestStreak: user.LongestStreak,
			StreakBroken:  broke,
			NewBadges:     newBadges,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.invalidator != nil {
		r.invalidator.Invalidate(ctx)
	}
	r.metrics.SubmissionRecorded(ev.Correct, out.XPAwarded, out.NewBadges)
	r.logger.Info("submission recorded",
		zap.Uint("user_id", ev.UserID),
		zap.Uint("challenge_id", ev.ChallengeID),
		zap.Bool("correct", ev.Correct),
		zap.Int64("xp", out.XPAwarded),
		zap.Strings("new_badges", out.NewBadges),
	)
	return &out, nil
}

// SyncProgress re-evaluates streak decay and badges for a user without a new
// submission. Calling it twice changes nothing the second time.
func (r *Recorder) SyncProgress(ctx context.Context, userID uint) (*Outcome, error) {
	now := r.now().UTC()
	var out Outcome
	err := r.store.Transaction(ctx, func(tx store.Tx) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		history, err := tx.RecentSolveTimes(ctx, user.ID, streakLookback)
		if err != nil {
			return err
		}
		streak, broke := r.engine.UpdateStreak(history, now)
		user.CurrentStreak = streak
		if streak > user.LongestStreak {
			user.LongestStreak = streak
		}
		progress := r.engine.LevelForXP(user.XP)
		user.Level = progress.Level
		if err := tx.SaveUserProgress(ctx, user); err != nil {
			return err
		}
		newBadges, err := r.awardBadges(ctx, tx, user, now)
		if err != nil {
			return err
		}
		out = Outcome{
			Progress:      progress,
			CurrentStreak: user.CurrentStreak,
			LongestStreak: user.LongestStreak,
			StreakBroken:  broke,
			NewBadges:     newBadges,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.BadgesGranted(out.NewBadges)
	return &out, nil
}

func (r *Recorder) awardBadges(ctx context.Context, tx store.Tx, user *models.User, at time.Time) ([]string, error) {
	stats, err := tx.SubmissionStats(ctx, user.ID, r.engine.cfg.SpeedThresholdSeconds)
	if err != nil {
		return nil, err
	}
	owned, err := tx.UserBadges(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	newBadges := r.engine.CheckBadges(BadgeState{
		Owned:         models.BadgeSet(owned),
		CurrentStreak: user.CurrentStreak,
		Stats:         stats,
	})
	if len(newBadges) == 0 {
		return nil, nil
	}
	if err := tx.AddUserBadges(ctx, user.ID, newBadges, at); err != nil {
		return nil, err
	}
	return newBadges, nil
}

// mergeSolveTime inserts at into newest-first solve times.
func mergeSolveTime(history []time.Time, at time.Time) []time.Time {
	out := make([]time.Time, 0, len(history)+1)
	inserted := false
	for _, t := range history {
		if !inserted && !t.After(at) {
			out = append(out, at)
			inserted = true
		}
		out = append(out, t)
	}
	if !inserted {
		out = append(out, at)
	}
	return out
}

// solvesUpTo drops solves later than at from newest-first solve times.
func solvesUpTo(solves []time.Time, at time.Time) []time.Time {
	for i, t := range solves {
		if !t.After(at) {
			return solves[i:]
		}
	}
	return nil
}
