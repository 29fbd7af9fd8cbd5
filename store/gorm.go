package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/models"
)

var resolvedHintStatuses = []models.HintRequestStatus{
	models.HintRequestApproved,
	models.HintRequestAutoApproved,
}

// queries implements Reader over either the root handle or a transaction.
type queries struct {
	db *gorm.DB
}

func (q queries) first(ctx context.Context, dest interface{}, id uint) error {
	return classify(q.db.WithContext(ctx).First(dest, id).Error)
}

func (q queries) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := q.first(ctx, &u, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q queries) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	var t models.Team
	if err := q.first(ctx, &t, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) GetChallenge(ctx context.Context, id uint) (*models.Challenge, error) {
	var c models.Challenge
	if err := q.first(ctx, &c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) GetHintRequest(ctx context.Context, id uint) (*models.HintRequest, error) {
	var r models.HintRequest
	if err := q.first(ctx, &r, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q queries) FindHint(ctx context.Context, hintID, challengeID uint) (*models.Hint, error) {
	var h models.Hint
	err := q.db.WithContext(ctx).
		Where("id = ? AND challenge_id = ?", hintID, challengeID).
		First(&h).Error
	if err != nil {
		return nil, classify(err)
	}
	return &h, nil
}

func (q queries) ListHintRequests(ctx context.Context, f HintRequestFilter) ([]models.HintRequest, error) {
	query := q.db.WithContext(ctx).Model(&models.HintRequest{})
	if f.TeamID != nil {
		query = query.Where("team_id = ?", *f.TeamID)
	}
	if f.ChallengeID != nil {
		query = query.Where("challenge_id = ?", *f.ChallengeID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	var out []models.HintRequest
	err := query.Order("requested_at DESC").Order("id DESC").
		Limit(f.NormalizedLimit()).
		Find(&out).Error
	return out, classify(err)
}

func (q queries) UserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	var out []models.UserBadge
	err := q.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("earned_at ASC").
		Find(&out).Error
	return out, classify(err)
}

type categoryCount struct {
	Category string
	Total    int
}

func (q queries) SubmissionStats(ctx context.Context, userID uint, speedThreshold int) (models.SubmissionStats, error) {
	var row struct {
		CorrectSolves int
		FirstBloods   int
		SpeedSolves   int
		NoHintSolves  int
		TeamSolves    int
	}
	db := q.db.WithContext(ctx)
	err := db.Model(&models.Submission{}).
		Select(`COUNT(*) AS correct_solves,
			COALESCE(SUM(CASE WHEN is_first_blood THEN 1 ELSE 0 END), 0) AS first_bloods,
			COALESCE(SUM(CASE WHEN solve_seconds > 0 AND solve_seconds < ? THEN 1 ELSE 0 END), 0) AS speed_solves,
			COALESCE(SUM(CASE WHEN hints_used = 0 THEN 1 ELSE 0 END), 0) AS no_hint_solves,
			COALESCE(SUM(CASE WHEN team_id IS NOT NULL THEN 1 ELSE 0 END), 0) AS team_solves`, speedThreshold).
		Where("user_id = ? AND correct = ?", userID, true).
		Scan(&row).Error
	if err != nil {
		return models.SubmissionStats{}, classify(err)
	}

	var solved []categoryCount
	err = db.Table("submissions AS s").
		Select("c.category AS category, COUNT(DISTINCT s.challenge_id) AS total").
		Joins("JOIN challenges AS c ON c.id = s.challenge_id").
		Where("s.user_id = ? AND s.correct = ? AND c.visible = ?", userID, true, true).
		Group("c.category").
		Scan(&solved).Error
	if err != nil {
		return models.SubmissionStats{}, classify(err)
	}

	var totals []categoryCount
	err = db.Model(&models.Challenge{}).
		Select("category, COUNT(*) AS total").
		Where("visible = ?", true).
		Group("category").
		Scan(&totals).Error
	if err != nil {
		return models.SubmissionStats{}, classify(err)
	}

	stats := models.SubmissionStats{
		CorrectSolves:  row.CorrectSolves,
		FirstBloods:    row.FirstBloods,
		SpeedSolves:    row.SpeedSolves,
		NoHintSolves:   row.NoHintSolves,
		TeamSolves:     row.TeamSolves,
		CategorySolved: make(map[string]int, len(solved)),
		CategoryTotals: make(map[string]int, len(totals)),
	}
	for _, c := range solved {
		stats.CategorySolved[c.Category] = c.Total
	}
	for _, c := range totals {
		stats.CategoryTotals[c.Category] = c.Total
	}
	return stats, nil
}

func (q queries) RecentSolveTimes(ctx context.Context, userID uint, limit int) ([]time.Time, error) {
	var out []time.Time
	err := q.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ? AND correct = ?", userID, true).
		Order("created_at DESC").
		Limit(limit).
		Pluck("created_at", &out).Error
	return out, classify(err)
}

func (q queries) exists(ctx context.Context, model interface{}, where string, args ...interface{}) (bool, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(model).Where(where, args...).Limit(1).Count(&n).Error
	return n > 0, classify(err)
}

func (q queries) HasCorrectSubmission(ctx context.Context, userID, challengeID uint) (bool, error) {
	return q.exists(ctx, &models.Submission{}, "user_id = ? AND challenge_id = ? AND correct = ?", userID, challengeID, true)
}

func (q queries) ChallengeSolved(ctx context.Context, challengeID uint) (bool, error) {
	return q.exists(ctx, &models.Submission{}, "challenge_id = ? AND correct = ?", challengeID, true)
}

func (q queries) CountResolvedHints(ctx context.Context, teamID, challengeID uint) (int, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&models.HintRequest{}).
		Where("team_id = ? AND challenge_id = ? AND status IN ?", teamID, challengeID, resolvedHintStatuses).
		Count(&n).Error
	return int(n), classify(err)
}

// GormStore is the MySQL implementation used in production.
type GormStore struct {
	queries
}

// NewGormStore wraps an initialized gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{queries{db: db}}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{queries{db: tx}})
	})
	return classify(err)
}

func (s *GormStore) CreateHintRequest(ctx context.Context, req *models.HintRequest) error {
	return classify(s.db.WithContext(ctx).Create(req).Error)
}

func (s *GormStore) StalePendingRequests(ctx context.Context, cutoff time.Time, after *PendingRef, limit int) ([]PendingRef, error) {
	q := s.db.WithContext(ctx).Model(&models.HintRequest{}).
		Select("id, requested_at").
		Where("status = ? AND requested_at < ?", models.HintRequestPending, cutoff)
	if after != nil {
		q = q.Where("requested_at > ? OR (requested_at = ? AND id > ?)", after.RequestedAt, after.RequestedAt, after.ID)
	}
	var refs []PendingRef
	err := q.Order("requested_at ASC").Order("id ASC").
		Limit(limit).
		Find(&refs).Error
	return refs, classify(err)
}

func (s *GormStore) ListUserStandings(ctx context.Context, limit int) ([]UserStanding, error) {
	var out []UserStanding
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("id AS user_id, username, team_id, xp, level, last_solve_at").
		Where("is_blocked = ?", false).
		Order("xp DESC").
		Order("last_solve_at IS NULL").
		Order("last_solve_at ASC").
		Order("id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, classify(err)
}

func (s *GormStore) ListTeamStandings(ctx context.Context, limit int) ([]TeamStanding, error) {
	var out []TeamStanding
	err := s.db.WithContext(ctx).Model(&models.Team{}).
		Select("id AS team_id, name, score_points, solves, last_solve_at").
		Order("score_points DESC").
		Order("last_solve_at IS NULL").
		Order("last_solve_at ASC").
		Order("id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, classify(err)
}

func (s *GormStore) CountUsersAhead(ctx context.Context, of UserStanding) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).Where("is_blocked = ?", false)
	if of.LastSolveAt == nil {
		query = query.Where("xp > ? OR (xp = ? AND (last_solve_at IS NOT NULL OR id < ?))",
			of.XP, of.XP, of.UserID)
	} else {
		query = query.Where("xp > ? OR (xp = ? AND last_solve_at IS NOT NULL AND (last_solve_at < ? OR (last_solve_at = ? AND id < ?)))",
			of.XP, of.XP, *of.LastSolveAt, *of.LastSolveAt, of.UserID)
	}
	var n int64
	err := query.Count(&n).Error
	return n, classify(err)
}

func (s *GormStore) PlatformCounts(ctx context.Context) (PlatformCounts, error) {
	var pc PlatformCounts
	db := s.db.WithContext(ctx)
	steps := []struct {
		dest  *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&pc.Users, &models.User{}, "is_blocked = ?", []interface{}{false}},
		{&pc.Teams, &models.Team{}, "", nil},
		{&pc.Challenges, &models.Challenge{}, "visible = ?", []interface{}{true}},
		{&pc.Submissions, &models.Submission{}, "", nil},
		{&pc.CorrectSubmissions, &models.Submission{}, "correct = ?", []interface{}{true}},
		{&pc.PendingHintRequests, &models.HintRequest{}, "status = ?", []interface{}{models.HintRequestPending}},
	}
	for _, st := range steps {
		q := db.Model(st.model)
		if st.where != "" {
			q = q.Where(st.where, st.args...)
		}
		if err := q.Count(st.dest).Error; err != nil {
			return PlatformCounts{}, classify(err)
		}
	}
	return pc, nil
}

type gormTx struct {
	queries
}

func (t *gormTx) lock(ctx context.Context, dest interface{}, id uint) error {
	return classify(t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(dest, id).Error)
}

func (t *gormTx) LockHintRequest(ctx context.Context, id uint) (*models.HintRequest, error) {
	var r models.HintRequest
	if err := t.lock(ctx, &r, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *gormTx) LockTeam(ctx context.Context, id uint) (*models.Team, error) {
	var team models.Team
	if err := t.lock(ctx, &team, id); err != nil {
		return nil, err
	}
	return &team, nil
}

func (t *gormTx) LockUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := t.lock(ctx, &u, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *gormTx) LockChallenge(ctx context.Context, id uint) (*models.Challenge, error) {
	var c models.Challenge
	if err := t.lock(ctx, &c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *gormTx) ResolveHintRequest(ctx context.Context, req *models.HintRequest, from models.HintRequestStatus) error {
	res := t.db.WithContext(ctx).Model(&models.HintRequest{}).
		Where("id = ? AND status = ?", req.ID, from).
		Updates(map[string]interface{}{
			"status":           req.Status,
			"approved_by":      req.ApprovedBy,
			"resolved_at":      req.ResolvedAt,
			"auto_approved_at": req.AutoApprovedAt,
			"paid_with":        req.PaidWith,
			"amount_paid":      req.AmountPaid,
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: hint request %d is no longer %s", apperr.ErrInvalidState, req.ID, from)
	}
	return nil
}

func (t *gormTx) DebitTeam(ctx context.Context, teamID uint, p models.Payment) error {
	db := t.db.WithContext(ctx).Model(&models.Team{})
	var res *gorm.DB
	switch p.Method {
	case models.PaidNothing, "":
		return nil
	case models.PaidFreeHint:
		res = db.Where("id = ? AND free_hints_left > 0", teamID).
			UpdateColumn("free_hints_left", gorm.Expr("free_hints_left - 1"))
	case models.PaidCurrency:
		if p.Amount <= 0 {
			return fmt.Errorf("debit team %d: non-positive amount %d", teamID, p.Amount)
		}
		res = db.Where("id = ? AND hint_currency >= ?", teamID, p.Amount).
			UpdateColumn("hint_currency", gorm.Expr("hint_currency - ?", p.Amount))
	default:
		return fmt.Errorf("debit team %d: unknown payment method %q", teamID, p.Method)
	}
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: team %d cannot cover %s", apperr.ErrInsufficientCurrency, teamID, p.Method)
	}
	return nil
}

func (t *gormTx) CreditTeamSolve(ctx context.Context, teamID uint, points int64, at time.Time) error {
	if points < 0 {
		return fmt.Errorf("credit team %d: negative points %d", teamID, points)
	}
	err := t.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ?", teamID).
		UpdateColumns(map[string]interface{}{
			"score_points":  gorm.Expr("score_points + ?", points),
			"solves":        gorm.Expr("solves + 1"),
			"last_solve_at": gorm.Expr("GREATEST(COALESCE(last_solve_at, ?), ?)", at, at),
		}).Error
	return classify(err)
}

func (t *gormTx) SaveUserProgress(ctx context.Context, u *models.User) error {
	err := t.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", u.ID).
		UpdateColumns(map[string]interface{}{
			"xp":             u.XP,
			"level":          u.Level,
			"current_streak": u.CurrentStreak,
			"longest_streak": u.LongestStreak,
			"last_solve_at":  u.LastSolveAt,
		}).Error
	return classify(err)
}

func (t *gormTx) AppendSubmission(ctx context.Context, s *models.Submission) error {
	return classify(t.db.WithContext(ctx).Create(s).Error)
}

func (t *gormTx) AppendScoreHistory(ctx context.Context, h *models.ScoreHistory) error {
	if h.Delta < 0 {
		return fmt.Errorf("score history delta must be non-negative, got %d", h.Delta)
	}
	return classify(t.db.WithContext(ctx).Create(h).Error)
}

func (t *gormTx) AddUserBadges(ctx context.Context, userID uint, badgeIDs []string, at time.Time) error {
	if len(badgeIDs) == 0 {
		return nil
	}
	rows := make([]models.UserBadge, 0, len(badgeIDs))
	for _, id := range badgeIDs {
		rows = append(rows, models.UserBadge{UserID: userID, BadgeID: id, EarnedAt: at})
	}
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	return classify(err)
}

func (t *gormTx) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return classify(t.db.WithContext(ctx).Create(entry).Error)
}

var (
	_ Store = (*GormStore)(nil)
	_ Tx    = (*gormTx)(nil)
)
