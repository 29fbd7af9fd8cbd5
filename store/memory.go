package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cppla/heistctf/apperr"
	"github.com/cppla/heistctf/models"
)

// DefaultLockTimeout bounds how long a MemoryStore transaction waits for a row.
const DefaultLockTimeout = 5 * time.Second

type badgeKey struct {
	userID  uint
	badgeID string
}

// MemoryStore keeps every table in process. Row locks are per-row channels
// held until the transaction ends, and writes are undone on rollback. Readers
// outside a transaction may observe uncommitted writes, so every mutation
// path locks the rows it changes first, as the hint and scoring flows do.
type MemoryStore struct {
	LockTimeout time.Duration

	mu          sync.RWMutex
	seq         uint
	users       map[uint]models.User
	teams       map[uint]models.Team
	challenges  map[uint]models.Challenge
	hints       map[uint]models.Hint
	requests    map[uint]models.HintRequest
	submissions map[uint]models.Submission
	history     map[uint]models.ScoreHistory
	audit       map[uint]models.AuditLog
	badges      map[badgeKey]models.UserBadge

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		LockTimeout: DefaultLockTimeout,
		users:       make(map[uint]models.User),
		teams:       make(map[uint]models.Team),
		challenges:  make(map[uint]models.Challenge),
		hints:       make(map[uint]models.Hint),
		requests:    make(map[uint]models.HintRequest),
		submissions: make(map[uint]models.Submission),
		history:     make(map[uint]models.ScoreHistory),
		audit:       make(map[uint]models.AuditLog),
		badges:      make(map[badgeKey]models.UserBadge),
		locks:       make(map[string]chan struct{}),
	}
}

// nextID must be called with mu held.
func (s *MemoryStore) nextID(id uint) uint {
	if id == 0 {
		s.seq++
		return s.seq
	}
	if id > s.seq {
		s.seq = id
	}
	return id
}

// PutUser inserts or replaces a user, assigning an id when zero.
func (s *MemoryStore) PutUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextID(u.ID)
	if u.Role == "" {
		u.Role = models.RolePlayer
	}
	if u.Level == 0 {
		u.Level = 1
	}
	s.users[u.ID] = u
	return u
}

// PutTeam inserts or replaces a team.
func (s *MemoryStore) PutTeam(t models.Team) models.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID(t.ID)
	s.teams[t.ID] = t
	return t
}

// PutChallenge inserts or replaces a challenge.
func (s *MemoryStore) PutChallenge(c models.Challenge) models.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID(c.ID)
	s.challenges[c.ID] = c
	return c
}

// PutHint inserts or replaces a hint.
func (s *MemoryStore) PutHint(h models.Hint) models.Hint {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = s.nextID(h.ID)
	s.hints[h.ID] = h
	return h
}

// PutHintRequest inserts or replaces a request as-is, for seeding old or
// already resolved requests.
func (s *MemoryStore) PutHintRequest(r models.HintRequest) models.HintRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID(r.ID)
	s.requests[r.ID] = r
	return r
}

// PutSubmission seeds a historical submission.
func (s *MemoryStore) PutSubmission(sub models.Submission) models.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.nextID(sub.ID)
	s.submissions[sub.ID] = sub
	return sub
}

// AuditLogs returns every audit entry in insertion order.
func (s *MemoryStore) AuditLogs() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditLog, 0, len(s.audit))
	for _, a := range s.audit {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ScoreHistory returns the ledger rows of one team in insertion order.
func (s *MemoryStore) ScoreHistory(teamID uint) []models.ScoreHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ScoreHistory
	for _, h := range s.history {
		if h.TeamID != nil && *h.TeamID == teamID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func notFound(kind string, id uint) error {
	return fmt.Errorf("%w: %s %d", apperr.ErrNotFound, kind, id)
}

func (s *MemoryStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (s *MemoryStore) GetTeam(ctx context.Context, id uint) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, notFound("team", id)
	}
	return &t, nil
}

func (s *MemoryStore) GetChallenge(ctx context.Context, id uint) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, notFound("challenge", id)
	}
	return &c, nil
}

func (s *MemoryStore) GetHintRequest(ctx context.Context, id uint) (*models.HintRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, notFound("hint request", id)
	}
	return &r, nil
}

func (s *MemoryStore) FindHint(ctx context.Context, hintID, challengeID uint) (*models.Hint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hints[hintID]
	if !ok || h.ChallengeID != challengeID {
		return nil, fmt.Errorf("%w: hint %d for challenge %d", apperr.ErrNotFound, hintID, challengeID)
	}
	return &h, nil
}

func (s *MemoryStore) ListHintRequests(ctx context.Context, f HintRequestFilter) ([]models.HintRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.HintRequest
	for _, r := range s.requests {
		if f.TeamID != nil && r.TeamID != *f.TeamID {
			continue
		}
		if f.ChallengeID != nil && r.ChallengeID != *f.ChallengeID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := f.NormalizedLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserBadge
	for k, b := range s.badges {
		if k.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	return out, nil
}

func (s *MemoryStore) SubmissionStats(ctx context.Context, userID uint, speedThreshold int) (models.SubmissionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.SubmissionStats{
		CategorySolved: make(map[string]int),
		CategoryTotals: make(map[string]int),
	}
	for _, c := range s.challenges {
		if c.Visible {
			stats.CategoryTotals[c.Category]++
		}
	}
	solved := make(map[uint]struct{})
	for _, sub := range s.submissions {
		if sub.UserID != userID || !sub.Correct {
			continue
		}
		stats.CorrectSolves++
		if sub.IsFirstBlood {
			stats.FirstBloods++
		}
		if sub.SolveSeconds > 0 && sub.SolveSeconds < speedThreshold {
			stats.SpeedSolves++
		}
		if sub.HintsUsed == 0 {
			stats.NoHintSolves++
		}
		if sub.TeamID != nil {
			stats.TeamSolves++
		}
		if c, ok := s.challenges[sub.ChallengeID]; ok && c.Visible {
			if _, seen := solved[c.ID]; !seen {
				solved[c.ID] = struct{}{}
				stats.CategorySolved[c.Category]++
			}
		}
	}
	return stats, nil
}

func (s *MemoryStore) RecentSolveTimes(ctx context.Context, userID uint, limit int) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []time.Time
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.Correct {
			out = append(out, sub.CreatedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) HasCorrectSubmission(ctx context.Context, userID, challengeID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.ChallengeID == challengeID && sub.Correct {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ChallengeSolved(ctx context.Context, challengeID uint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.submissions {
		if sub.ChallengeID == challengeID && sub.Correct {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountResolvedHints(ctx context.Context, teamID, challengeID uint) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.requests {
		if r.TeamID == teamID && r.ChallengeID == challengeID &&
			(r.Status == models.HintRequestApproved || r.Status == models.HintRequestAutoApproved) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateHintRequest(ctx context.Context, req *models.HintRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.ID = s.nextID(0)
	if req.Status == "" {
		req.Status = models.HintRequestPending
	}
	if req.PaidWith == "" {
		req.PaidWith = models.PaidNothing
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryStore) StalePendingRequests(ctx context.Context, cutoff time.Time, after *PendingRef, limit int) ([]PendingRef, error) {
	s.mu.RLock()
	var stale []PendingRef
	for _, r := range s.requests {
		if r.Status != models.HintRequestPending || !r.RequestedAt.Before(cutoff) {
			continue
		}
		ref := PendingRef{ID: r.ID, RequestedAt: r.RequestedAt}
		if after != nil && !pendingAfter(ref, *after) {
			continue
		}
		stale = append(stale, ref)
	}
	s.mu.RUnlock()
	sort.Slice(stale, func(i, j int) bool { return pendingAfter(stale[j], stale[i]) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// pendingAfter reports whether a comes after b in sweep order.
func pendingAfter(a, b PendingRef) bool {
	if !a.RequestedAt.Equal(b.RequestedAt) {
		return a.RequestedAt.After(b.RequestedAt)
	}
	return a.ID > b.ID
}

func (s *MemoryStore) userStandings() []UserStanding {
	out := make([]UserStanding, 0, len(s.users))
	for _, u := range s.users {
		if u.IsBlocked {
			continue
		}
		out = append(out, UserStanding{
			UserID: u.ID, Username: u.Username, TeamID: u.TeamID,
			XP: u.XP, Level: u.Level, LastSolveAt: u.LastSolveAt,
		})
	}
	return out
}

func (s *MemoryStore) ListUserStandings(ctx context.Context, limit int) ([]UserStanding, error) {
	s.mu.RLock()
	out := s.userStandings()
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return UserAhead(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListTeamStandings(ctx context.Context, limit int) ([]TeamStanding, error) {
	s.mu.RLock()
	out := make([]TeamStanding, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, TeamStanding{
			TeamID: t.ID, Name: t.Name, ScorePoints: t.ScorePoints,
			Solves: t.Solves, LastSolveAt: t.LastSolveAt,
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return TeamAhead(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountUsersAhead(ctx context.Context, of UserStanding) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, st := range s.userStandings() {
		if st.UserID != of.UserID && UserAhead(st, of) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PlatformCounts(ctx context.Context) (PlatformCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc := PlatformCounts{Teams: int64(len(s.teams)), Submissions: int64(len(s.submissions))}
	for _, u := range s.users {
		if !u.IsBlocked {
			pc.Users++
		}
	}
	for _, c := range s.challenges {
		if c.Visible {
			pc.Challenges++
		}
	}
	for _, sub := range s.submissions {
		if sub.Correct {
			pc.CorrectSubmissions++
		}
	}
	for _, r := range s.requests {
		if r.Status == models.HintRequestPending {
			pc.PendingHintRequests++
		}
	}
	return pc, nil
}

func (s *MemoryStore) rowLock(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// Transaction runs fn holding whatever row locks it takes. A returned error
// or a panic undoes every write fn made.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{MemoryStore: s, held: make(map[string]struct{})}
	defer tx.release()
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

type memTx struct {
	*MemoryStore
	held map[string]struct{}
	undo []func()
}

func (t *memTx) acquire(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	timeout := t.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t.rowLock(key) <- struct{}{}:
		t.held[key] = struct{}{}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock wait timeout on %s", apperr.ErrConcurrencyConflict, key)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", apperr.ErrTransientStore, ctx.Err())
	}
}

func (t *memTx) release() {
	for key := range t.held {
		<-t.rowLock(key)
	}
	t.held = nil
}

func (t *memTx) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockHintRequest(ctx context.Context, id uint) (*models.HintRequest, error) {
	if err := t.acquire(ctx, fmt.Sprintf("hint_request:%d", id)); err != nil {
		return nil, err
	}
	return t.GetHintRequest(ctx, id)
}

func (t *memTx) LockTeam(ctx context.Context, id uint) (*models.Team, error) {
	if err := t.acquire(ctx, fmt.Sprintf("team:%d", id)); err != nil {
		return nil, err
	}
	return t.GetTeam(ctx, id)
}

func (t *memTx) LockUser(ctx context.Context, id uint) (*models.User, error) {
	if err := t.acquire(ctx, fmt.Sprintf("user:%d", id)); err != nil {
		return nil, err
	}
	return t.GetUser(ctx, id)
}

func (t *memTx) LockChallenge(ctx context.Context, id uint) (*models.Challenge, error) {
	if err := t.acquire(ctx, fmt.Sprintf("challenge:%d", id)); err != nil {
		return nil, err
	}
	return t.GetChallenge(ctx, id)
}

func (t *memTx) ResolveHintRequest(ctx context.Context, req *models.HintRequest, from models.HintRequestStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.requests[req.ID]
	if !ok || prev.Status != from {
		return fmt.Errorf("%w: hint request %d is no longer %s", apperr.ErrInvalidState, req.ID, from)
	}
	next := prev
	next.Status = req.Status
	next.ApprovedBy = req.ApprovedBy
	next.ResolvedAt = req.ResolvedAt
	next.AutoApprovedAt = req.AutoApprovedAt
	next.PaidWith = req.PaidWith
	next.AmountPaid = req.AmountPaid
	t.requests[req.ID] = next
	t.undo = append(t.undo, func() { t.requests[req.ID] = prev })
	return nil
}

func (t *memTx) DebitTeam(ctx context.Context, teamID uint, p models.Payment) error {
	if p.Method == models.PaidNothing || p.Method == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.teams[teamID]
	if !ok {
		return fmt.Errorf("%w: team %d cannot cover %s", apperr.ErrInsufficientCurrency, teamID, p.Method)
	}
	next := prev
	switch p.Method {
	case models.PaidFreeHint:
		if next.FreeHintsLeft <= 0 {
			return fmt.Errorf("%w: team %d cannot cover %s", apperr.ErrInsufficientCurrency, teamID, p.Method)
		}
		next.FreeHintsLeft--
	case models.PaidCurrency:
		if p.Amount <= 0 {
			return fmt.Errorf("debit team %d: non-positive amount %d", teamID, p.Amount)
		}
		if next.HintCurrency < p.Amount {
			return fmt.Errorf("%w: team %d cannot cover %s", apperr.ErrInsufficientCurrency, teamID, p.Method)
		}
		next.HintCurrency -= p.Amount
	default:
		return fmt.Errorf("debit team %d: unknown payment method %q", teamID, p.Method)
	}
	t.teams[teamID] = next
	t.undo = append(t.undo, func() { t.teams[teamID] = prev })
	return nil
}

func (t *memTx) CreditTeamSolve(ctx context.Context, teamID uint, points int64, at time.Time) error {
	if points < 0 {
		return fmt.Errorf("credit team %d: negative points %d", teamID, points)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.teams[teamID]
	if !ok {
		return nil
	}
	next := prev
	next.ScorePoints += points
	next.Solves++
	if next.LastSolveAt == nil || at.After(*next.LastSolveAt) {
		solvedAt := at
		next.LastSolveAt = &solvedAt
	}
	t.teams[teamID] = next
	t.undo = append(t.undo, func() { t.teams[teamID] = prev })
	return nil
}

func (t *memTx) SaveUserProgress(ctx context.Context, u *models.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.users[u.ID]
	if !ok {
		return notFound("user", u.ID)
	}
	next := prev
	next.XP = u.XP
	next.Level = u.Level
	next.CurrentStreak = u.CurrentStreak
	next.LongestStreak = u.LongestStreak
	next.LastSolveAt = u.LastSolveAt
	t.users[u.ID] = next
	t.undo = append(t.undo, func() { t.users[u.ID] = prev })
	return nil
}

func (t *memTx) AppendSubmission(ctx context.Context, sub *models.Submission) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub.ID = t.nextID(0)
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	id := sub.ID
	t.submissions[id] = *sub
	t.undo = append(t.undo, func() { delete(t.submissions, id) })
	return nil
}

func (t *memTx) AppendScoreHistory(ctx context.Context, h *models.ScoreHistory) error {
	if h.Delta < 0 {
		return fmt.Errorf("score history delta must be non-negative, got %d", h.Delta)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h.ID = t.nextID(0)
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	id := h.ID
	t.history[id] = *h
	t.undo = append(t.undo, func() { delete(t.history, id) })
	return nil
}

func (t *memTx) AddUserBadges(ctx context.Context, userID uint, badgeIDs []string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, badgeID := range badgeIDs {
		key := badgeKey{userID: userID, badgeID: badgeID}
		if _, ok := t.badges[key]; ok {
			continue
		}
		t.badges[key] = models.UserBadge{ID: t.nextID(0), UserID: userID, BadgeID: badgeID, EarnedAt: at}
		t.undo = append(t.undo, func() { delete(t.badges, key) })
	}
	return nil
}

func (t *memTx) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry.ID = t.nextID(0)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	id := entry.ID
	t.audit[id] = *entry
	t.undo = append(t.undo, func() { delete(t.audit, id) })
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
