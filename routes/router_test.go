package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cppla/heistctf/catalog"
	"github.com/cppla/heistctf/config"
	"github.com/cppla/heistctf/hints"
	"github.com/cppla/heistctf/leaderboard"
	"github.com/cppla/heistctf/metrics"
	"github.com/cppla/heistctf/models"
	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "router-test-secret")
	os.Exit(m.Run())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	t       *testing.T
	router  *gin.Engine
	store   *store.MemoryStore
	team    models.Team
	captain models.User
	member  models.User
	admin   models.User
	ch      models.Challenge
	hint    models.Hint
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s := store.NewMemoryStore()

	captainID := uint(10)
	team := s.PutTeam(models.Team{Name: "red", CaptainID: &captainID, HintCurrency: 50})
	captain := s.PutUser(models.User{ID: captainID, Username: "cap", TeamID: &team.ID})
	member := s.PutUser(models.User{Username: "member", TeamID: &team.ID})
	admin := s.PutUser(models.User{Username: "judge", Role: models.RoleAdmin})
	ch := s.PutChallenge(models.Challenge{Title: "vault", Category: "crypto", BasePoints: 100, Visible: true})
	hint := s.PutHint(models.Hint{ChallengeID: ch.ID, HintNumber: 1, Content: "check the nonce", CostType: models.HintCostCurrency, CostAmount: 30})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	engine := scoring.NewEngine(scoring.DefaultConfig())
	board := leaderboard.NewBoard(s, engine, nil, time.Minute, logger)
	svc := hints.NewService(s, catalog.New(s, nil, time.Minute), logger, hints.WithMetrics(m))
	recorder := scoring.NewRecorder(s, engine, logger, scoring.WithInvalidator(board), scoring.WithMetrics(m))

	cfg := config.AppConfig{
		GinMode:                  "test",
		RateLimitPerMinute:       10000,
		HintRequestRatePerMinute: 10000,
		AllowedOrigins:           []string{"*"},
		HintAutoApproveSeconds:   90,
	}
	r := SetupRouter(cfg, Dependencies{
		Store:    s,
		Hints:    svc,
		Sweeper:  hints.NewSweeper(svc, 90*time.Second, 10),
		Recorder: recorder,
		Board:    board,
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
	})
	return &apiFixture{t: t, router: r, store: s, team: team, captain: captain, member: member, admin: admin, ch: ch, hint: hint}
}

func (f *apiFixture) token(u models.User) string {
	f.t.Helper()
	claims := utils.Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.Get().JWTSecret))
	require.NoError(f.t, err)
	return tok
}

func (f *apiFixture) do(method, path string, as *models.User, body interface{}) (int, envelope) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+f.token(*as))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestHintRequestFlow(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(http.MethodPost, "/api/v1/hint-requests", &f.member, gin.H{
		"challenge_id": f.ch.ID, "hint_id": f.hint.ID, "note": "<i>please</i>",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var created models.HintRequest
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, models.HintRequestPending, created.Status)
	assert.Equal(t, "please", created.Note)

	path := fmt.Sprintf("/api/v1/hint-requests/%d", created.ID)

	status, env = f.do(http.MethodPost, path+"/approve", &f.member, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 40301, env.Code)

	status, env = f.do(http.MethodGet, path, &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	var view hints.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Empty(t, view.Content)

	status, env = f.do(http.MethodPost, path+"/approve", &f.captain, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var approved models.HintRequest
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	assert.Equal(t, models.HintRequestApproved, approved.Status)
	assert.Equal(t, int64(30), approved.AmountPaid)

	status, env = f.do(http.MethodPost, path+"/reject", &f.admin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40901, env.Code)

	status, env = f.do(http.MethodGet, path, &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "check the nonce", view.Content)

	// 20 left, the next one cannot be paid
	_, env = f.do(http.MethodPost, "/api/v1/hint-requests", &f.member, gin.H{"challenge_id": f.ch.ID, "hint_id": f.hint.ID})
	require.NoError(t, json.Unmarshal(env.Data, &created))
	status, env = f.do(http.MethodPost, fmt.Sprintf("/api/v1/hint-requests/%d/approve", created.ID), &f.captain, nil)
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, 40201, env.Code)

	status, env = f.do(http.MethodGet, "/api/v1/hint-requests?status=pending", &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Items []models.HintRequest `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
}

func TestHintRequestValidation(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(http.MethodPost, "/api/v1/hint-requests", nil, gin.H{"challenge_id": f.ch.ID, "hint_id": f.hint.ID})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := f.do(http.MethodPost, "/api/v1/hint-requests", &f.member, gin.H{"hint_id": f.hint.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40020, env.Code)

	status, env = f.do(http.MethodPost, "/api/v1/hint-requests", &f.admin, gin.H{"challenge_id": f.ch.ID, "hint_id": f.hint.ID})
	assert.Equal(t, http.StatusForbidden, status, "admins without a team cannot buy hints")
	assert.Equal(t, 40301, env.Code)

	status, _ = f.do(http.MethodGet, "/api/v1/hint-requests?status=bogus", &f.member, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(http.MethodGet, "/api/v1/hint-requests/abc", &f.member, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = f.do(http.MethodGet, "/api/v1/hint-requests/999", &f.member, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40401, env.Code)
}

func TestAdminSweep(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(http.MethodPost, "/api/v1/admin/hint-requests/sweep", &f.captain, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := f.do(http.MethodPost, "/api/v1/admin/hint-requests/sweep", &f.admin, nil)
	require.Equal(t, http.StatusOK, status)
	var report hints.SweepReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Zero(t, report.Scanned)
}

func TestSubmissionAndGamification(t *testing.T) {
	f := newAPIFixture(t)
	event := gin.H{"user_id": f.member.ID, "challenge_id": f.ch.ID, "correct": true, "solve_seconds": 120}

	status, _ := f.do(http.MethodPost, "/api/v1/submissions", &f.member, event)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := f.do(http.MethodPost, "/api/v1/submissions", &f.admin, event)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var out scoring.Outcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	// 100 * 1.5 first blood * 1.2 speed * 1.05 team
	assert.Equal(t, int64(189), out.XPAwarded)
	assert.Contains(t, out.NewBadges, scoring.BadgeFirstSolve)

	status, _ = f.do(http.MethodPost, "/api/v1/submissions", &f.admin, event)
	assert.Equal(t, http.StatusConflict, status)

	status, env = f.do(http.MethodGet, "/api/v1/leaderboard?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var board struct {
		Items []leaderboard.Entry `json:"items"`
		Limit int                 `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	assert.Equal(t, 5, board.Limit)
	require.NotEmpty(t, board.Items)
	assert.Equal(t, f.member.ID, board.Items[0].UserID)
	assert.Equal(t, 1, board.Items[0].Rank)

	status, env = f.do(http.MethodGet, "/api/v1/scoreboard/teams", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var teams struct {
		Items []leaderboard.TeamEntry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &teams))
	require.Len(t, teams.Items, 1)
	assert.Equal(t, int64(100), teams.Items[0].ScorePoints)

	status, env = f.do(http.MethodGet, "/api/v1/gamification/stats", &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	var stats leaderboard.UserStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(189), stats.XP)
	assert.Equal(t, int64(1), stats.Rank)

	status, env = f.do(http.MethodGet, "/api/v1/gamification/badges", &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	var badges struct {
		Earned int `json:"earned"`
		Total  int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &badges))
	assert.Equal(t, len(out.NewBadges), badges.Earned)
	assert.Equal(t, 7, badges.Total)

	status, _ = f.do(http.MethodPost, "/api/v1/gamification/sync", &f.member, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestGamificationCalculators(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(http.MethodGet, "/api/v1/gamification/xp?base_points=100&first_blood=true&solve_seconds=120&streak_count=3&has_team=true", &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	var xp struct {
		XP int64 `json:"xp"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &xp))
	assert.Equal(t, int64(207), xp.XP)

	status, env = f.do(http.MethodGet, "/api/v1/gamification/level-progress?xp=600", &f.member, nil)
	require.Equal(t, http.StatusOK, status)
	var lp struct {
		Progress   scoring.LevelProgress `json:"progress"`
		NextLevels []scoring.LevelStep   `json:"next_levels"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lp))
	assert.Equal(t, 3, lp.Progress.Level)
	assert.Len(t, lp.NextLevels, 5)
	assert.Equal(t, 4, lp.NextLevels[0].Level)

	status, _ = f.do(http.MethodGet, "/api/v1/gamification/level-progress?xp=-1", &f.member, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPublicEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := f.do(http.MethodGet, "/api/v1/stats", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var counts store.PlatformCounts
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, int64(3), counts.Users)

	status, _ = f.do(http.MethodGet, "/api/v1/config/scoring", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = f.do(http.MethodGet, "/api/v1/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "heistctf_http_requests_total")
}
