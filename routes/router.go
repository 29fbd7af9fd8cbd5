package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cppla/heistctf/config"
	"github.com/cppla/heistctf/controllers"
	"github.com/cppla/heistctf/hints"
	"github.com/cppla/heistctf/leaderboard"
	"github.com/cppla/heistctf/metrics"
	"github.com/cppla/heistctf/middleware"
	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

// Dependencies are the services the HTTP layer calls into.
type Dependencies struct {
	Store    store.Store
	Hints    *hints.Service
	Sweeper  hints.Runner
	Recorder *scoring.Recorder
	Board    *leaderboard.Board
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, d Dependencies) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.RequestID())
	// Access log goes to its own rolling file when configured
	accessLog := d.Logger
	if accessLog == nil {
		accessLog = zap.NewNop()
	}
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLog = gl
		} else {
			accessLog.Warn("gin access log unavailable, using app logger", zap.Error(err))
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, false))
	r.Use(metrics.GinMiddleware(d.Metrics))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	hintController := controllers.NewHintRequestController(d.Hints, d.Sweeper, d.Store)
	submissionController := controllers.NewSubmissionController(d.Recorder, d.Store)
	gamificationController := controllers.NewGamificationController(d.Recorder, d.Board, d.Store)
	statsController := controllers.NewStatsController(d.Board)
	configController := controllers.NewConfigController(d.Recorder.Engine(), cfg)

	api := r.Group("/api/v1")
	api.Use(middleware.KeyedRateLimit(cfg.RateLimitPerMinute, middleware.ByClientIP))

	// Public rankings and config
	api.GET("/leaderboard", statsController.Leaderboard)
	api.GET("/scoreboard/teams", statsController.TeamScoreboard)
	api.GET("/stats", statsController.GetStats)
	api.GET("/config/scoring", configController.GetScoring)
	api.GET("/config/hints", configController.GetHints)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())

	hintGroup := protected.Group("/hint-requests")
	hintGroup.POST("", middleware.KeyedRateLimit(cfg.HintRequestRatePerMinute, middleware.ByUser), hintController.Create)
	hintGroup.GET("", hintController.List)
	hintGroup.GET("/:id", hintController.Get)
	hintGroup.POST("/:id/approve", hintController.Approve)
	hintGroup.POST("/:id/reject", hintController.Reject)

	protected.POST("/admin/hint-requests/sweep", hintController.Sweep)
	protected.POST("/submissions", submissionController.Record)

	gamification := protected.Group("/gamification")
	gamification.POST("/sync", gamificationController.Sync)
	gamification.GET("/xp", gamificationController.XPPreview)
	gamification.GET("/level-progress", gamificationController.LevelProgress)
	gamification.GET("/stats", gamificationController.Stats)
	gamification.GET("/badges", gamificationController.Badges)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	})

	return r
}
