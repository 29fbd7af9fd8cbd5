package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by StoreDriver.
const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort                  string
	JWTSecret                string
	RateLimitPerMinute       int
	HintRequestRatePerMinute int
	AllowedOrigins           []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Persistence: "mysql" (default) or "memory" for local runs
	StoreDriver string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caches and the sweep lease
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Hint economy
	HintAutoApproveSeconds   int
	HintSweepIntervalSeconds int
	HintSweepBatchSize       int
	HintSweepLeaseSeconds    int
	HintCatalogCacheSeconds  int
	// Ranking and scoring
	LeaderboardCacheSeconds int
	StreakTimezone          string
	SpeedThresholdSeconds   int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// AutoApproveAfter is how long a request stays pending before the sweeper takes it.
func (c AppConfig) AutoApproveAfter() time.Duration {
	return time.Duration(c.HintAutoApproveSeconds) * time.Second
}

// SweepInterval is the period of the background sweeper.
func (c AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.HintSweepIntervalSeconds) * time.Second
}

// SweepLeaseTTL bounds how long one instance owns a sweep round.
func (c AppConfig) SweepLeaseTTL() time.Duration {
	return time.Duration(c.HintSweepLeaseSeconds) * time.Second
}

// HintCacheTTL is the lifetime of cached hint rows.
func (c AppConfig) HintCacheTTL() time.Duration {
	return time.Duration(c.HintCatalogCacheSeconds) * time.Second
}

// LeaderboardCacheTTL is the lifetime of cached leaderboard pages.
func (c AppConfig) LeaderboardCacheTTL() time.Duration {
	return time.Duration(c.LeaderboardCacheSeconds) * time.Second
}

// StreakLocation resolves StreakTimezone, falling back to UTC.
func (c AppConfig) StreakLocation() *time.Location {
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		log.Printf("unknown StreakTimezone %q, using UTC: %v", c.StreakTimezone, err)
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.HintRequestRatePerMinute = getInt(app, "HintRequestRatePerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.StoreDriver = getString(dbs, "StoreDriver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.GinPath = getString(lg, "GinPath")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if h, ok := raw["hints"].(map[string]any); ok {
		out.HintAutoApproveSeconds = getInt(h, "AutoApproveSeconds")
		out.HintSweepIntervalSeconds = getInt(h, "SweepIntervalSeconds")
		out.HintSweepBatchSize = getInt(h, "SweepBatchSize")
		out.HintSweepLeaseSeconds = getInt(h, "SweepLeaseSeconds")
		out.HintCatalogCacheSeconds = getInt(h, "CatalogCacheSeconds")
	}

	if lb, ok := raw["leaderboard"].(map[string]any); ok {
		out.LeaderboardCacheSeconds = getInt(lb, "CacheSeconds")
		out.StreakTimezone = getString(lb, "StreakTimezone")
		out.SpeedThresholdSeconds = getInt(lb, "SpeedThresholdSeconds")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.HintRequestRatePerMinute == 0 {
		c.HintRequestRatePerMinute = 10
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.StoreDriver == "" {
		c.StoreDriver = StoreDriverMySQL
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "heistctf"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.HintAutoApproveSeconds == 0 {
		c.HintAutoApproveSeconds = 90
	}
	if c.HintSweepIntervalSeconds == 0 {
		c.HintSweepIntervalSeconds = 30
	}
	if c.HintSweepBatchSize == 0 {
		c.HintSweepBatchSize = 100
	}
	if c.HintSweepLeaseSeconds == 0 {
		c.HintSweepLeaseSeconds = 25
	}
	if c.HintCatalogCacheSeconds == 0 {
		c.HintCatalogCacheSeconds = 600
	}
	if c.LeaderboardCacheSeconds == 0 {
		c.LeaderboardCacheSeconds = 30
	}
	if c.StreakTimezone == "" {
		c.StreakTimezone = "UTC"
	}
	if c.SpeedThresholdSeconds == 0 {
		c.SpeedThresholdSeconds = 300
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("HINT_REQUEST_RATE_PER_MINUTE", ""); v != "" {
		c.HintRequestRatePerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("STORE_DRIVER", ""); v != "" {
		c.StoreDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("HINT_AUTO_APPROVE_SECONDS", ""); v != "" {
		c.HintAutoApproveSeconds = mustParseInt(v)
	}
	if v := getEnv("HINT_SWEEP_INTERVAL_SECONDS", ""); v != "" {
		c.HintSweepIntervalSeconds = mustParseInt(v)
	}
	if v := getEnv("HINT_SWEEP_BATCH_SIZE", ""); v != "" {
		c.HintSweepBatchSize = mustParseInt(v)
	}
	if v := getEnv("HINT_SWEEP_LEASE_SECONDS", ""); v != "" {
		c.HintSweepLeaseSeconds = mustParseInt(v)
	}
	if v := getEnv("HINT_CATALOG_CACHE_SECONDS", ""); v != "" {
		c.HintCatalogCacheSeconds = mustParseInt(v)
	}
	if v := getEnv("LEADERBOARD_CACHE_SECONDS", ""); v != "" {
		c.LeaderboardCacheSeconds = mustParseInt(v)
	}
	if v := getEnv("STREAK_TIMEZONE", ""); v != "" {
		c.StreakTimezone = v
	}
	if v := getEnv("SPEED_THRESHOLD_SECONDS", ""); v != "" {
		c.SpeedThresholdSeconds = mustParseInt(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
