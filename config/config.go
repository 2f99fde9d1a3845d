package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSecretKey is the insecure development signing key used when SECRET_KEY is unset.
const DefaultSecretKey = "dev-key-change-me"

// DateLayout is the calendar date format used in forms, config and URLs.
const DateLayout = "2006-01-02"

// AppConfig holds environment driven configuration values.
type AppConfig struct {
	SecretKey     string
	FastStartDate string
	// Network
	Host          string
	StartPort     int
	PortScanLimit int
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Files
	StaticDir      string
	UploadDir      string
	MaxUploadMB    int
	ThumbnailWidth int
	SweepOrphans   bool
	// Session & request protection
	SessionTTLHours    int
	CookieSecure       bool
	CSRFEnabled        bool
	LoginRatePerMinute int
	AllowedOrigins     []string
	// Redis for caching/session revocation; empty host disables it
	RedisHost       string
	RedisPort       int
	RedisDB         int
	RedisPassword   string
	CacheTTLSeconds int
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// Load reads configuration for the current process.
// Precedence: environment (.env never overrides real variables) -> config/config.json -> defaults.
func Load() AppConfig {
	_ = godotenv.Load()

	cfg := AppConfig{CSRFEnabled: true, ThumbnailWidth: 480}
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring config/config.json: %v", err)
	}
	// Env before defaults: several defaults depend on the chosen driver and static dir.
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.SecretKey == DefaultSecretKey {
		log.Println("SECRET_KEY not set; using the insecure development key")
	}
	if cfg.FastStartDate != "" {
		if _, ok := cfg.FastStart(); !ok {
			log.Printf("FAST_START_DATE %q is not YYYY-MM-DD; inferring the start date instead", cfg.FastStartDate)
		}
	}
	return cfg
}

// FastStart returns the configured day-1 anchor. ok is false when no usable override is set.
func (c AppConfig) FastStart() (time.Time, bool) {
	v := strings.TrimSpace(c.FastStartDate)
	if v == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// MaxUploadBytes is the request body cap.
func (c AppConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// SessionTTL is the lifetime of a session cookie.
func (c AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// CacheTTL is how long aggregated dashboard payloads stay cached.
func (c AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ThumbDir is where downscaled copies of uploads are written.
func (c AppConfig) ThumbDir() string {
	return filepath.Join(c.UploadDir, "thumbs")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped sections from a JSON file. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if f, ok := m[key].(float64); ok {
			return int(f)
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}

	if app, ok := raw["app"]; ok {
		out.SecretKey = getString(app, "SecretKey")
		out.FastStartDate = getString(app, "FastStartDate")
		out.Host = getString(app, "Host")
		out.StartPort = getInt(app, "StartPort")
		out.PortScanLimit = getInt(app, "PortScanLimit")
		out.SessionTTLHours = getInt(app, "SessionTTLHours")
		out.CookieSecure = getBool(app, "CookieSecure")
		out.LoginRatePerMinute = getInt(app, "LoginRatePerMinute")
		if v, ok := app["CSRFEnabled"].(bool); ok {
			out.CSRFEnabled = v
		}
		if arr, ok := app["AllowedOrigins"].([]any); ok {
			for _, it := range arr {
				if s, ok := it.(string); ok {
					out.AllowedOrigins = append(out.AllowedOrigins, s)
				}
			}
		}
	}

	if g, ok := raw["gin"]; ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"]; ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if up, ok := raw["uploads"]; ok {
		out.StaticDir = getString(up, "StaticDir")
		out.UploadDir = getString(up, "UploadDir")
		out.MaxUploadMB = getInt(up, "MaxUploadMB")
		if _, ok := up["ThumbnailWidth"]; ok {
			out.ThumbnailWidth = getInt(up, "ThumbnailWidth")
		}
		out.SweepOrphans = getBool(up, "SweepOrphans")
	}

	if rds, ok := raw["redis"]; ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
		out.CacheTTLSeconds = getInt(rds, "CacheTTLSeconds")
	}

	if lg, ok := raw["log"]; ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}
	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.SecretKey == "" {
		c.SecretKey = DefaultSecretKey
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.StartPort == 0 {
		c.StartPort = 5000
	}
	if c.PortScanLimit == 0 {
		c.PortScanLimit = 20
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.DBDriver == "sqlite" && c.DatabaseURI == "" {
		c.DatabaseURI = "fasting_diary.db"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		switch c.DBDriver {
		case "postgres":
			c.DBPort = "5432"
		default:
			c.DBPort = "3306"
		}
	}
	if c.DBName == "" {
		c.DBName = "fasting_diary"
	}
	if c.StaticDir == "" {
		c.StaticDir = "static"
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.StaticDir, "uploads")
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 16
	}
	if c.SessionTTLHours == 0 {
		c.SessionTTLHours = 72
	}
	if c.LoginRatePerMinute == 0 {
		c.LoginRatePerMinute = 10
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = 60
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
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("SECRET_KEY", ""); v != "" {
		c.SecretKey = v
	}
	if v := getEnv("FAST_START_DATE", ""); v != "" {
		c.FastStartDate = v
	}
	if v := getEnv("APP_HOST", ""); v != "" {
		c.Host = v
	}
	if v := getEnv("APP_PORT", ""); v != "" {
		c.StartPort = mustParseInt(v)
	}
	if v := getEnv("PORT_SCAN_LIMIT", ""); v != "" {
		c.PortScanLimit = mustParseInt(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
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
	if v := getEnv("STATIC_DIR", ""); v != "" {
		c.StaticDir = v
	}
	if v := getEnv("UPLOAD_DIR", ""); v != "" {
		c.UploadDir = v
	}
	if v := getEnv("MAX_UPLOAD_MB", ""); v != "" {
		c.MaxUploadMB = mustParseInt(v)
	}
	if v := getEnv("THUMBNAIL_WIDTH", ""); v != "" {
		c.ThumbnailWidth = mustParseInt(v)
	}
	if v := getEnv("SWEEP_ORPHANS", ""); v != "" {
		c.SweepOrphans = v == "true"
	}
	if v := getEnv("SESSION_TTL_HOURS", ""); v != "" {
		c.SessionTTLHours = mustParseInt(v)
	}
	if v := getEnv("COOKIE_SECURE", ""); v != "" {
		c.CookieSecure = v == "true"
	}
	if v := getEnv("CSRF_ENABLED", ""); v != "" {
		c.CSRFEnabled = v == "true"
	}
	if v := getEnv("LOGIN_RATE_PER_MINUTE", ""); v != "" {
		c.LoginRatePerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
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
	if v := getEnv("CACHE_TTL_SECONDS", ""); v != "" {
		c.CacheTTLSeconds = mustParseInt(v)
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
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
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
