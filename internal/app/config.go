package app

import (
	"os"
	"strconv"
	"strings"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	HTTPAddr string

	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTLMin int

	GeminiAPIKey      string
	GeminiModel       string
	QuizQuestionCount int
	ScoringConfigPath string

	AuthJWTSecret     string
	AuthLocalUser     string
	AuthLocalPassHash string

	CORSOrigins        []string
	CSRFEnforced       bool
	RateLimitPerMinute int
	HistoryLimit       int
}

func LoadConfig() Config {
	return Config{
		AppEnv:             envOrDefault("APP_ENV", "development"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		DBDriver:           envOrDefault("DB_DRIVER", "sqlite"),
		DBDSN:              os.Getenv("DB_DSN"),
		DBMaxOpenConns:     intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:     intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:  intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            stringsToInt(os.Getenv("REDIS_DB")),
		SessionTTLMin:      intOrDefault("SESSION_TTL_MINUTES", 240),
		GeminiAPIKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:        envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		QuizQuestionCount:  intOrDefault("QUIZ_QUESTION_COUNT", 10),
		ScoringConfigPath:  strings.TrimSpace(os.Getenv("SCORING_CONFIG")),
		AuthJWTSecret:      os.Getenv("AUTH_JWT_SECRET"),
		AuthLocalUser:      strings.TrimSpace(os.Getenv("AUTH_LOCAL_USER")),
		AuthLocalPassHash:  strings.TrimSpace(os.Getenv("AUTH_LOCAL_PASS_HASH")),
		CORSOrigins:        csvOrDefault("CORS_ORIGINS", []string{"http://localhost:3000"}),
		CSRFEnforced:       boolOrDefault("CSRF_ENFORCED", false),
		RateLimitPerMinute: intOrDefault("RATE_LIMIT_PER_MINUTE", 60),
		HistoryLimit:       intOrDefault("HISTORY_LIMIT", 20),
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func csvOrDefault(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
