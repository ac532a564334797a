package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	JWTSecret  string
	CronSecret string

	// Location defines the calendar day used for DAILY quizzes.
	Location              *time.Location
	DailyTimeLimitSeconds int
	LowPoolThreshold      int

	RedisURL string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	AnthropicAPIKey string
	AnthropicModel  string
	MockGenerator   bool

	AllowedOrigins []string
}

// Load reads the process environment, after merging in a .env file when one
// exists in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "zazaki"),
		DBPassword:            getEnv("DB_PASSWORD", "zazaki"),
		DBName:                getEnv("DB_NAME", "zazaki_quiz"),
		DBSSLMode:             getEnv("DB_SSLMODE", "disable"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		CronSecret:            getEnv("CRON_SECRET", ""),
		DailyTimeLimitSeconds: getEnvInt("DAILY_QUIZ_TIME_LIMIT_SECONDS", 600),
		LowPoolThreshold:      getEnvInt("LOW_POOL_THRESHOLD", 15),
		RedisURL:              getEnv("REDIS_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseKey:           getEnv("SUPABASE_KEY", ""),
		SupabaseBucket:        getEnv("SUPABASE_BUCKET", "avatars"),
		AnthropicAPIKey:       getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:        getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		MockGenerator:         getEnv("MOCK_GENERATOR", "false") == "true",
		AllowedOrigins:        splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.CronSecret == "" {
		return nil, errors.New("CRON_SECRET is required")
	}
	if cfg.AnthropicAPIKey == "" && !cfg.MockGenerator {
		log.Println("[config] ANTHROPIC_API_KEY not set, falling back to mock question generator")
		cfg.MockGenerator = true
	}

	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise a key/value connection string
// built from the DB_* variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// StorageEnabled reports whether avatar uploads can be served.
func (c *Config) StorageEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
