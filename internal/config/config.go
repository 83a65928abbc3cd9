package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Env         string
	CORSOrigins []string
	Timezone    string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	AuthRateLimitRPM int

	// LLM
	LLMProvider         string
	OpenAIAPIKey        string
	OpenAIChatModel     string
	OpenAISpeakingModel string
	GeminiAPIKey        string
	GeminiChatModel     string
	GeminiSpeakingModel string

	// Speech-to-text (Groq Whisper, OpenAI-compatible)
	GroqAPIKey  string
	GroqBaseURL string

	// Apps in Toss partner API
	TossAPIURL       string
	TossMTLSCertPath string
	TossMTLSKeyPath  string

	// Product
	FreeDailySessionLimit int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8000"),
		Env:         getEnvOrDefault("ENV", "development"),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		Timezone:    getEnvOrDefault("APP_TIMEZONE", "Asia/Seoul"),

		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),

		JWTSecret:        mustGetEnv("JWT_SECRET"),
		AccessTokenTTL:   time.Duration(getEnvAsIntOrDefault("JWT_ACCESS_TOKEN_EXPIRE_MINUTES", 60)) * time.Minute,
		RefreshTokenTTL:  time.Duration(getEnvAsIntOrDefault("JWT_REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		AuthRateLimitRPM: getEnvAsIntOrDefault("AUTH_RATE_LIMIT_PER_MINUTE", 10),

		LLMProvider:         getEnvOrDefault("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:        getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIChatModel:     getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAISpeakingModel: getEnvOrDefault("OPENAI_SPEAKING_MODEL", "gpt-4o"),
		GeminiAPIKey:        getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiChatModel:     getEnvOrDefault("GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		GeminiSpeakingModel: getEnvOrDefault("GEMINI_SPEAKING_MODEL", "gemini-2.5-pro"),

		GroqAPIKey:  getEnvOrDefault("GROQ_API_KEY", ""),
		GroqBaseURL: getEnvOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),

		TossAPIURL:       getEnvOrDefault("TOSS_API_URL", "https://apps-in-toss-api.toss.im"),
		TossMTLSCertPath: getEnvOrDefault("TOSS_MTLS_CERT_PATH", ""),
		TossMTLSKeyPath:  getEnvOrDefault("TOSS_MTLS_KEY_PATH", ""),

		FreeDailySessionLimit: getEnvAsIntOrDefault("FREE_DAILY_SESSION_LIMIT", 3),
	}

	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	return cfg
}

// Validate checks the combinations of settings that cannot be expressed by
// a single required variable.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.FreeDailySessionLimit < 1 {
		return fmt.Errorf("FREE_DAILY_SESSION_LIMIT must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the time zone used for "today" in streaks and daily limits.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
