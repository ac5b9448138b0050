package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	// browser origins allowed by CORS; "*" allows any
	CORSAllowOrigins []string

	DBDriver string
	DBDSN    string

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// empty RedisAddr disables token revocation
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChatContextWindowSize int
	ChatDefaultModel      string

	// AI provider
	AIProvider        string
	AIModel           string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
	GeminiAPIKey      string
	GeminiModel       string

	// rabbitMQ; empty RabbitURL records usage synchronously
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	UsageCostPer1KTokens float64
}

// Load reads the environment, after merging a .env file when one exists.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", "http://localhost:3000"),

		// DSN demo (mysql):
		// app:apppass@tcp(127.0.0.1:3306)/chatapp?charset=utf8mb4&parseTime=true&loc=UTC
		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:    getEnv("DB_DSN", "file:chatapp.db?_pragma=foreign_keys(1)"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "chatapp"),
		TokenTTL:  time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ChatContextWindowSize: getEnvInt("CHAT_CONTEXT_WINDOW_SIZE", 20),
		ChatDefaultModel:      getEnv("CHAT_DEFAULT_MODEL", "@cf/deepseek-ai/deepseek-r1-distill-qwen-32b"),

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", "ollama")),
		AIModel:           os.Getenv("AI_MODEL"),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getEnv("RABBIT_QUEUE", "usage_events"),
		WorkerConcurrency: clamp(getEnvInt("WORKER_CONCURRENCY", 2), 1, 50),

		UsageCostPer1KTokens: getEnvFloat("USAGE_COST_PER_1K_TOKENS", 0),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks. Setting it
// to "none" yields nil.
func getEnvList(key, fallback string) []string {
	v := getEnv(key, fallback)
	if strings.EqualFold(v, "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
