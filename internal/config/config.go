package config

import (
	"strings"
	"time"

	"caixinha-backend/pkg/env"
)

// Config carries all environment-driven settings for the chat service.
type Config struct {
	Env  string
	Port string

	// Firestore / Firebase
	FirebaseProjectID       string
	FirebaseCredentialsPath string

	// Redis (pub/sub fanout and presence)
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Reserved participant id for the AI assistant
	AgentUserID string

	// Extra browser origins accepted by the CORS layer
	CORSAllowedOrigins []string

	// Completion provider
	LLMProvider     string // "openai" or "anthropic"
	LLMAPIKey       string
	LLMModel        string
	ProviderTimeout time.Duration

	// History window forwarded to the completion provider
	AgentHistoryLimit int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment (with Docker-secret
// file fallback for credentials).
func Load() *Config {
	return &Config{
		Env:  env.GetString("ENV", "development"),
		Port: env.GetString("PORT", "8082"),

		FirebaseProjectID:       env.GetString("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsPath: env.GetStringFromFile("FIREBASE_CREDENTIALS_PATH", ""),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),

		AgentUserID: env.GetString("AGENT_USER_ID", "assistente-ia"),

		CORSAllowedOrigins: splitList(env.GetString("CORS_ALLOWED_ORIGINS", "")),

		LLMProvider:     env.GetString("LLM_PROVIDER", "openai"),
		LLMAPIKey:       env.GetStringFromFile("LLM_API_KEY", ""),
		LLMModel:        env.GetString("LLM_MODEL", ""),
		ProviderTimeout: env.GetDuration("LLM_TIMEOUT", 30*time.Second),

		AgentHistoryLimit: env.GetInt("AGENT_HISTORY_LIMIT", 5),

		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "json"),
	}
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
