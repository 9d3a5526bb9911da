package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port                    string
	DatabaseURL             string
	Version                 string
	LogLevel                string
	OpenAIKey               string
	OpenAITimeout           int      // OpenAI API timeout in seconds
	EmbeddingModel          string   // Remote embedding model name
	DisableRemoteEmbeddings bool     // Force the local fallback even when a key is set
	MaxMainTopics           int      // Cap on level-0 topics
	MaxSubTopics            int      // Cap on level-1 topics
	MaxMicroTopics          int      // Cap on level-2 topics
	InternalDomains         []string // Email domains considered "our side"
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:                    getEnv("PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		Version:                 getEnv("VERSION", "1.0.0"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		OpenAIKey:               os.Getenv("OPENAI_API_KEY"),
		OpenAITimeout:           getEnvInt("OPENAI_TIMEOUT", 60),
		EmbeddingModel:          getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		DisableRemoteEmbeddings: getEnvBool("DISABLE_REMOTE_EMBEDDINGS", false),
		MaxMainTopics:           getEnvInt("MAX_MAIN_TOPICS", 10),
		MaxSubTopics:            getEnvInt("MAX_SUB_TOPICS", 20),
		MaxMicroTopics:          getEnvInt("MAX_MICRO_TOPICS", 50),
		InternalDomains:         getEnvList("INTERNAL_DOMAINS", []string{"wiredtriangle.com", "knewvantage.com"}),
	}

	return config
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default fallback
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, strings.ToLower(trimmed))
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	// Configure zerolog to output JSON without newlines
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Create logger with JSON output to stdout
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "rapport").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
