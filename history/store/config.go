package store

import (
	"os"
	"strconv"
	"time"
)

// Environment-based configuration loaders. Every variable has a sensible
// local-development default so a bare environment still works.

// PostgresConfigFromEnv loads PostgreSQL settings from the environment.
func PostgresConfigFromEnv() *PostgresConfig {
	return &PostgresConfig{
		Host:     getEnv("DOCSAGE_POSTGRES_HOST", "localhost"),
		Port:     getEnvInt("DOCSAGE_POSTGRES_PORT", 5432),
		User:     getEnv("DOCSAGE_POSTGRES_USER", "postgres"),
		Password: getEnv("DOCSAGE_POSTGRES_PASSWORD", ""),
		DBName:   getEnv("DOCSAGE_POSTGRES_DB", "docsage"),
		SSLMode:  getEnv("DOCSAGE_POSTGRES_SSLMODE", "disable"),
	}
}

// RedisConfigFromEnv loads Redis settings from the environment.
func RedisConfigFromEnv() *RedisConfig {
	return &RedisConfig{
		Addr:     getEnv("DOCSAGE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("DOCSAGE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("DOCSAGE_REDIS_DB", 0),
		Prefix:   getEnv("DOCSAGE_REDIS_PREFIX", "docsage:history:"),
		TTL:      getEnvDuration("DOCSAGE_REDIS_TTL", 0),
	}
}

// MongoConfigFromEnv loads MongoDB settings from the environment.
func MongoConfigFromEnv() *MongoConfig {
	return &MongoConfig{
		URI:        getEnv("DOCSAGE_MONGODB_URI", "mongodb://localhost:27017"),
		Database:   getEnv("DOCSAGE_MONGODB_DB", "docsage"),
		Collection: getEnv("DOCSAGE_MONGODB_COLLECTION", "answer_sessions"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
