package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	AdminToken    string
	AdminPassword string
	MaxBatchCodes int
	SessionTTLH   int
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MySQLDSN:      getEnv("MYSQL_DSN", "root:password@tcp(127.0.0.1:3306)/choujiang?parseTime=true&charset=utf8mb4"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		MaxBatchCodes: getEnvInt("MAX_BATCH_CODES", 1000),
		SessionTTLH:   getEnvInt("SESSION_TTL_HOURS", 8),
	}
	if cfg.MaxBatchCodes <= 0 {
		cfg.MaxBatchCodes = 1000
	}
	if cfg.SessionTTLH <= 0 {
		cfg.SessionTTLH = 8
	}
	return cfg
}

func getEnv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
