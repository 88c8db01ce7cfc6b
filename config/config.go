package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with defaults
// suitable for local development.
type Config struct {
	Port      string
	JWTSecret string

	// 日志配置
	LogLevel string
	LogPath  string

	// Redis配置（仅用于歌曲搜索/播放地址缓存，房间状态不落盘）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	// 音乐源配置
	ProviderMode  string // NETEASE / MOCK
	NeteaseAPIURL string
	NeteaseCookie string

	// 延迟生命周期配置
	LeaveGrace       time.Duration // 断线后移除成员的宽限期
	RoomDestroyGrace time.Duration // 空房间销毁的宽限期
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		return value == "true" || value == "1"
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		Port:      getEnv("PORT", "3001"),
		JWTSecret: getEnv("JWT_SECRET", "dev_secret_change_me"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),

		ProviderMode:  getEnv("PROVIDER_MODE", "NETEASE"),
		NeteaseAPIURL: getEnv("NETEASE_API_URL", "http://localhost:3000"),
		NeteaseCookie: getEnv("NETEASE_COOKIE", ""),

		LeaveGrace:       time.Duration(getEnvInt("LEAVE_GRACE_MS", 5000)) * time.Millisecond,
		RoomDestroyGrace: time.Duration(getEnvInt("ROOM_DESTROY_GRACE_MS", 60000)) * time.Millisecond,
	}
}
