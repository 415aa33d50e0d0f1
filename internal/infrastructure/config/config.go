package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the development server configuration, read from the
// environment.
type Config struct {
	Addr            string
	LogLevel        string
	DevMode         bool
	CORSAllowOrigin string

	// Video upload handling
	VideoStoragePath string
	MaxUploadBytes   int64

	// Simulated processing pipeline
	ProcessingDelayMs int

	// Dev credentials + token lifetime for the stub auth endpoints
	DevEmail          string
	DevPassword       string
	AccessTokenTTLSec int

	// Artificial response delay for exercising client timeouts/retries (ms).
	// A "min-max" range makes each delay random within [min,max].
	ResponseDelayMs    int
	ResponseDelayMinMs int
	ResponseDelayMaxMs int
}

func FromEnv() Config {
	cfg := Config{
		Addr:            getEnv("ADDR", ":8000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
	}
	if os.Getenv("DEV_MODE") == "1" || os.Getenv("DEV_MODE") == "true" {
		cfg.DevMode = true
	}
	cfg.VideoStoragePath = getEnv("VIDEO_STORAGE_PATH", "./storage/videos")
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", 500<<20)) // 500MB
	cfg.ProcessingDelayMs = getEnvInt("PROCESSING_DELAY_MS", 5000)
	cfg.DevEmail = getEnv("DEV_EMAIL", "dev@example.com")
	cfg.DevPassword = getEnv("DEV_PASSWORD", "devpassword")
	cfg.AccessTokenTTLSec = getEnvInt("ACCESS_TOKEN_TTL_SEC", 1800)
	cfg.ResponseDelayMs = getEnvInt("RESPONSE_DELAY_MS", 0)
	if raw := os.Getenv("RESPONSE_DELAY_MS"); raw != "" && strings.Contains(raw, "-") {
		parts := strings.SplitN(raw, "-", 2)
		if len(parts) == 2 {
			lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 == nil && err2 == nil {
				if hi < lo {
					lo, hi = hi, lo
				}
				cfg.ResponseDelayMinMs = lo
				cfg.ResponseDelayMaxMs = hi
			}
		}
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
