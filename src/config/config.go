package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string `env:"PORT" validate:"required"`
	LogLevel           string `env:"LOG_LEVEL"`
	UploadDir          string `env:"UPLOAD_DIR" validate:"required"`
	MaxUploadSizeBytes int64  `env:"MAX_UPLOAD_SIZE_BYTES" validate:"gt=0"`

	// Results of an upload stay retrievable by ID for this long.
	ResultCacheTTL       time.Duration `env:"RESULT_CACHE_TTL" validate:"gt=0"`
	CacheCleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" validate:"gte=0"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" validate:"gt=0"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" validate:"dive,url"`
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		ResultCacheTTL:       getEnvAsDuration("RESULT_CACHE_TTL", 15*time.Minute),
		CacheCleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 30*time.Minute),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	if err := Cfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, UploadDir=%s, MaxUpload=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.UploadDir, Cfg.MaxUploadSizeBytes)
}

var validate = newValidator()

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})
	return v
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	err := validate.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs[i] = fmt.Sprintf("%s must satisfy %s (got %v)", fe.Field(), rule, fe.Value())
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
