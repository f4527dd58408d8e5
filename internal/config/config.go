package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig configures the sync daemon and its UI bridge.
type ClientConfig struct {
	BackendURL  string
	AccessToken string

	Host        string
	Port        int
	CORSOrigins []string

	ChatsPollInterval     time.Duration
	HistoryPollInterval   time.Duration
	InventoryPollInterval time.Duration
	PageSize              int

	BackendRPS     float64
	BackendBurst   int
	RequestTimeout time.Duration

	LogLevel slog.Level
}

// BackendConfig configures the reference backend.
type BackendConfig struct {
	AppName string
	Env     string
	Host    string
	Port    int

	DBDriver    string
	DatabaseURL string

	JWTSecret            string
	EncryptKey           string
	LegacyEncryptionKeys []string

	UploadDir string

	CORSOrigins []string
	LogLevel    slog.Level
}

// LoadClient reads the sync daemon configuration from the environment,
// after loading an optional .env file.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load(".env")

	cfg := &ClientConfig{
		BackendURL:  strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
		AccessToken: os.Getenv("ACCESS_TOKEN"),

		Host:        getEnv("HTTP_HOST", "127.0.0.1"),
		Port:        getEnvAsInt("HTTP_PORT", 8100),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		ChatsPollInterval:     getEnvAsDuration("CHATS_POLL_INTERVAL", 10*time.Second),
		HistoryPollInterval:   getEnvAsDuration("HISTORY_POLL_INTERVAL", 2*time.Second),
		InventoryPollInterval: getEnvAsDuration("INVENTORY_POLL_INTERVAL", 3*time.Second),
		PageSize:              getEnvAsInt("PAGE_SIZE", 10),

		BackendRPS:     getEnvAsFloat("BACKEND_RPS", 20),
		BackendBurst:   getEnvAsInt("BACKEND_BURST", 40),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),

		LogLevel: ParseLevel(os.Getenv("LOG_LEVEL")),
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BackendURL); err != nil {
		return nil, fmt.Errorf("BACKEND_URL is invalid: %w", err)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("ACCESS_TOKEN is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive")
	}
	for name, d := range map[string]time.Duration{
		"CHATS_POLL_INTERVAL":     cfg.ChatsPollInterval,
		"HISTORY_POLL_INTERVAL":   cfg.HistoryPollInterval,
		"INVENTORY_POLL_INTERVAL": cfg.InventoryPollInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}

	return cfg, nil
}

// LoadBackend reads the reference backend configuration.
func LoadBackend() (*BackendConfig, error) {
	_ = godotenv.Load(".env")

	cfg := &BackendConfig{
		AppName: getEnv("APP_NAME", "DoughNation reference backend"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		EncryptKey:           os.Getenv("ENCRYPTION_KEY"),
		LegacyEncryptionKeys: getEnvAsList("LEGACY_ENCRYPTION_KEYS", nil),

		UploadDir: getEnv("UPLOAD_DIR", "uploads"),

		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		LogLevel:    ParseLevel(os.Getenv("LOG_LEVEL")),
	}

	switch cfg.DBDriver {
	case "sqlite":
		cfg.DatabaseURL = getEnv("SQLITE_DSN", "file:doughnation.db?_pragma=busy_timeout(5000)")
	case "postgres":
		dbHost := getEnv("POSTGRES_HOST", "localhost")
		dbPort := getEnv("POSTGRES_PORT", "5432")
		dbUser := getEnv("POSTGRES_USER", "postgres")
		dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
		dbName := getEnv("POSTGRES_DB", "doughnation")

		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(dbUser, dbPass),
			Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
			Path:     dbName,
			RawQuery: "sslmode=disable",
		}
		cfg.DatabaseURL = u.String()
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

func (c *ClientConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *BackendConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseLevel maps a LOG_LEVEL value onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
