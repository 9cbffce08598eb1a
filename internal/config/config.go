package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBFile        string
	AdminAddr     string
	APIAddr       string
	StaticDir     string
	AllowedOrigin string
	AuthSecret    string
	TokenExpiry   time.Duration
	HistoryLimit  int
	DefaultRoom   string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// Load reads the configuration from the environment. cliMode skips checks
// that only matter for the running server.
func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_EXPIRY: %w", err)
	}

	historyLimit, err := strconv.Atoi(getEnv("HISTORY_LIMIT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("BOLTALKA_DB", "boltalka.db"),
		AdminAddr:       getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		StaticDir:       os.Getenv("STATIC_DIR"),
		AllowedOrigin:   os.Getenv("ALLOWED_ORIGIN"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		TokenExpiry:     tokenExpiry,
		HistoryLimit:    historyLimit,
		DefaultRoom:     getEnv("DEFAULT_ROOM", "main"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be greater than 0")
	}

	if c.DefaultRoom == "" {
		return fmt.Errorf("DEFAULT_ROOM must not be empty")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
