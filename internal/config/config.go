// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SignalMode selects how chat activity is translated into LED commands.
type SignalMode string

const (
	// SignalAlways issues a new LED command for every recorded query.
	SignalAlways SignalMode = "always"
	// SignalThreshold issues a command only when the query total moves past
	// the last value the bridge observed.
	SignalThreshold SignalMode = "threshold"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	AdminPassword string

	OllamaURL       string
	OllamaModel     string
	GenerateTimeout time.Duration

	ContextWindow     int
	CooldownThreshold int
	CooldownDuration  time.Duration
	RecentLogCap      int

	LedMode    SignalMode
	LedColor   [3]uint8
	LedFlashMs int

	MaxActiveDevices   int
	DeviceActiveWindow time.Duration
	DeviceTTL          time.Duration

	AdminSessionTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/spookygpt.db"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		OllamaURL:       strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3"),
		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 2*time.Minute),

		ContextWindow:     getEnvInt("CONTEXT_WINDOW", 5),
		CooldownThreshold: getEnvInt("COOLDOWN_THRESHOLD", 5),
		CooldownDuration:  getEnvDuration("COOLDOWN_DURATION", 15*time.Second),
		RecentLogCap:      getEnvInt("RECENT_LOG_CAP", 500),

		LedMode:    SignalMode(strings.ToLower(getEnv("LED_SIGNAL_MODE", string(SignalAlways)))),
		LedFlashMs: getEnvInt("LED_FLASH_MS", 3000),

		MaxActiveDevices:   getEnvInt("MAX_ACTIVE_DEVICES", 0),
		DeviceActiveWindow: getEnvDuration("DEVICE_ACTIVE_WINDOW", 10*time.Minute),
		DeviceTTL:          getEnvDuration("DEVICE_TTL", 30*24*time.Hour),

		AdminSessionTTL: getEnvDuration("ADMIN_SESSION_TTL", 12*time.Hour),
	}

	color, err := parseColor(getEnv("LED_COLOR", "255,140,0"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.LedColor = color

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("OLLAMA_URL cannot be empty")
	}
	if c.OllamaModel == "" {
		return fmt.Errorf("OLLAMA_MODEL cannot be empty")
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("GENERATE_TIMEOUT must be > 0")
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("CONTEXT_WINDOW must be > 0")
	}
	if c.CooldownThreshold <= 0 {
		return fmt.Errorf("COOLDOWN_THRESHOLD must be > 0")
	}
	if c.CooldownDuration <= 0 {
		return fmt.Errorf("COOLDOWN_DURATION must be > 0")
	}
	if c.RecentLogCap <= 0 {
		return fmt.Errorf("RECENT_LOG_CAP must be > 0")
	}
	if c.LedMode != SignalAlways && c.LedMode != SignalThreshold {
		return fmt.Errorf("LED_SIGNAL_MODE must be %q or %q", SignalAlways, SignalThreshold)
	}
	if c.LedFlashMs <= 0 {
		return fmt.Errorf("LED_FLASH_MS must be > 0")
	}
	if c.MaxActiveDevices < 0 {
		return fmt.Errorf("MAX_ACTIVE_DEVICES cannot be negative")
	}
	if c.DeviceActiveWindow <= 0 {
		return fmt.Errorf("DEVICE_ACTIVE_WINDOW must be > 0")
	}
	if c.DeviceTTL <= 0 {
		return fmt.Errorf("DEVICE_TTL must be > 0")
	}
	if c.AdminSessionTTL <= 0 {
		return fmt.Errorf("ADMIN_SESSION_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseColor(s string) ([3]uint8, error) {
	var color [3]uint8
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color, fmt.Errorf("LED_COLOR must be \"r,g,b\", got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return color, fmt.Errorf("LED_COLOR component %q out of range 0-255", p)
		}
		color[i] = uint8(n)
	}
	return color, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
