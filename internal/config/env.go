// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/buildinfo"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	CacheDir string
	StateDir string

	// Network
	ListenAddress   string
	Port            int
	APIMaxBodyBytes int

	// Auth (empty means admin auth disabled)
	AdminToken string

	// Logging
	LogLevel  string
	LogFormat string

	// Subscription refresh
	RefreshSchedule string
	FetchTimeout    time.Duration
	FetchMaxBytes   int
	FetchRetries    int
	UserAgent       string

	// GeoIP
	GeoIPDBFilename     string
	GeoIPDBURL          string
	GeoIPSHA256URL      string
	GeoIPUpdateSchedule string
	GeoIPCacheSize      int

	// Rendering
	RenderCacheEntries int
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error listing every missing or invalid variable.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.CacheDir = envStr("PRISM_CACHE_DIR", "/var/cache/prism")
	cfg.StateDir = envStr("PRISM_STATE_DIR", "/var/lib/prism")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("PRISM_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("PRISM_PORT", 2280, &errs)
	cfg.APIMaxBodyBytes = envInt("PRISM_API_MAX_BODY_BYTES", 4<<20, &errs)

	// --- Auth (must be defined; empty means auth disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("PRISM_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Logging ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(envStr("PRISM_LOG_LEVEL", "info")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(envStr("PRISM_LOG_FORMAT", "text")))

	// --- Subscription refresh ---
	cfg.RefreshSchedule = envStr("PRISM_REFRESH_SCHEDULE", "*/30 * * * *")
	cfg.FetchTimeout = envDuration("PRISM_FETCH_TIMEOUT", 30*time.Second, &errs)
	cfg.FetchMaxBytes = envInt("PRISM_FETCH_MAX_BYTES", 16<<20, &errs)
	cfg.FetchRetries = envInt("PRISM_FETCH_RETRIES", 2, &errs)
	cfg.UserAgent = envStr("PRISM_USER_AGENT", "prism/"+buildinfo.Version)

	// --- GeoIP ---
	cfg.GeoIPDBFilename = strings.TrimSpace(envStr("PRISM_GEOIP_DB_FILENAME", "country.mmdb"))
	cfg.GeoIPDBURL = strings.TrimSpace(envStr("PRISM_GEOIP_DB_URL", ""))
	cfg.GeoIPSHA256URL = strings.TrimSpace(envStr("PRISM_GEOIP_SHA256_URL", ""))
	cfg.GeoIPUpdateSchedule = envStr("PRISM_GEOIP_UPDATE_SCHEDULE", "0 7 * * *")
	cfg.GeoIPCacheSize = envInt("PRISM_GEOIP_CACHE_SIZE", 10000, &errs)

	// --- Rendering ---
	cfg.RenderCacheEntries = envInt("PRISM_RENDER_CACHE_ENTRIES", 256, &errs)

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "PRISM_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "PRISM_LISTEN_ADDRESS must not be empty")
	}
	validatePort("PRISM_PORT", cfg.Port, &errs)
	validatePositive("PRISM_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("PRISM_LOG_LEVEL: invalid level %q", cfg.LogLevel))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("PRISM_LOG_FORMAT: invalid value %q (allowed: text, json)", cfg.LogFormat))
	}

	validateSchedule("PRISM_REFRESH_SCHEDULE", cfg.RefreshSchedule, &errs)
	if cfg.FetchTimeout <= 0 {
		errs = append(errs, "PRISM_FETCH_TIMEOUT must be positive")
	}
	validatePositive("PRISM_FETCH_MAX_BYTES", cfg.FetchMaxBytes, &errs)
	if cfg.FetchRetries < 0 {
		errs = append(errs, fmt.Sprintf("PRISM_FETCH_RETRIES: must not be negative, got %d", cfg.FetchRetries))
	}

	if cfg.GeoIPDBFilename == "" || strings.ContainsAny(cfg.GeoIPDBFilename, `/\`) {
		errs = append(errs, fmt.Sprintf("PRISM_GEOIP_DB_FILENAME: must be a bare file name, got %q", cfg.GeoIPDBFilename))
	}
	validateURL("PRISM_GEOIP_DB_URL", cfg.GeoIPDBURL, &errs)
	validateURL("PRISM_GEOIP_SHA256_URL", cfg.GeoIPSHA256URL, &errs)
	if cfg.GeoIPSHA256URL != "" && cfg.GeoIPDBURL == "" {
		errs = append(errs, "PRISM_GEOIP_SHA256_URL requires PRISM_GEOIP_DB_URL")
	}
	validateSchedule("PRISM_GEOIP_UPDATE_SCHEDULE", cfg.GeoIPUpdateSchedule, &errs)
	validatePositive("PRISM_GEOIP_CACHE_SIZE", cfg.GeoIPCacheSize, &errs)
	validatePositive("PRISM_RENDER_CACHE_ENTRIES", cfg.RenderCacheEntries, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// PublicConfig is the secret-free view of EnvConfig served by the system
// info endpoint.
type PublicConfig struct {
	ListenAddress       string   `json:"listenAddress"`
	Port                int      `json:"port"`
	AdminAuthEnabled    bool     `json:"adminAuthEnabled"`
	RefreshSchedule     string   `json:"refreshSchedule"`
	FetchTimeout        Duration `json:"fetchTimeout"`
	FetchRetries        int      `json:"fetchRetries"`
	UserAgent           string   `json:"userAgent"`
	GeoIPDownload       bool     `json:"geoipDownload"`
	GeoIPUpdateSchedule string   `json:"geoipUpdateSchedule"`
}

// Public returns the view of cfg that is safe to expose.
func (c *EnvConfig) Public() PublicConfig {
	return PublicConfig{
		ListenAddress:       c.ListenAddress,
		Port:                c.Port,
		AdminAuthEnabled:    c.AdminToken != "",
		RefreshSchedule:     c.RefreshSchedule,
		FetchTimeout:        Duration(c.FetchTimeout),
		FetchRetries:        c.FetchRetries,
		UserAgent:           c.UserAgent,
		GeoIPDownload:       c.GeoIPDBURL != "",
		GeoIPUpdateSchedule: c.GeoIPUpdateSchedule,
	}
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validateSchedule(name, expr string, errs *[]string) {
	if _, err := cron.ParseStandard(expr); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid cron expression %q: %v", name, expr, err))
	}
}

func validateURL(name, raw string, errs *[]string) {
	if raw == "" {
		return
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		*errs = append(*errs, fmt.Sprintf("%s: must be an http(s) URL, got %q", name, raw))
	}
}
