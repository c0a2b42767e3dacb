package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Conversion limits
	MaxInputBytes int `yaml:"max_input_bytes"`
	MaxDepth      int `yaml:"max_depth"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	ImportWorkers  int   `yaml:"import_workers"`

	// Conversion cache
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:                 "8090",
		MaxInputBytes:        1 << 20,  // 1MB
		MaxDepth:             64,
		MaxUploadBytes:       20 << 20, // 20MB
		ImportWorkers:        4,
		CacheSize:            512,
		CacheTTL:             10 * time.Minute,
		PDFFallbackPdftotext: true,
		LogLevel:             "info",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in that order of
// increasing precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("WIKIADF_API_KEY", cfg.APIKey)
	cfg.MaxInputBytes = envInt("MAX_INPUT_BYTES", cfg.MaxInputBytes)
	cfg.MaxDepth = envInt("MAX_DEPTH", cfg.MaxDepth)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.ImportWorkers = envInt("IMPORT_WORKERS", cfg.ImportWorkers)
	cfg.CacheSize = envInt("CACHE_SIZE", cfg.CacheSize)
	cfg.CacheTTL = envDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	def := Defaults()
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = def.MaxInputBytes
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.ImportWorkers <= 0 {
		cfg.ImportWorkers = def.ImportWorkers
	}
	if cfg.CacheSize < 0 {
		cfg.CacheSize = 0
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("PORT must be a TCP port, got %q", c.Port)
	}
	if c.MaxUploadBytes < int64(c.MaxInputBytes) {
		return fmt.Errorf("MAX_UPLOAD_BYTES (%d) must not be smaller than MAX_INPUT_BYTES (%d)", c.MaxUploadBytes, c.MaxInputBytes)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, info when it cannot be parsed.
func (c Config) SlogLevel() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
