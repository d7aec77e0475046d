package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigFileName is the file looked up when a directory is given to Load.
const ConfigFileName = "config.yaml"

// Load reads and parses configuration from a file or a directory containing config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ResolveConfigFile turns a file or directory argument into the absolute path of the config file.
func ResolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, ConfigFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", ConfigFileName, absPath)
		}
	}
	return absPath, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $PRINTBRIDGE_CONFIG_DIR, ~/.config/printbridge, /etc/printbridge, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("PRINTBRIDGE_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "printbridge")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/printbridge"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	localConfigPath := "./" + ConfigFileName
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $PRINTBRIDGE_CONFIG_DIR, ~/.config/printbridge, /etc/printbridge, ./config.yaml)")
}

// loadConfigFile loads and parses a single config file without applying defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// verifyConfigHash checks the config file against .checksums when the directory has been locked.
func verifyConfigHash(path string) error {
	err := VerifyLocked(path)
	if err == nil || errors.Is(err, ErrNotLocked) {
		return nil
	}
	dir := filepath.Dir(path)
	return fmt.Errorf("config verification failed for %s: %w\n"+
		"If you edited this file intentionally, run: printbridge config lock --config %s", path, err, dir)
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Printer.Port == "" {
		cfg.Printer.Port = defaults.Printer.Port
	}

	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.RefreshInterval == 0 {
		cfg.Service.RefreshInterval = defaults.Service.RefreshInterval
	}
	if cfg.Service.StatusInterval == 0 {
		cfg.Service.StatusInterval = defaults.Service.StatusInterval
	}
	if cfg.Service.LoopResolution == 0 {
		cfg.Service.LoopResolution = defaults.Service.LoopResolution
	}
	if cfg.Service.HTTPTimeout == 0 {
		cfg.Service.HTTPTimeout = defaults.Service.HTTPTimeout
	}
	if cfg.Service.PrinterTimeout == 0 {
		cfg.Service.PrinterTimeout = defaults.Service.PrinterTimeout
	}
	if cfg.Service.JournalRetention == 0 {
		cfg.Service.JournalRetention = defaults.Service.JournalRetention
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate checks the shape of the values that are present.
// Missing identity settings are reported by Ready, not here, so partial configs still load.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	durations := []struct {
		field string
		value int64
	}{
		{"service.refresh_interval", int64(cfg.Service.RefreshInterval)},
		{"service.status_interval", int64(cfg.Service.StatusInterval)},
		{"service.loop_resolution", int64(cfg.Service.LoopResolution)},
		{"service.http_timeout", int64(cfg.Service.HTTPTimeout)},
		{"service.printer_timeout", int64(cfg.Service.PrinterTimeout)},
		{"service.journal_retention", int64(cfg.Service.JournalRetention)},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.field)
		}
	}

	if cfg.Printer.Port != "" {
		port, err := strconv.Atoi(cfg.Printer.Port)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("printer.port must be a TCP port number (got %q)", cfg.Printer.Port)
		}
	}

	if cfg.SiteURL != "" {
		if envVarPattern.MatchString(cfg.SiteURL) {
			return fmt.Errorf("site_url: environment variable ${%s} is not set", envVarPattern.FindStringSubmatch(cfg.SiteURL)[1])
		}
		u, err := url.Parse(cfg.SiteURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("site_url must be an absolute URL (got %q)", cfg.SiteURL)
		}
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	return nil
}

// Write marshals cfg to path as YAML, creating the parent directory.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
