package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrNotConfigured is returned by Ready when a setting the bridge cannot run without is empty.
var ErrNotConfigured = errors.New("bridge not configured")

// Config represents the complete printbridge configuration.
type Config struct {
	ClientID string        `yaml:"client_id"`
	SiteURL  string        `yaml:"site_url"`
	Printer  PrinterConfig `yaml:"printer"`
	Service  ServiceConfig `yaml:"service"`
	State    StateConfig   `yaml:"state"`
	API      APIConfig     `yaml:"api,omitempty"`
}

// PrinterConfig identifies the single receipt printer this bridge serves.
// Port is kept as text because that is how the server-side registration hands it out.
type PrinterConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
	Port string `yaml:"port"`
}

// Address returns the host:port dial target.
func (p PrinterConfig) Address() string {
	return net.JoinHostPort(p.IP, p.Port)
}

// ServiceConfig defines runtime behaviour of the bridge.
type ServiceConfig struct {
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	LogFile          string        `yaml:"log_file,omitempty"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	LoopResolution   time.Duration `yaml:"loop_resolution"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	PrinterTimeout   time.Duration `yaml:"printer_timeout"`
	JournalRetention time.Duration `yaml:"journal_retention"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the optional local status API.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// Defaults returns a Config with the values the bridge ships with.
func Defaults() *Config {
	return &Config{
		Printer: PrinterConfig{
			Port: "9100",
		},
		Service: ServiceConfig{
			LogLevel:         "info",
			LogFormat:        "json",
			RefreshInterval:  10 * time.Second,
			StatusInterval:   10 * time.Second,
			LoopResolution:   100 * time.Millisecond,
			HTTPTimeout:      10 * time.Second,
			PrinterTimeout:   3 * time.Second,
			JournalRetention: 30 * 24 * time.Hour,
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8686",
		},
	}
}

// Ready reports whether the printer, client id and site URL are all present.
// Every missing setting is listed in the returned error.
func (c *Config) Ready() error {
	var missing []string
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	check("printer.id", c.Printer.ID)
	check("printer.ip", c.Printer.IP)
	check("printer.port", c.Printer.Port)
	check("printer.name", c.Printer.Name)
	check("client_id", c.ClientID)
	check("site_url", c.SiteURL)

	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
}
