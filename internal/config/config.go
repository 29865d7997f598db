package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Remote backends
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Remote API
	RemoteBackend string
	APIBaseURL    string
	APITimeout    time.Duration
	SeedDir       string

	// Dashboard
	InitialBalance  float64
	RefreshInterval time.Duration

	// Sync journal (SQLite); empty disables it
	JournalPath string

	// AMQP change notifications; empty URL disables them
	AMQPURL      string
	AMQPExchange string

	// Export
	ExportFormat string
	ExportPath   string

	// Google Sheets export target
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Local stub API
	StubPort string
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RemoteBackend: getEnv("REMOTE_BACKEND", BackendHTTP),
		APIBaseURL:    getEnv("API_BASE_URL", "http://10.0.2.2:5500"),
		APITimeout:    getEnvDuration("API_TIMEOUT", 15*time.Second),
		SeedDir:       getEnv("SEED_DIR", "data"),

		InitialBalance:  getEnvFloat("INITIAL_BALANCE", 0),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),

		JournalPath: getEnv("JOURNAL_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "caixa.changes"),

		ExportFormat: getEnv("EXPORT_FORMAT", "json"),
		ExportPath:   getEnv("EXPORT_PATH", "caixa-export.json"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Caixa"),

		StubPort: getEnv("STUB_PORT", "5500"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if msg := validatePort("port", c.Port); msg != "" {
		errors = append(errors, msg)
	}
	if msg := validatePort("stub port", c.StubPort); msg != "" {
		errors = append(errors, msg)
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels[:4]))
	}

	validBackends := []string{BackendHTTP, BackendMemory}
	if !slices.Contains(validBackends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}

	if c.RemoteBackend == BackendHTTP {
		if parsedURL, err := url.Parse(c.APIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		} else if parsedURL.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': missing host", c.APIBaseURL))
		}
	}

	if c.APITimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be positive", c.APITimeout))
	} else if c.APITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at most 5 minutes", c.APITimeout))
	}

	if c.RefreshInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must not be negative", c.RefreshInterval))
	} else if c.RefreshInterval > 0 && c.RefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be 0 (off) or at least 1 second", c.RefreshInterval))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	validFormats := []string{"json", "csv", "yaml", "yml", "sheets"}
	if !slices.Contains(validFormats, strings.ToLower(c.ExportFormat)) {
		errors = append(errors, fmt.Sprintf("invalid export format '%s': must be one of %v", c.ExportFormat, validFormats))
	}
	if strings.EqualFold(c.ExportFormat, "sheets") {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when exporting to sheets")
		}
	} else if c.ExportPath == "" {
		errors = append(errors, "export path cannot be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Addr is the dashboard listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// StubAddr is the stub API listen address.
func (c *Config) StubAddr() string {
	return ":" + c.StubPort
}

func validatePort(name, value string) string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Sprintf("invalid %s '%s': must be a number", name, value)
	}
	if port < 1 || port > 65535 {
		return fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
