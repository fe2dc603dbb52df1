// Package config holds the typed tourcharge configuration.
//
// The Config value is immutable in use: components receive it (or one of its
// sections) by value at construction time and never write back. Runtime
// reconfiguration goes through Apply, which returns a new Config, so a live
// server swaps an atomic pointer instead of mutating shared state.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tourcharge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Target back-office portal
	Portal PortalConfig `yaml:"portal"`

	// Chrome/CDP driver settings
	Browser BrowserConfig `yaml:"browser"`

	// Charge form defaults
	Form FormConfig `yaml:"form"`

	// Company expense sub-block
	Company CompanyConfig `yaml:"company"`

	// Batch behaviour
	Batch BatchConfig `yaml:"batch"`

	// HTTP adapter
	Server ServerConfig `yaml:"server"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PortalConfig identifies the back-office and the account used to drive it.
type PortalConfig struct {
	BaseURL      string   `yaml:"base_url"`
	LoginPath    string   `yaml:"login_path"`
	ChargesPath  string   `yaml:"charges_path"`
	PackagesPath string   `yaml:"packages_path"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	AuthMarkers  []string `yaml:"auth_markers"`
}

// LoginURL returns the absolute login URL.
func (p PortalConfig) LoginURL() string { return p.BaseURL + p.LoginPath }

// ChargesURL returns the absolute charge-creation form URL.
func (p PortalConfig) ChargesURL() string { return p.BaseURL + p.ChargesPath }

// PackagesURL returns the absolute program listing URL.
func (p PortalConfig) PackagesURL() string { return p.BaseURL + p.PackagesPath }

// PackageManageURL returns the absolute edit page URL for one package.
func (p PortalConfig) PackageManageURL(id string) string {
	return p.PackagesURL() + "/manage/" + id
}

// BrowserConfig holds Chrome driver configuration.
type BrowserConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	StepTimeoutMs       int      `yaml:"step_timeout_ms"`
	SettleDelayMs       int      `yaml:"settle_delay_ms"`
}

// NavigationTimeout returns the full page navigation deadline.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 60 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// StepTimeout returns the deadline for a single remote round-trip.
func (c BrowserConfig) StepTimeout() time.Duration {
	if c.StepTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.StepTimeoutMs) * time.Millisecond
}

// SettleDelay returns the pause granted to async form reloads after a
// dependent field changes.
func (c BrowserConfig) SettleDelay() time.Duration {
	if c.SettleDelayMs == 0 {
		return 2 * time.Second
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// FormConfig holds charge form defaults.
type FormConfig struct {
	DateRangeStart    string `yaml:"date_range_start"`
	DateRangeEnd      string `yaml:"date_range_end"`
	Description       string `yaml:"description"`
	ChargeType        string `yaml:"charge_type"`
	PaymentOffsetDays int    `yaml:"payment_offset_days"`
	LocatorStrategy   string `yaml:"locator_strategy"`
}

// CompanyConfig holds the optional company expense sub-block values.
type CompanyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Name          string `yaml:"name"`
	Value         string `yaml:"value"`
	PaymentMethod string `yaml:"payment_method"`
	PaymentType   string `yaml:"payment_type"`
}

// BatchConfig holds batch windowing and pacing.
type BatchConfig struct {
	Start        int `yaml:"start"`
	Limit        int `yaml:"limit"`
	EntryDelayMs int `yaml:"entry_delay_ms"`
}

// EntryDelay returns the pause between entries.
func (c BatchConfig) EntryDelay() time.Duration {
	if c.EntryDelayMs == 0 {
		return time.Second
	}
	return time.Duration(c.EntryDelayMs) * time.Millisecond
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// GetReadTimeout returns the request read deadline.
func (c ServerConfig) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown deadline.
func (c ServerConfig) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// StoreConfig configures persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	ResultsDir   string `yaml:"results_dir"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tourcharge",
		Version: "1.0.0",

		Portal: PortalConfig{
			BaseURL:      "https://www.qualityb2bpackage.com",
			LoginPath:    "/",
			ChargesPath:  "/charges_group/create",
			PackagesPath: "/travelpackage",
			AuthMarkers:  []string{"Welcome", "Dashboard"},
		},

		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 60000,
			StepTimeoutMs:       30000,
			SettleDelayMs:       2000,
		},

		Form: FormConfig{
			DateRangeStart:    "01/01/2024",
			DateRangeEnd:      "31/12/2026",
			Description:       "ค่าอุปกรณ์ออกทัวร์",
			ChargeType:        "เบ็ดเตล็ด",
			PaymentOffsetDays: 7,
			LocatorStrategy:   "css",
		},

		Company: CompanyConfig{
			Enabled:       true,
			Name:          "GO365 TRAVEL CO.,LTD.",
			Value:         "39",
			PaymentMethod: "โอนเข้าบัญชี",
			PaymentType:   "เบ็ดเตล็ด",
		},

		Batch: BatchConfig{
			Start:        0,
			Limit:        0,
			EntryDelayMs: 1000,
		},

		Server: ServerConfig{
			Addr:            ":8089",
			ReadTimeout:     "15s",
			ShutdownTimeout: "10s",
		},

		Store: StoreConfig{
			DatabasePath: "data/tourcharge.db",
			ResultsDir:   "results",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TOURCHARGE_USERNAME"); v != "" {
		c.Portal.Username = v
	}
	if v := os.Getenv("TOURCHARGE_PASSWORD"); v != "" {
		c.Portal.Password = v
	}
	if v := os.Getenv("TOURCHARGE_BASE_URL"); v != "" {
		c.Portal.BaseURL = v
	}
	if v := os.Getenv("TOURCHARGE_DB"); v != "" {
		c.Store.DatabasePath = v
	}
}

// ValidLocatorStrategies lists the supported field locator strategies.
var ValidLocatorStrategies = []string{"css", "label"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal base_url not configured")
	}
	if _, err := url.Parse(c.Portal.BaseURL); err != nil {
		return fmt.Errorf("invalid portal base_url: %w", err)
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return fmt.Errorf("portal credentials not configured (set TOURCHARGE_USERNAME and TOURCHARGE_PASSWORD)")
	}

	valid := false
	for _, s := range ValidLocatorStrategies {
		if c.Form.LocatorStrategy == s {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid locator strategy: %s (valid: %v)", c.Form.LocatorStrategy, ValidLocatorStrategies)
	}

	if c.Form.PaymentOffsetDays < 0 {
		return fmt.Errorf("payment_offset_days must not be negative")
	}
	if c.Batch.Start < 0 {
		return fmt.Errorf("batch start must not be negative")
	}
	if c.Batch.Limit < 0 {
		return fmt.Errorf("batch limit must not be negative")
	}

	return nil
}

// Update carries the runtime-updatable fields. Nil pointers leave the
// corresponding field unchanged. The set mirrors what the config endpoint
// accepts; credentials and URLs deliberately cannot change mid-run.
type Update struct {
	Description    *string `json:"description,omitempty"`
	ChargeType     *string `json:"charge_type,omitempty"`
	CompanyEnabled *bool   `json:"company_expense_enabled,omitempty"`
	CompanyName    *string `json:"company_name,omitempty"`
	CompanyValue   *string `json:"company_value,omitempty"`
	PaymentMethod  *string `json:"payment_method,omitempty"`
	PaymentType    *string `json:"payment_type,omitempty"`
}

// Apply returns a new Config with the update folded in. The receiver is
// never modified.
func (c Config) Apply(u Update) Config {
	next := c
	if u.Description != nil {
		next.Form.Description = *u.Description
	}
	if u.ChargeType != nil {
		next.Form.ChargeType = *u.ChargeType
	}
	if u.CompanyEnabled != nil {
		next.Company.Enabled = *u.CompanyEnabled
	}
	if u.CompanyName != nil {
		next.Company.Name = *u.CompanyName
	}
	if u.CompanyValue != nil {
		next.Company.Value = *u.CompanyValue
	}
	if u.PaymentMethod != nil {
		next.Company.PaymentMethod = *u.PaymentMethod
	}
	if u.PaymentType != nil {
		next.Company.PaymentType = *u.PaymentType
	}
	return next
}

// Redacted returns a copy safe to expose over the config endpoint.
func (c Config) Redacted() Config {
	next := c
	next.Portal.Username = ""
	next.Portal.Password = ""
	return next
}
