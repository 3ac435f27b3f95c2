// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Scenario() ScenarioConfig

	// Browser Setters
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)

	// Scenario Setters
	SetScenarioBaseURL(string)
	SetScenarioWaitSeconds(float64)
}

// Driver names accepted by browser.driver.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
	DriverStatic     = "static"
)

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ScenarioCfg ScenarioConfig `mapstructure:"scenario" yaml:"scenario"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Scenario() ScenarioConfig { return c.ScenarioCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)   { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetScenarioBaseURL(u string) { c.ScenarioCfg.BaseURL = u }
func (c *Config) SetScenarioWaitSeconds(s float64) {
	c.ScenarioCfg.WaitSeconds = s
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and tunes the browser driver.
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver" yaml:"driver"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// InstallBrowsers lets the playwright driver download chromium on first use.
	InstallBrowsers bool `mapstructure:"install_browsers" yaml:"install_browsers"`
}

// ScenarioConfig carries what every scenario needs to run: where the
// application lives and how long a step may wait for it.
type ScenarioConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	WaitSeconds  float64       `mapstructure:"wait_seconds" yaml:"wait_seconds"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Features     []string      `mapstructure:"features" yaml:"features"`
	Tags         string        `mapstructure:"tags" yaml:"tags"`
	Format       string        `mapstructure:"format" yaml:"format"`
	Strict       bool          `mapstructure:"strict" yaml:"strict"`
}

// WaitBudget returns wait_seconds as a duration.
func (s ScenarioConfig) WaitBudget() time.Duration {
	return time.Duration(s.WaitSeconds * float64(time.Second))
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webstep")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.install_browsers", true)

	// -- Scenario --
	v.SetDefault("scenario.base_url", "http://localhost:8080")
	v.SetDefault("scenario.wait_seconds", 60)
	v.SetDefault("scenario.poll_interval", "100ms")
	v.SetDefault("scenario.features", []string{"features"})
	v.SetDefault("scenario.tags", "")
	v.SetDefault("scenario.format", "pretty")
	v.SetDefault("scenario.strict", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The bare names are what the step harness has always read.
	v.BindEnv("scenario.base_url", "WEBSTEP_SCENARIO_BASE_URL", "BASE_URL")
	v.BindEnv("scenario.wait_seconds", "WEBSTEP_SCENARIO_WAIT_SECONDS", "WAIT_SECONDS")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return err
	}
	return c.ScenarioCfg.Validate()
}

// Validate checks the browser section.
func (b BrowserConfig) Validate() error {
	switch b.Driver {
	case DriverChromedp, DriverPlaywright, DriverStatic:
	default:
		return fmt.Errorf("browser.driver must be one of %s, %s or %s, got %q", DriverChromedp, DriverPlaywright, DriverStatic, b.Driver)
	}
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if b.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the scenario section.
func (s ScenarioConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("scenario.base_url is a required configuration field")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scenario.base_url must be an absolute URL, got %q", s.BaseURL)
	}
	if s.WaitSeconds <= 0 {
		return fmt.Errorf("scenario.wait_seconds must be positive")
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("scenario.poll_interval must be a positive duration")
	}
	return nil
}
