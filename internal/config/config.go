// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Harness() HarnessConfig
	Suite() SuiteConfig
	Artifacts() ArtifactsConfig
	Report() ReportConfig
	Analysis() AnalysisConfig
	Demo() DemoConfig
	Database() DatabaseConfig

	// Run setters, populated from CLI flags.
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)
	SetHarnessBaseURL(string)
	SetSuiteConcurrency(int)
	SetSuiteRetries(int)
	SetSuiteTags([]string)
	SetSuiteGrep(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	HarnessCfg   HarnessConfig   `mapstructure:"harness" yaml:"harness"`
	SuiteCfg     SuiteConfig     `mapstructure:"suite" yaml:"suite"`
	ArtifactsCfg ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	ReportCfg    ReportConfig    `mapstructure:"report" yaml:"report"`
	AnalysisCfg  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	DemoCfg      DemoConfig      `mapstructure:"demo" yaml:"demo"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Harness() HarnessConfig     { return c.HarnessCfg }
func (c *Config) Suite() SuiteConfig         { return c.SuiteCfg }
func (c *Config) Artifacts() ArtifactsConfig { return c.ArtifactsCfg }
func (c *Config) Report() ReportConfig       { return c.ReportCfg }
func (c *Config) Analysis() AnalysisConfig   { return c.AnalysisCfg }
func (c *Config) Demo() DemoConfig           { return c.DemoCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserDriver(d string)   { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetHarnessBaseURL(u string)  { c.HarnessCfg.BaseURL = u }
func (c *Config) SetSuiteConcurrency(n int)   { c.SuiteCfg.Concurrency = n }
func (c *Config) SetSuiteRetries(n int)       { c.SuiteCfg.Retries = n }
func (c *Config) SetSuiteTags(tags []string)  { c.SuiteCfg.Tags = tags }
func (c *Config) SetSuiteGrep(pattern string) { c.SuiteCfg.Grep = pattern }

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

// Supported browser drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
	DriverHTTP       = "http"
)

// BrowserConfig holds settings for the browser instances that host scenario pages.
type BrowserConfig struct {
	Driver          string         `mapstructure:"driver" yaml:"driver"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	SlowMo          time.Duration  `mapstructure:"slow_mo" yaml:"slow_mo"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
}

// HarnessConfig tunes the page interaction layer.
type HarnessConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ResponseTimeout   time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	// DateLayout is the Go reference layout of dates shown in statement listings.
	DateLayout string `mapstructure:"date_layout" yaml:"date_layout"`
}

// SuiteConfig controls how scenario instances are scheduled.
type SuiteConfig struct {
	Paths           []string      `mapstructure:"paths" yaml:"paths"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	Retries         int           `mapstructure:"retries" yaml:"retries"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// StartRate is the number of instances allowed to start per second. Zero disables pacing.
	StartRate float64  `mapstructure:"start_rate" yaml:"start_rate"`
	Tags      []string `mapstructure:"tags" yaml:"tags"`
	Grep      string   `mapstructure:"grep" yaml:"grep"`
}

// Artifact capture policies.
const (
	PolicyOff             = "off"
	PolicyOn              = "on"
	PolicyOnlyOnFailure   = "only-on-failure"
	PolicyRetainOnFailure = "retain-on-failure"
)

// ArtifactsConfig holds the capture policy per artifact kind.
type ArtifactsConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	Screenshot string `mapstructure:"screenshot" yaml:"screenshot"`
	DOM        string `mapstructure:"dom" yaml:"dom"`
	Trace      string `mapstructure:"trace" yaml:"trace"`
	Video      string `mapstructure:"video" yaml:"video"`
}

// ReportConfig lists the report files written after a run. Empty paths are skipped.
type ReportConfig struct {
	JSON       string `mapstructure:"json" yaml:"json"`
	HTML       string `mapstructure:"html" yaml:"html"`
	JUnit      string `mapstructure:"junit" yaml:"junit"`
	Markdown   string `mapstructure:"markdown" yaml:"markdown"`
	FailureLog string `mapstructure:"failure_log" yaml:"failure_log"`
	Console    bool   `mapstructure:"console" yaml:"console"`
}

// AnalysisConfig configures the LLM assisted failure triage.
type AnalysisConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	OutputDir   string        `mapstructure:"output_dir" yaml:"output_dir"`
}

// DemoConfig configures the bundled demo bank server.
type DemoConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DatabaseConfig holds the database connection details for persisted run history.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "flowcheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", "0s")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})

	// -- Harness --
	v.SetDefault("harness.base_url", "https://parabank.parasoft.com/parabank")
	v.SetDefault("harness.action_timeout", "10s")
	v.SetDefault("harness.navigation_timeout", "30s")
	v.SetDefault("harness.response_timeout", "15s")
	v.SetDefault("harness.date_layout", "01-02-2006")

	// -- Suite --
	v.SetDefault("suite.paths", []string{})
	v.SetDefault("suite.concurrency", 4)
	v.SetDefault("suite.retries", 0)
	v.SetDefault("suite.scenario_timeout", "60s")
	v.SetDefault("suite.timeout", "30m")
	v.SetDefault("suite.start_rate", 0.0)

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "test-results")
	v.SetDefault("artifacts.screenshot", PolicyOnlyOnFailure)
	v.SetDefault("artifacts.dom", PolicyOnlyOnFailure)
	v.SetDefault("artifacts.trace", PolicyRetainOnFailure)
	v.SetDefault("artifacts.video", PolicyRetainOnFailure)

	// -- Report --
	v.SetDefault("report.json", "report.json")
	v.SetDefault("report.html", "report.html")
	v.SetDefault("report.junit", "")
	v.SetDefault("report.markdown", "")
	v.SetDefault("report.failure_log", "erros.txt")
	v.SetDefault("report.console", true)

	// -- Analysis --
	v.SetDefault("analysis.provider", "gemini")
	v.SetDefault("analysis.model", "gemini-2.5-flash")
	v.SetDefault("analysis.timeout", "2m")
	v.SetDefault("analysis.temperature", 0.3)
	v.SetDefault("analysis.output_dir", "ai/analysis")

	// -- Demo --
	v.SetDefault("demo.addr", "127.0.0.1:8089")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Aliases kept for compatibility with existing environments.
	_ = v.BindEnv("harness.base_url", "FLOWCHECK_HARNESS_BASE_URL", "BASE_URL")
	_ = v.BindEnv("analysis.api_key", "FLOWCHECK_ANALYSIS_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "FLOWCHECK_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every filesystem path setting.
func (c *Config) expandPaths() error {
	targets := []*string{
		&c.LoggerCfg.LogFile,
		&c.ArtifactsCfg.Dir,
		&c.ReportCfg.JSON,
		&c.ReportCfg.HTML,
		&c.ReportCfg.JUnit,
		&c.ReportCfg.Markdown,
		&c.ReportCfg.FailureLog,
		&c.AnalysisCfg.OutputDir,
		&c.BrowserCfg.ExecPath,
	}
	for _, p := range targets {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	for i, p := range c.SuiteCfg.Paths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return fmt.Errorf("failed to expand suite path %q: %w", p, err)
		}
		c.SuiteCfg.Paths[i] = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Driver {
	case DriverChromedp, DriverPlaywright, DriverHTTP:
	default:
		return fmt.Errorf("browser.driver must be one of %s, %s, %s (got %q)",
			DriverChromedp, DriverPlaywright, DriverHTTP, c.BrowserCfg.Driver)
	}
	if err := c.HarnessCfg.Validate(); err != nil {
		return fmt.Errorf("harness configuration invalid: %w", err)
	}
	if c.SuiteCfg.Concurrency <= 0 {
		return fmt.Errorf("suite.concurrency must be a positive integer")
	}
	if c.SuiteCfg.Retries < 0 {
		return fmt.Errorf("suite.retries must not be negative")
	}
	if c.SuiteCfg.StartRate < 0 {
		return fmt.Errorf("suite.start_rate must not be negative")
	}
	if err := c.ArtifactsCfg.Validate(); err != nil {
		return fmt.Errorf("artifacts configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the harness settings.
func (h *HarnessConfig) Validate() error {
	if h.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(h.BaseURL, "http://") && !strings.HasPrefix(h.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL (got %q)", h.BaseURL)
	}
	if h.ActionTimeout <= 0 || h.NavigationTimeout <= 0 || h.ResponseTimeout <= 0 {
		return fmt.Errorf("action_timeout, navigation_timeout and response_timeout must be positive durations")
	}
	if h.DateLayout == "" {
		return fmt.Errorf("date_layout is required")
	}
	return nil
}

// Validate checks that every capture policy is known.
func (a *ArtifactsConfig) Validate() error {
	policies := map[string]string{
		"screenshot": a.Screenshot,
		"dom":        a.DOM,
		"trace":      a.Trace,
		"video":      a.Video,
	}
	for name, p := range policies {
		if !IsValidPolicy(p) {
			return fmt.Errorf("%s policy %q is not one of off, on, only-on-failure, retain-on-failure", name, p)
		}
	}
	return nil
}

// IsValidPolicy reports whether p names a known capture policy.
func IsValidPolicy(p string) bool {
	switch p {
	case PolicyOff, PolicyOn, PolicyOnlyOnFailure, PolicyRetainOnFailure:
		return true
	}
	return false
}
