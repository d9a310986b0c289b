// The application's root configuration.
//
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Driver   DriverConfig   `mapstructure:"driver"`
	Launcher LauncherConfig `mapstructure:"launcher"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Probe    ProbeConfig    `mapstructure:"probe"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// DriverConfig locates the unpatched and patched chromedriver executables.
// Empty names are derived from the host OS.
type DriverConfig struct {
	Dir            string `mapstructure:"dir"`
	SourceName     string `mapstructure:"source_name"`
	PatchedName    string `mapstructure:"patched_name"`
	VerifyChecksum bool   `mapstructure:"verify_checksum"`
}

// LauncherConfig holds the retry budget for connecting to a spawned driver.
type LauncherConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	PortMin     int           `mapstructure:"port_min"`
	PortMax     int           `mapstructure:"port_max"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// FetchConfig holds settings for downloading chromedriver when it is missing.
type FetchConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BrowserConfig holds settings for the Chrome instance chromedriver starts.
type BrowserConfig struct {
	Binary       string   `mapstructure:"binary"`
	Headless     bool     `mapstructure:"headless"`
	Args         []string `mapstructure:"args"`
	UserAgent    string   `mapstructure:"user_agent"`
	WindowWidth  int      `mapstructure:"window_width"`
	WindowHeight int      `mapstructure:"window_height"`
}

// ProbeConfig holds settings for the post-patch detection checks.
type ProbeConfig struct {
	DetectionURL string        `mapstructure:"detection_url"`
	ResultXPath  string        `mapstructure:"result_xpath"`
	ExpectedText string        `mapstructure:"expected_text"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers default values so the app can run without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "undetected-chromedriver")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("driver.dir", ".")
	v.SetDefault("driver.verify_checksum", true)

	v.SetDefault("launcher.max_attempts", 20)
	v.SetDefault("launcher.backoff", 250*time.Millisecond)
	v.SetDefault("launcher.port_min", 2000)
	v.SetDefault("launcher.port_max", 5000)
	v.SetDefault("launcher.timeout", time.Duration(0))

	v.SetDefault("fetch.enabled", true)
	v.SetDefault("fetch.base_url", "https://chromedriver.storage.googleapis.com")
	v.SetDefault("fetch.timeout", 60*time.Second)

	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	v.SetDefault("probe.detection_url", "https://arh.antoinevastel.com/bots/areyouheadless")
	v.SetDefault("probe.result_xpath", `//*[@id="res"]/p`)
	v.SetDefault("probe.expected_text", "You are not Chrome headless")
	v.SetDefault("probe.timeout", 30*time.Second)
}

// NewDefaultConfig returns a Config populated with the registered defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the fields the core cannot run without.
func (c *Config) Validate() error {
	if c.Driver.Dir == "" {
		return fmt.Errorf("driver.dir is a required configuration field")
	}
	if c.Launcher.MaxAttempts <= 0 {
		return fmt.Errorf("launcher.max_attempts must be a positive integer")
	}
	if c.Launcher.Backoff < 0 {
		return fmt.Errorf("launcher.backoff must not be negative")
	}
	if c.Launcher.PortMin <= 0 || c.Launcher.PortMax <= c.Launcher.PortMin || c.Launcher.PortMax > 65536 {
		return fmt.Errorf("launcher port range [%d, %d) is invalid", c.Launcher.PortMin, c.Launcher.PortMax)
	}
	if c.Fetch.Enabled && c.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url is required when fetching is enabled")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Set replaces the global configuration instance.
func Set(cfg *Config) {
	once.Do(func() {})
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
