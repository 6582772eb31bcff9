// The application's root configuration: logging, browser scope defaults and driver selection.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
	mu       sync.RWMutex
)

// Supported driver names.
const (
	DriverChromedp = "chromedp"
	DriverSelenium = "selenium"
	DriverHTMLDOM  = "htmldom"
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Driver  DriverConfig  `mapstructure:"driver"`
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

// BrowserConfig holds the settings every browser scope is constructed with.
type BrowserConfig struct {
	// BaseURL is prepended to relative URLs passed to Visit.
	BaseURL string `mapstructure:"base_url"`
	// WaitTimeout is the default timeout of every wait helper.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	// Directories for failure artifacts.
	ScreenshotsDir string `mapstructure:"screenshots_dir"`
	ConsoleLogDir  string `mapstructure:"console_log_dir"`
	SourceDir      string `mapstructure:"source_dir"`
	// FitOnFailure resizes the window to the document before a failure screenshot.
	FitOnFailure bool `mapstructure:"fit_on_failure"`
	// Routes maps route names to path templates such as "/users/{id}".
	Routes map[string]string `mapstructure:"routes"`
}

// WindowConfig is the initial browser window size.
type WindowConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// SeleniumConfig holds settings for the WebDriver (selenium) backend.
type SeleniumConfig struct {
	// RemoteURL points at an already running WebDriver endpoint. When empty a
	// local ChromeDriver service is started from ChromeDriverPath.
	RemoteURL        string `mapstructure:"remote_url"`
	ChromeDriverPath string `mapstructure:"chromedriver_path"`
	Port             int    `mapstructure:"port"`
	BrowserName      string `mapstructure:"browser_name"`
}

// DriverConfig selects and configures the browser backend.
type DriverConfig struct {
	Name              string         `mapstructure:"name"`
	Headless          bool           `mapstructure:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args"`
	Window            WindowConfig   `mapstructure:"window"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout"`
	Selenium          SeleniumConfig `mapstructure:"selenium"`
}

// SetDefaults registers default values so the app can run with a minimal config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "dusk")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("browser.base_url", "http://localhost")
	v.SetDefault("browser.wait_timeout", 5*time.Second)
	v.SetDefault("browser.screenshots_dir", "tests/browser/screenshots")
	v.SetDefault("browser.console_log_dir", "tests/browser/console")
	v.SetDefault("browser.source_dir", "tests/browser/source")
	v.SetDefault("browser.fit_on_failure", true)

	v.SetDefault("driver.name", DriverChromedp)
	v.SetDefault("driver.headless", true)
	v.SetDefault("driver.window.width", 1920)
	v.SetDefault("driver.window.height", 1080)
	v.SetDefault("driver.navigation_timeout", 30*time.Second)
	v.SetDefault("driver.selenium.port", 9515)
	v.SetDefault("driver.selenium.browser_name", "chrome")
}

// Validate checks the configuration for values that would make every test fail.
func (c *Config) Validate() error {
	var errs []error

	switch c.Driver.Name {
	case DriverChromedp, DriverHTMLDOM:
	case DriverSelenium:
		if c.Driver.Selenium.RemoteURL == "" && c.Driver.Selenium.ChromeDriverPath == "" {
			errs = append(errs, errors.New("driver.selenium requires remote_url or chromedriver_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver.name %q (want %s)", c.Driver.Name,
			strings.Join([]string{DriverChromedp, DriverSelenium, DriverHTMLDOM}, ", ")))
	}

	if c.Browser.WaitTimeout < 0 {
		errs = append(errs, errors.New("browser.wait_timeout must not be negative"))
	}
	if c.Driver.Window.Width < 0 || c.Driver.Window.Height < 0 {
		errs = append(errs, errors.New("driver.window dimensions must not be negative"))
	}
	return errors.Join(errs...)
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		Set(&cfg)
	})
	return loadErr
}

// Set stores cfg as the global configuration.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
