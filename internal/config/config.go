// Package config loads exporter settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/browser"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
)

// EnvPrefix prefixes every environment override, e.g. EXPORTER_BROWSER_HEADLESS.
const EnvPrefix = "EXPORTER"

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Session  SessionConfig `mapstructure:"session" yaml:"session"`
	Output   OutputConfig  `mapstructure:"output" yaml:"output"`
	Surfaces []string      `mapstructure:"surfaces" yaml:"surfaces"`
	Locator  LocatorConfig `mapstructure:"locator" yaml:"locator"`
	Capture  CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Run      RunConfig     `mapstructure:"run" yaml:"run"`
	Metrics  MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

type BrowserConfig struct {
	ExecPath        string        `mapstructure:"exec_path" yaml:"exec_path"`
	ProfileDir      string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
	ReadyTimeout    time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	ClickTimeout    time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	Settle          time.Duration `mapstructure:"settle" yaml:"settle"`
}

// SessionConfig lists the session inputs. Secrets are normally supplied
// through the LOYVERSE_* environment variables.
type SessionConfig struct {
	StorageB64  string `mapstructure:"storage_b64" yaml:"-"`
	StorageFile string `mapstructure:"storage_file" yaml:"storage_file"`
	Email       string `mapstructure:"email" yaml:"-"`
	Password    string `mapstructure:"password" yaml:"-"`
	LoginURL    string `mapstructure:"login_url" yaml:"login_url"`
	Interactive bool   `mapstructure:"interactive" yaml:"interactive"`
}

type OutputConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	File        string `mapstructure:"file" yaml:"file"`
	Screenshot  string `mapstructure:"screenshot" yaml:"screenshot"`
	Trace       string `mapstructure:"trace" yaml:"trace"`
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`
}

// Path joins name onto the output directory unless name is absolute or empty.
func (o OutputConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Dir, name)
}

type LocatorConfig struct {
	ClimbLimit   int           `mapstructure:"climb_limit" yaml:"climb_limit"`
	SweepLimit   int           `mapstructure:"sweep_limit" yaml:"sweep_limit"`
	Settle       time.Duration `mapstructure:"settle" yaml:"settle"`
	DisableSweep bool          `mapstructure:"disable_sweep" yaml:"disable_sweep"`
	ExportWords  []string      `mapstructure:"export_words" yaml:"export_words"`
	AnchorWords  []string      `mapstructure:"anchor_words" yaml:"anchor_words"`
}

type CaptureConfig struct {
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
	PopupTimeout    time.Duration `mapstructure:"popup_timeout" yaml:"popup_timeout"`
	NetworkTimeout  time.Duration `mapstructure:"network_timeout" yaml:"network_timeout"`
	InPageTimeout   time.Duration `mapstructure:"inpage_timeout" yaml:"inpage_timeout"`
	DialogProbe     time.Duration `mapstructure:"dialog_probe" yaml:"dialog_probe"`
	PollWindow      time.Duration `mapstructure:"poll_window" yaml:"poll_window"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// RunConfig bounds the whole process. Budget zero disables the watchdog.
type RunConfig struct {
	Budget time.Duration `mapstructure:"budget" yaml:"budget"`
}

// MetricsConfig names a node-exporter textfile written at the end of a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
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

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "exporter")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigate_timeout", "45s")
	v.SetDefault("browser.ready_timeout", "60s")
	v.SetDefault("browser.click_timeout", "5s")
	v.SetDefault("browser.settle", "1500ms")

	// -- Session --
	v.SetDefault("session.storage_b64", "")
	v.SetDefault("session.storage_file", "out/storage.json")
	v.SetDefault("session.email", "")
	v.SetDefault("session.password", "")
	v.SetDefault("session.login_url", "https://loyverse.com/signin")
	v.SetDefault("session.interactive", false)

	// -- Output --
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.file", "inventory.csv")
	v.SetDefault("output.screenshot", "error.png")
	v.SetDefault("output.trace", "")
	v.SetDefault("output.download_dir", "")

	v.SetDefault("surfaces", []string{})

	// -- Locator --
	v.SetDefault("locator.climb_limit", 4)
	v.SetDefault("locator.sweep_limit", 6)
	v.SetDefault("locator.settle", "400ms")
	v.SetDefault("locator.disable_sweep", false)
	v.SetDefault("locator.export_words", []string{})
	v.SetDefault("locator.anchor_words", []string{})

	// -- Capture --
	v.SetDefault("capture.download_timeout", "2m")
	v.SetDefault("capture.popup_timeout", "10s")
	v.SetDefault("capture.network_timeout", "60s")
	v.SetDefault("capture.inpage_timeout", "15s")
	v.SetDefault("capture.dialog_probe", "2s")
	v.SetDefault("capture.poll_window", "5s")
	v.SetDefault("capture.poll_interval", "250ms")

	// -- Run --
	v.SetDefault("run.budget", "15m")

	// -- Metrics --
	v.SetDefault("metrics.textfile", "")
}

// BindEnv wires the environment. Besides EXPORTER_* overrides for every
// key, the session secrets keep their established LOYVERSE_* names.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("session.storage_b64", EnvPrefix+"_SESSION_STORAGE_B64", "LOYVERSE_STORAGE_B64")
	_ = v.BindEnv("session.email", EnvPrefix+"_SESSION_EMAIL", "LOYVERSE_EMAIL")
	_ = v.BindEnv("session.password", EnvPrefix+"_SESSION_PASSWORD", "LOYVERSE_PASSWORD")
}

// Load reads cfgFile, or ./config.yaml when cfgFile is empty, on top of
// the defaults and the environment. A missing default file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals, expands and validates the configuration
// held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
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

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Logger.LogFile,
		&c.Browser.ExecPath,
		&c.Browser.ProfileDir,
		&c.Session.StorageFile,
		&c.Output.Dir,
		&c.Output.DownloadDir,
		&c.Metrics.Textfile,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Output.File == "" {
		return fmt.Errorf("output.file is required")
	}
	if c.Locator.ClimbLimit < 0 {
		return fmt.Errorf("locator.climb_limit must not be negative")
	}
	if c.Locator.SweepLimit < 0 {
		return fmt.Errorf("locator.sweep_limit must not be negative")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window size must be positive")
	}
	if c.Run.Budget < 0 {
		return fmt.Errorf("run.budget must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"browser.navigate_timeout": c.Browser.NavigateTimeout,
		"browser.ready_timeout":    c.Browser.ReadyTimeout,
		"capture.download_timeout": c.Capture.DownloadTimeout,
		"capture.popup_timeout":    c.Capture.PopupTimeout,
		"capture.network_timeout":  c.Capture.NetworkTimeout,
		"capture.inpage_timeout":   c.Capture.InPageTimeout,
		"capture.poll_interval":    c.Capture.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// BrowserOptions converts the browser section. An empty exec path is
// filled in by auto-detection.
func (c *Config) BrowserOptions() browser.Config {
	bc := browser.Config{
		ExecPath:        c.Browser.ExecPath,
		ProfileDir:      c.Browser.ProfileDir,
		Headless:        c.Browser.Headless,
		WindowWidth:     c.Browser.WindowWidth,
		WindowHeight:    c.Browser.WindowHeight,
		NavigateTimeout: c.Browser.NavigateTimeout,
		ReadyTimeout:    c.Browser.ReadyTimeout,
		ClickTimeout:    c.Browser.ClickTimeout,
		Settle:          c.Browser.Settle,
	}
	if bc.ExecPath == "" {
		bc.ExecPath = browser.DetectBrowser()
	}
	return bc
}

// LocatorOptions converts the locator section on top of the built-in
// vocabulary.
func (c *Config) LocatorOptions() locator.Options {
	o := locator.DefaultOptions()
	o.Export = o.Export.With(c.Locator.ExportWords...)
	o.Anchor = o.Anchor.With(c.Locator.AnchorWords...)
	o.ClimbLimit = c.Locator.ClimbLimit
	o.SweepLimit = c.Locator.SweepLimit
	o.Settle = c.Locator.Settle
	o.DisableSweep = c.Locator.DisableSweep
	return o
}

// Budgets converts the capture section.
func (c *Config) Budgets() capture.Budgets {
	return capture.Budgets{
		Download:     c.Capture.DownloadTimeout,
		Popup:        c.Capture.PopupTimeout,
		Network:      c.Capture.NetworkTimeout,
		InPage:       c.Capture.InPageTimeout,
		DialogProbe:  c.Capture.DialogProbe,
		PollWindow:   c.Capture.PollWindow,
		PollInterval: c.Capture.PollInterval,
	}
}
