// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Commands receive this instead of the concrete struct so tests can inject
// hand-built configs.
type Interface interface {
	Logger() LoggerConfig
	Ingest() IngestConfig
	Report() ReportConfig

	SetReportTitle(title string)
	SetReportConcurrency(n int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg LoggerConfig `mapstructure:"logger" yaml:"logger"`
	IngestCfg IngestConfig `mapstructure:"ingest" yaml:"ingest"`
	ReportCfg ReportConfig `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig { return c.LoggerCfg }
func (c *Config) Ingest() IngestConfig { return c.IngestCfg }
func (c *Config) Report() ReportConfig { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetReportTitle(title string) { c.ReportCfg.Title = title }
func (c *Config) SetReportConcurrency(n int)  { c.ReportCfg.Concurrency = n }

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

// ColorConfig defines the color names used for each log level on the console.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// IngestConfig controls how scanner exports are read.
type IngestConfig struct {
	// Columns maps a canonical field name (e.g. "finding_name") to extra
	// source column names. They are tried after the built-in synonyms.
	Columns map[string][]string `mapstructure:"columns" yaml:"columns"`
}

// ReportConfig controls the generated findings document.
type ReportConfig struct {
	Title        string `mapstructure:"title" yaml:"title"`
	Author       string `mapstructure:"author" yaml:"author"`
	Format       string `mapstructure:"format" yaml:"format"`
	ScopeColumns int    `mapstructure:"scope_columns" yaml:"scope_columns"`
	ChartWidth   int    `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight  int    `mapstructure:"chart_height" yaml:"chart_height"`
	// TempDir holds the rendered chart image while the document is assembled.
	// Empty means the OS default.
	TempDir     string `mapstructure:"temp_dir" yaml:"temp_dir"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
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
	v.SetDefault("logger.service_name", "vulnreport")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Report --
	v.SetDefault("report.title", "Vulnerability Assessment")
	v.SetDefault("report.author", "vulnreport")
	v.SetDefault("report.format", "docx")
	v.SetDefault("report.scope_columns", 4)
	v.SetDefault("report.chart_width", 640)
	v.SetDefault("report.chart_height", 480)
	v.SetDefault("report.temp_dir", "")
	v.SetDefault("report.concurrency", 4)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for _, p := range []*string{&cfg.LoggerCfg.LogFile, &cfg.ReportCfg.TempDir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("error expanding path %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ReportCfg.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	for field, names := range c.IngestCfg.Columns {
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("ingest.columns.%s contains an empty column name", field)
			}
		}
	}
	return nil
}

// Validate checks the report settings.
func (r *ReportConfig) Validate() error {
	if r.ScopeColumns <= 0 {
		return fmt.Errorf("scope_columns must be a positive integer")
	}
	if r.ChartWidth <= 0 || r.ChartHeight <= 0 {
		return fmt.Errorf("chart_width and chart_height must be positive")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	return nil
}
