package config

import (
	"fmt"
	"time"
)

// Config holds the complete application configuration
type Config struct {
	Version string        `yaml:"version" json:"version"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	History HistoryConfig `yaml:"history" json:"history"`
	UI      UIConfig      `yaml:"ui" json:"ui"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Export  ExportConfig  `yaml:"export" json:"export"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
}

// ServerConfig configures the analysis backend connection
type ServerConfig struct {
	BaseURL               string        `yaml:"base_url" json:"base_url"`                               // backend root URL
	RequestTimeout        time.Duration `yaml:"request_timeout" json:"request_timeout"`                 // optional deadline for history, stats and health calls
	OnlineAnalysisTimeout time.Duration `yaml:"online_analysis_timeout" json:"online_analysis_timeout"` // /upload deadline for online models
	UserAgent             string        `yaml:"user_agent" json:"user_agent"`
}

// StorageConfig configures where the LLM settings are persisted
type StorageConfig struct {
	Backend    string `yaml:"backend" json:"backend"`         // file|sqlite|memory
	Dir        string `yaml:"dir" json:"dir"`                 // state directory for the file backend
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"` // database file for the sqlite backend
}

// HistoryConfig configures the history browser
type HistoryConfig struct {
	Limit          int           `yaml:"limit" json:"limit"`
	SearchDebounce time.Duration `yaml:"search_debounce" json:"search_debounce"`
	ResizeDebounce time.Duration `yaml:"resize_debounce" json:"resize_debounce"`
	CardBreakpoint int           `yaml:"card_breakpoint" json:"card_breakpoint"` // widths at or below use cards
}

// UIConfig configures the interactive terminal UI
type UIConfig struct {
	Theme          string        `yaml:"theme" json:"theme"`                     // default|high-contrast|minimal
	NoticeDuration time.Duration `yaml:"notice_duration" json:"notice_duration"` // success notice lifetime
	WordWrap       int           `yaml:"word_wrap" json:"word_wrap"`
}

// OutputConfig configures output formatting and display
type OutputConfig struct {
	DefaultFormat   string `yaml:"default_format" json:"default_format"`     // text|json|markdown
	ColorMode       string `yaml:"color_mode" json:"color_mode"`             // auto|always|never
	Verbose         bool   `yaml:"verbose" json:"verbose"`                   // default verbosity
	LogFile         string `yaml:"log_file" json:"log_file"`                 // log destination while the TUI runs
	TimestampFormat string `yaml:"timestamp_format" json:"timestamp_format"` // time format string
}

// ExportConfig configures where analysis reports are written
type ExportConfig struct {
	Target string   `yaml:"target" json:"target"` // dir|s3
	Dir    string   `yaml:"dir" json:"dir"`
	S3     S3Config `yaml:"s3" json:"s3"`
}

// S3Config configures an S3-compatible bucket for report export
type S3Config struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl"`
}

// WatchConfig configures the inbox folder mode
type WatchConfig struct {
	AutoAnalyze      bool          `yaml:"auto_analyze" json:"auto_analyze"`           // analyze right after estimating
	ApplyRecommended bool          `yaml:"apply_recommended" json:"apply_recommended"` // accept recommended max tokens
	Settle           time.Duration `yaml:"settle" json:"settle"`                       // quiet period before a new file is read
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			BaseURL:               "http://localhost:8080",
			OnlineAnalysisTimeout: 60 * time.Second,
			UserAgent:             "contractis-cli",
		},
		Storage: StorageConfig{
			Backend:    "file",
			Dir:        "~/.config/contractis",
			SQLitePath: "~/.config/contractis/state.db",
		},
		History: HistoryConfig{
			Limit:          50,
			SearchDebounce: 500 * time.Millisecond,
			ResizeDebounce: 250 * time.Millisecond,
			CardBreakpoint: 768,
		},
		UI: UIConfig{
			Theme:          "default",
			NoticeDuration: 3 * time.Second,
			WordWrap:       100,
		},
		Output: OutputConfig{
			DefaultFormat:   "text",
			ColorMode:       "auto",
			Verbose:         false,
			LogFile:         "~/.cache/contractis/contractis.log",
			TimestampFormat: "2006-01-02 15:04",
		},
		Export: ExportConfig{
			Target: "dir",
			Dir:    "./reports",
		},
		Watch: WatchConfig{
			Settle: 500 * time.Millisecond,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateServerConfig(); err != nil {
		return err
	}
	if err := c.validateStorageConfig(); err != nil {
		return err
	}
	if err := c.validateHistoryConfig(); err != nil {
		return err
	}
	if err := c.validateOutputConfig(); err != nil {
		return err
	}
	if err := c.validateExportConfig(); err != nil {
		return err
	}
	return nil
}

// validateServerConfig validates backend connection settings
func (c *Config) validateServerConfig() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be non-negative")
	}
	if c.Server.OnlineAnalysisTimeout <= 0 {
		return fmt.Errorf("online_analysis_timeout must be positive")
	}
	return nil
}

// validateStorageConfig validates settings persistence
func (c *Config) validateStorageConfig() error {
	validBackends := map[string]bool{
		"file":   true,
		"sqlite": true,
		"memory": true,
	}
	if !validBackends[c.Storage.Backend] {
		return fmt.Errorf("invalid storage backend: %s (must be one of: file, sqlite, memory)", c.Storage.Backend)
	}
	return nil
}

// validateHistoryConfig validates history browser settings
func (c *Config) validateHistoryConfig() error {
	if c.History.Limit < 1 {
		return fmt.Errorf("history limit must be greater than 0")
	}
	if c.History.SearchDebounce < 0 || c.History.ResizeDebounce < 0 {
		return fmt.Errorf("debounce delays must be non-negative")
	}
	if c.History.CardBreakpoint < 0 {
		return fmt.Errorf("card_breakpoint must be non-negative")
	}
	return nil
}

// validateOutputConfig validates output-related configuration
func (c *Config) validateOutputConfig() error {
	if c.Output.DefaultFormat != "" {
		validFormats := map[string]bool{
			"json":     true,
			"text":     true,
			"markdown": true,
		}
		if !validFormats[c.Output.DefaultFormat] {
			return fmt.Errorf("invalid output format: %s (must be one of: json, text, markdown)", c.Output.DefaultFormat)
		}
	}
	if c.Output.ColorMode != "" {
		validColorModes := map[string]bool{
			"auto":   true,
			"always": true,
			"never":  true,
		}
		if !validColorModes[c.Output.ColorMode] {
			return fmt.Errorf("invalid color mode: %s (must be one of: auto, always, never)", c.Output.ColorMode)
		}
	}
	return nil
}

// validateExportConfig validates report export settings
func (c *Config) validateExportConfig() error {
	switch c.Export.Target {
	case "", "dir":
		return nil
	case "s3":
		if c.Export.S3.Endpoint == "" || c.Export.S3.Bucket == "" {
			return fmt.Errorf("export.s3 requires endpoint and bucket")
		}
		return nil
	default:
		return fmt.Errorf("invalid export target: %s (must be one of: dir, s3)", c.Export.Target)
	}
}
