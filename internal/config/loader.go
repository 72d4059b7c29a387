package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ConfigPaths defines the config file search paths in priority order
var ConfigPaths = []string{
	"./.contractis.yaml",               // Project-specific config (highest priority)
	"~/.config/contractis/config.yaml", // User config
	"/etc/contractis/config.yaml",      // System config (lowest priority)
}

// Loader handles configuration loading with priority merging
type Loader struct {
	configPaths []string
}

// NewLoader creates a new config loader
func NewLoader() *Loader {
	return &Loader{
		configPaths: ConfigPaths,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Command line flags (handled by caller)
// 2. Environment variables
// 3. ./.contractis.yaml
// 4. ~/.config/contractis/config.yaml
// 5. /etc/contractis/config.yaml
// 6. Built-in defaults
func (l *Loader) LoadConfig(customPath string) (*Config, error) {
	config := DefaultConfig()

	if customPath != "" {
		if err := validateConfigPath(customPath); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		if err := l.loadFromFile(config, customPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", customPath, err)
		}
	} else {
		// Lowest priority first so later files win
		for i := len(l.configPaths) - 1; i >= 0; i-- {
			expandedPath := ExpandPath(l.configPaths[i])
			if fileExists(expandedPath) {
				if err := l.loadFromFile(config, expandedPath); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: Failed to load config from %s: %v\n", expandedPath, err)
				}
			}
		}
	}

	if err := l.applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a file and merges it with existing config
func (l *Loader) loadFromFile(config *Config, path string) error {
	// #nosec G304 - path is validated by validateConfigPath() before reaching here
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	fileConfig, err := decodeConfig(path, data)
	if err != nil {
		return err
	}

	mergeConfigs(config, fileConfig)
	return nil
}

// decodeConfig parses YAML directly. TOML and JSON documents are first
// decoded generically and re-read through YAML so durations like "60s"
// behave the same in every format.
func decodeConfig(path string, data []byte) (*Config, error) {
	var fileConfig Config

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return &fileConfig, nil
	case ".toml", ".json":
		var generic map[string]interface{}
		if ext == ".toml" {
			if err := toml.Unmarshal(data, &generic); err != nil {
				return nil, fmt.Errorf("failed to parse TOML: %w", err)
			}
		} else if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		normalized, err := yaml.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize %s config: %w", ext, err)
		}
		if err := yaml.Unmarshal(normalized, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to decode %s config: %w", ext, err)
		}
		return &fileConfig, nil
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", ext)
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func (l *Loader) applyEnvOverrides(config *Config) error {
	envMappings := map[string]func(string) error{
		// Server Config
		"CONTRACTIS_SERVER_BASE_URL":                func(v string) error { config.Server.BaseURL = v; return nil },
		"CONTRACTIS_SERVER_REQUEST_TIMEOUT":         func(v string) error { return parseDuration(v, &config.Server.RequestTimeout) },
		"CONTRACTIS_SERVER_ONLINE_ANALYSIS_TIMEOUT": func(v string) error { return parseDuration(v, &config.Server.OnlineAnalysisTimeout) },

		// Storage Config
		"CONTRACTIS_STORAGE_BACKEND":     func(v string) error { config.Storage.Backend = v; return nil },
		"CONTRACTIS_STORAGE_DIR":         func(v string) error { config.Storage.Dir = v; return nil },
		"CONTRACTIS_STORAGE_SQLITE_PATH": func(v string) error { config.Storage.SQLitePath = v; return nil },

		// History Config
		"CONTRACTIS_HISTORY_LIMIT":           func(v string) error { return parseInt(v, &config.History.Limit) },
		"CONTRACTIS_HISTORY_SEARCH_DEBOUNCE": func(v string) error { return parseDuration(v, &config.History.SearchDebounce) },
		"CONTRACTIS_HISTORY_RESIZE_DEBOUNCE": func(v string) error { return parseDuration(v, &config.History.ResizeDebounce) },
		"CONTRACTIS_HISTORY_CARD_BREAKPOINT": func(v string) error { return parseInt(v, &config.History.CardBreakpoint) },

		// UI Config
		"CONTRACTIS_UI_THEME":           func(v string) error { config.UI.Theme = v; return nil },
		"CONTRACTIS_UI_NOTICE_DURATION": func(v string) error { return parseDuration(v, &config.UI.NoticeDuration) },

		// Output Config
		"CONTRACTIS_OUTPUT_DEFAULT_FORMAT": func(v string) error { config.Output.DefaultFormat = v; return nil },
		"CONTRACTIS_OUTPUT_COLOR_MODE":     func(v string) error { config.Output.ColorMode = v; return nil },
		"CONTRACTIS_OUTPUT_VERBOSE":        func(v string) error { return parseBool(v, &config.Output.Verbose) },
		"CONTRACTIS_OUTPUT_LOG_FILE":       func(v string) error { config.Output.LogFile = v; return nil },

		// Export Config
		"CONTRACTIS_EXPORT_TARGET":              func(v string) error { config.Export.Target = v; return nil },
		"CONTRACTIS_EXPORT_DIR":                 func(v string) error { config.Export.Dir = v; return nil },
		"CONTRACTIS_EXPORT_S3_ENDPOINT":         func(v string) error { config.Export.S3.Endpoint = v; return nil },
		"CONTRACTIS_EXPORT_S3_ACCESS_KEY_ID":    func(v string) error { config.Export.S3.AccessKeyID = v; return nil },
		"CONTRACTIS_EXPORT_S3_SECRET_ACCESS_KEY": func(v string) error { config.Export.S3.SecretAccessKey = v; return nil },
		"CONTRACTIS_EXPORT_S3_BUCKET":           func(v string) error { config.Export.S3.Bucket = v; return nil },
		"CONTRACTIS_EXPORT_S3_REGION":           func(v string) error { config.Export.S3.Region = v; return nil },
		"CONTRACTIS_EXPORT_S3_USE_SSL":          func(v string) error { return parseBool(v, &config.Export.S3.UseSSL) },

		// Watch Config
		"CONTRACTIS_WATCH_AUTO_ANALYZE":      func(v string) error { return parseBool(v, &config.Watch.AutoAnalyze) },
		"CONTRACTIS_WATCH_APPLY_RECOMMENDED": func(v string) error { return parseBool(v, &config.Watch.ApplyRecommended) },
	}

	for envVar, setter := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			if err := setter(value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar, err)
			}
		}
	}

	return nil
}

// GetConfigPaths returns the list of configuration file paths that will be searched
func GetConfigPaths() []string {
	paths := make([]string, 0, len(ConfigPaths))
	for _, path := range ConfigPaths {
		paths = append(paths, ExpandPath(path))
	}
	return paths
}

// FindConfigFile finds the first existing config file in the search paths
func FindConfigFile() (string, bool) {
	for _, path := range ConfigPaths {
		expandedPath := ExpandPath(path)
		if fileExists(expandedPath) {
			return expandedPath, true
		}
	}
	return "", false
}

// Helper functions

// validateConfigPath validates that a config path is safe to read
func validateConfigPath(path string) error {
	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".yaml" && ext != ".yml" && ext != ".toml" && ext != ".json" {
		return fmt.Errorf("config file must have .yaml, .yml, .toml or .json extension")
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if strings.HasPrefix(absPath, "/etc/passwd") ||
		strings.HasPrefix(absPath, "/etc/shadow") ||
		strings.HasPrefix(absPath, "/proc/") ||
		strings.HasPrefix(absPath, "/sys/") {
		return fmt.Errorf("access to system files not allowed")
	}

	return nil
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// mergeConfigs merges source config into destination config
// Only non-zero values from source overwrite destination
func mergeConfigs(dst, src *Config) {
	if src.Version != "" {
		dst.Version = src.Version
	}

	mergeServerConfig(&dst.Server, &src.Server)
	mergeStorageConfig(&dst.Storage, &src.Storage)
	mergeHistoryConfig(&dst.History, &src.History)
	mergeUIConfig(&dst.UI, &src.UI)
	mergeOutputConfig(&dst.Output, &src.Output)
	mergeExportConfig(&dst.Export, &src.Export)
	mergeWatchConfig(&dst.Watch, &src.Watch)
}

func mergeServerConfig(dst, src *ServerConfig) {
	mergeString(&dst.BaseURL, src.BaseURL)
	mergeString(&dst.UserAgent, src.UserAgent)
	mergeDuration(&dst.RequestTimeout, src.RequestTimeout)
	mergeDuration(&dst.OnlineAnalysisTimeout, src.OnlineAnalysisTimeout)
}

func mergeStorageConfig(dst, src *StorageConfig) {
	mergeString(&dst.Backend, src.Backend)
	mergeString(&dst.Dir, src.Dir)
	mergeString(&dst.SQLitePath, src.SQLitePath)
}

func mergeHistoryConfig(dst, src *HistoryConfig) {
	if src.Limit != 0 {
		dst.Limit = src.Limit
	}
	if src.CardBreakpoint != 0 {
		dst.CardBreakpoint = src.CardBreakpoint
	}
	mergeDuration(&dst.SearchDebounce, src.SearchDebounce)
	mergeDuration(&dst.ResizeDebounce, src.ResizeDebounce)
}

func mergeUIConfig(dst, src *UIConfig) {
	mergeString(&dst.Theme, src.Theme)
	mergeDuration(&dst.NoticeDuration, src.NoticeDuration)
	if src.WordWrap != 0 {
		dst.WordWrap = src.WordWrap
	}
}

// mergeOutputConfig merges output configuration
func mergeOutputConfig(dst, src *OutputConfig) {
	mergeString(&dst.DefaultFormat, src.DefaultFormat)
	mergeString(&dst.ColorMode, src.ColorMode)
	mergeString(&dst.LogFile, src.LogFile)
	mergeString(&dst.TimestampFormat, src.TimestampFormat)
	// Booleans default to false, so a true value is the only signal we get
	if src.Verbose {
		dst.Verbose = true
	}
}

func mergeExportConfig(dst, src *ExportConfig) {
	mergeString(&dst.Target, src.Target)
	mergeString(&dst.Dir, src.Dir)
	mergeString(&dst.S3.Endpoint, src.S3.Endpoint)
	mergeString(&dst.S3.AccessKeyID, src.S3.AccessKeyID)
	mergeString(&dst.S3.SecretAccessKey, src.S3.SecretAccessKey)
	mergeString(&dst.S3.Bucket, src.S3.Bucket)
	mergeString(&dst.S3.Prefix, src.S3.Prefix)
	mergeString(&dst.S3.Region, src.S3.Region)
	if src.S3.UseSSL {
		dst.S3.UseSSL = true
	}
}

func mergeWatchConfig(dst, src *WatchConfig) {
	if src.AutoAnalyze {
		dst.AutoAnalyze = true
	}
	if src.ApplyRecommended {
		dst.ApplyRecommended = true
	}
	mergeDuration(&dst.Settle, src.Settle)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeDuration(dst *time.Duration, src time.Duration) {
	if src != 0 {
		*dst = src
	}
}

// Type conversion helpers

func parseInt(s string, dst *int) error {
	val, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func parseBool(s string, dst *bool) error {
	val, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	val, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}
