// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the completion host configuration.
//
// A Config value is loaded from YAML and threaded explicitly through the
// manager; there is no package-level singleton. Durations are written as
// YAML duration strings ("2s", "200ms").
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the completion host.
type Config struct {
	// Workspace is the initial project folder sent as rootUri.
	Workspace string `yaml:"workspace"`

	// ConfigDir holds the per-language server logs (lsp_logs/<language>.log).
	ConfigDir string `yaml:"config_dir"`

	// RequestTimeout is the per-request fan-out deadline.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ConfigDebounce delays configuration propagation after a change.
	ConfigDebounce time.Duration `yaml:"config_debounce"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
	Transport TransportConfig `yaml:"transport"`
	Restart   RestartConfig   `yaml:"restart"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Snippets  SnippetsConfig  `yaml:"snippets"`
	Watcher   WatcherConfig   `yaml:"watcher"`

	// Languages maps a language tag to its server and settings.
	Languages map[string]LanguageConfig `yaml:"languages"`
}

// LoggingConfig configures the host logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	LogDir string `yaml:"log_dir,omitempty"`
	JSON   bool   `yaml:"json"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is one of "stdout", "otlp", or "prometheus".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// APIConfig configures the status HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TransportConfig configures how language servers are isolated.
type TransportConfig struct {
	// Binary is the lsp-transport executable. Empty looks next to the host
	// executable, then on PATH, and runs the proxy in-process if neither has it.
	Binary string `yaml:"binary,omitempty"`

	// Debug is the proxy verbosity, 0..3.
	Debug int `yaml:"debug"`

	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// RestartConfig bounds automatic restarts of crashed clients.
type RestartConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	MaxRestarts int           `yaml:"max_restarts"`
}

// FallbackConfig configures the lexical fallback provider.
type FallbackConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// SnippetsConfig maps language → trigger → description → body.
type SnippetsConfig struct {
	Enabled   bool                                    `yaml:"enabled"`
	Languages map[string]map[string]map[string]string `yaml:"languages"`
}

// WatcherConfig configures the workspace watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is "polling" (default) or "fsnotify".
	Backend string `yaml:"backend"`

	Interval    time.Duration `yaml:"interval"`
	Throttle    time.Duration `yaml:"throttle"`
	Extensions  []string      `yaml:"extensions"`
	IgnoredDirs []string      `yaml:"ignored_dirs"`
}

// LanguageConfig describes one language's server and editor settings.
type LanguageConfig struct {
	// Extensions are the file extensions mapped to this language.
	Extensions []string `yaml:"extensions"`

	Server   ServerSettings   `yaml:"server"`
	Settings LanguageSettings `yaml:"settings"`
}

// ServerSettings is how to reach a language server. Every field except
// InitializationOptions is restart-significant.
type ServerSettings struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args,omitempty"`
	Host     string   `yaml:"host,omitempty"`
	Port     int      `yaml:"port,omitempty"`
	Stdio    bool     `yaml:"stdio"`
	External bool     `yaml:"external"`

	InitializationOptions map[string]any `yaml:"initialization_options,omitempty"`
}

// SameProcess reports whether two settings would start the same server.
func (s ServerSettings) SameProcess(o ServerSettings) bool {
	if s.Command != o.Command || s.Host != o.Host || s.Port != o.Port ||
		s.Stdio != o.Stdio || s.External != o.External {
		return false
	}
	if len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// LanguageSettings are the editor-side options forwarded to the server
// through workspace/didChangeConfiguration.
type LanguageSettings struct {
	Formatter  string         `yaml:"formatter,omitempty"`
	Linters    []string       `yaml:"linters,omitempty"`
	LineLength int            `yaml:"line_length,omitempty"`
	Extra      map[string]any `yaml:"extra,omitempty"`
}

// Configurations derives the settings payload for a language.
//
// Description:
//
//	Produces {"<language>": {"formatter", "linters", "lineLength"}} merged
//	with the Extra map at the top level. Extra keys win on conflict.
func (s LanguageSettings) Configurations(language string) map[string]any {
	own := map[string]any{}
	if s.Formatter != "" {
		own["formatter"] = s.Formatter
	}
	if len(s.Linters) > 0 {
		linters := make([]any, len(s.Linters))
		for i, l := range s.Linters {
			linters[i] = l
		}
		own["linters"] = linters
	}
	if s.LineLength > 0 {
		own["lineLength"] = s.LineLength
	}

	out := map[string]any{language: own}
	for k, v := range s.Extra {
		out[k] = v
	}
	return out
}

// =============================================================================
// Defaults
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ConfigDir:      defaultConfigDir(),
		RequestTimeout: 2 * time.Second,
		ConfigDebounce: 2 * time.Second,
		Logging:        LoggingConfig{Level: "info"},
		Telemetry:      TelemetryConfig{Exporter: "prometheus"},
		API:            APIConfig{Addr: "127.0.0.1:12390"},
		Transport: TransportConfig{
			Debug:         0,
			ProbeTimeout:  20 * time.Second,
			ProbeInterval: 100 * time.Millisecond,
		},
		Restart:  RestartConfig{Enabled: true, Interval: 10 * time.Second, MaxRestarts: 5},
		Fallback: FallbackConfig{Enabled: true, QueueSize: 256},
		Snippets: SnippetsConfig{Enabled: true, Languages: defaultSnippets()},
		Watcher: WatcherConfig{
			Enabled:     true,
			Backend:     "polling",
			Interval:    time.Second,
			Throttle:    200 * time.Millisecond,
			Extensions:  defaultEditableExtensions(),
			IgnoredDirs: []string{"__pycache__", "build", "dist", "node_modules", "venv", "target", "vendor"},
		},
		Languages: defaultLanguages(),
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "aleutian-complete")
	}
	return filepath.Join(dir, "aleutian-complete")
}

func defaultLanguages() map[string]LanguageConfig {
	return map[string]LanguageConfig{
		"python": {
			Extensions: []string{".py", ".pyi", ".pyw"},
			Server:     ServerSettings{Command: "pylsp", Stdio: true},
			Settings: LanguageSettings{
				Formatter:  "autopep8",
				Linters:    []string{"pycodestyle", "pyflakes"},
				LineLength: 79,
			},
		},
		"go": {
			Extensions: []string{".go"},
			Server:     ServerSettings{Command: "gopls", Args: []string{"serve"}, Stdio: true},
			Settings:   LanguageSettings{Formatter: "gofmt"},
		},
		"typescript": {
			Extensions: []string{".ts", ".tsx"},
			Server:     ServerSettings{Command: "typescript-language-server", Args: []string{"--stdio"}, Stdio: true},
		},
		"javascript": {
			Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
			Server:     ServerSettings{Command: "typescript-language-server", Args: []string{"--stdio"}, Stdio: true},
		},
		"cpp": {
			Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".c", ".h"},
			Server:     ServerSettings{Command: "clangd", Stdio: true},
		},
		"rust": {
			Extensions: []string{".rs"},
			Server:     ServerSettings{Command: "rust-analyzer", Stdio: true},
		},
	}
}

func defaultEditableExtensions() []string {
	return []string{
		".py", ".pyi", ".pyw", ".ipynb", ".go", ".js", ".jsx", ".ts", ".tsx",
		".c", ".h", ".cpp", ".cc", ".hpp", ".java", ".rs", ".r", ".R",
		".md", ".txt", ".css", ".scss", ".html", ".xml", ".json", ".yaml",
		".yml", ".toml", ".cfg", ".ini",
	}
}

func defaultSnippets() map[string]map[string]map[string]string {
	return map[string]map[string]map[string]string{
		"python": {
			"for": {
				"for loop":       "for ${1:i} in ${2:seq}:\n    $0",
				"enumerate loop": "for ${1:i}, ${2:item} in enumerate(${3:seq}):\n    $0",
			},
			"def": {
				"function": "def ${1:name}(${2:args}):\n    ${3:pass}",
			},
			"class": {
				"class": "class ${1:Name}(${2:object}):\n    def __init__(self${3:, args}):\n        ${0:pass}",
			},
			"ifmain": {
				"main guard": "if __name__ == \"__main__\":\n    ${1:main()}",
			},
		},
		"go": {
			"iferr": {
				"error check": "if err != nil {\n\treturn ${1:err}\n}",
			},
			"fori": {
				"index loop": "for ${1:i} := 0; $1 < ${2:n}; $1++ {\n\t$0\n}",
			},
		},
	}
}

// =============================================================================
// Lookup
// =============================================================================

// LanguageForPath returns the language whose extensions include the path's
// extension, or "" when none does.
func (c *Config) LanguageForPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, e := range c.Languages[name].Extensions {
			if strings.EqualFold(e, ext) {
				return name
			}
		}
	}
	return ""
}

// ServerLogFile is where a language server's stderr is redirected.
func (c *Config) ServerLogFile(language string) string {
	return filepath.Join(c.ConfigDir, "lsp_logs", language+".log")
}

// Validate checks one language's server settings.
//
// Description:
//
//	A spawned server needs a command; a TCP server needs a port. Errors
//	wrap ErrUnknownLanguage, ErrMissingCommand, or ErrMissingPort.
func (c *Config) Validate(language string) error {
	lc, ok := c.Languages[language]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}
	s := lc.Server
	if !s.External && s.Command == "" {
		return fmt.Errorf("%w: %s", ErrMissingCommand, language)
	}
	if !s.Stdio && s.Port == 0 {
		return fmt.Errorf("%w: %s", ErrMissingPort, language)
	}
	return nil
}

// =============================================================================
// Load / Save
// =============================================================================

// DefaultPath returns <user config dir>/aleutian-complete/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// Load reads a YAML file over the defaults. Missing sections keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("%w: request_timeout must be positive", ErrInvalid)
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing the defaults there first if it is missing.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, Default()); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal the config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
