// Package config provides configuration management for glint-ls.
//
// Configuration controls:
//   - Capability mode (readonly vs full): whether MCP clients may run programs
//   - Language server behaviour: builtin completions and diagnostics
//   - Debug adapter limits: listen address, maximum sessions and session timeout
//   - Interpreter limits: maximum call depth
//
// Configuration can be loaded from a JSON or TOML file or use sensible
// defaults. TOML files use snake_case keys; only keys present in the file
// override the defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ctagard/glint-ls/internal/errors"
)

// CapabilityMode defines the level of capabilities exposed over MCP
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Only analysis tools
	ModeFull     CapabilityMode = "full"     // Analysis and program execution
)

// Config holds the server configuration
type Config struct {
	Mode     CapabilityMode `json:"mode"`
	LogLevel string         `json:"logLevel"`

	LSP    LSPConfig    `json:"lsp"`
	DAP    DAPConfig    `json:"dap"`
	Engine EngineConfig `json:"engine"`
}

// LSPConfig holds language server settings
type LSPConfig struct {
	CompletionBuiltins bool `json:"completionBuiltins"`
	Diagnostics        bool `json:"diagnostics"`
}

// DAPConfig holds debug adapter settings
type DAPConfig struct {
	// Listen is a TCP address; empty means a single session over stdio
	Listen           string        `json:"listen"`
	MaxSessions      int           `json:"maxSessions"`
	SessionTimeout   time.Duration `json:"sessionTimeout"`
	ExitAfterSession bool          `json:"exitAfterSession"`
}

// EngineConfig holds interpreter settings
type EngineConfig struct {
	MaxCallDepth int `json:"maxCallDepth"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:     ModeFull,
		LogLevel: "info",
		LSP: LSPConfig{
			CompletionBuiltins: true,
			Diagnostics:        true,
		},
		DAP: DAPConfig{
			MaxSessions:    10,
			SessionTimeout: 30 * time.Minute,
		},
		Engine: EngineConfig{
			MaxCallDepth: 1000,
		},
	}
}

// LoadConfig loads configuration from a JSON or TOML file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := loadTOML(path, cfg); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error()).WithCause(err)
	}
	return cfg, nil
}

type fileConfig struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`
	LSP      struct {
		CompletionBuiltins bool `toml:"completion_builtins"`
		Diagnostics        bool `toml:"diagnostics"`
	} `toml:"lsp"`
	DAP struct {
		Listen           string `toml:"listen"`
		MaxSessions      int    `toml:"max_sessions"`
		SessionTimeout   string `toml:"session_timeout"`
		ExitAfterSession bool   `toml:"exit_after_session"`
	} `toml:"dap"`
	Engine struct {
		MaxCallDepth int `toml:"max_call_depth"`
	} `toml:"engine"`
}

func loadTOML(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.ConfigInvalid(path, fmt.Sprintf("unknown key %q", undecoded[0].String()))
	}

	if meta.IsDefined("mode") {
		cfg.Mode = CapabilityMode(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("lsp", "completion_builtins") {
		cfg.LSP.CompletionBuiltins = raw.LSP.CompletionBuiltins
	}
	if meta.IsDefined("lsp", "diagnostics") {
		cfg.LSP.Diagnostics = raw.LSP.Diagnostics
	}

	if meta.IsDefined("dap", "listen") {
		cfg.DAP.Listen = strings.TrimSpace(raw.DAP.Listen)
	}
	if meta.IsDefined("dap", "max_sessions") {
		cfg.DAP.MaxSessions = raw.DAP.MaxSessions
	}
	if meta.IsDefined("dap", "session_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DAP.SessionTimeout))
		if err != nil {
			return fmt.Errorf("parse dap.session_timeout: %w", err)
		}
		cfg.DAP.SessionTimeout = d
	}
	if meta.IsDefined("dap", "exit_after_session") {
		cfg.DAP.ExitAfterSession = raw.DAP.ExitAfterSession
	}

	if meta.IsDefined("engine", "max_call_depth") {
		cfg.Engine.MaxCallDepth = raw.Engine.MaxCallDepth
	}
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeReadOnly, ModeFull, c.Mode)
	}
	if c.DAP.MaxSessions < 1 {
		return fmt.Errorf("dap.maxSessions must be positive, got %d", c.DAP.MaxSessions)
	}
	if c.Engine.MaxCallDepth < 1 {
		return fmt.Errorf("engine.maxCallDepth must be positive, got %d", c.Engine.MaxCallDepth)
	}
	return nil
}

// CanRunPrograms returns true if MCP clients may execute programs
func (c *Config) CanRunPrograms() bool {
	return c.Mode == ModeFull
}
