package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// AgentConfig configures the shadowcast capture agent. Values come from
// ~/.config/shadowcast/config.toml with SHADOWCAST_* environment overrides.
type AgentConfig struct {
	ServerURL     string
	LogLevel      string
	TokenPath     string
	ChunkInterval time.Duration
	PollInterval  time.Duration
}

type agentFileConfig struct {
	ServerURL       string `toml:"server_url"`
	LogLevel        string `toml:"log_level"`
	TokenPath       string `toml:"token_path"`
	ChunkIntervalMs int    `toml:"chunk_interval_ms"`
	PollIntervalMs  int    `toml:"poll_interval_ms"`
}

func LoadAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{
		ServerURL:     "http://localhost:8000",
		LogLevel:      "info",
		TokenPath:     defaultTokenPath(),
		ChunkInterval: time.Second,
		PollInterval:  3 * time.Second,
	}

	if path := agentConfigPath(); path != "" {
		var fc agentFileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, err
		}
		if fc.ServerURL != "" {
			cfg.ServerURL = fc.ServerURL
		}
		if fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
		if fc.TokenPath != "" {
			cfg.TokenPath = expandTilde(fc.TokenPath)
		}
		if fc.ChunkIntervalMs > 0 {
			cfg.ChunkInterval = time.Duration(fc.ChunkIntervalMs) * time.Millisecond
		}
		if fc.PollIntervalMs > 0 {
			cfg.PollInterval = time.Duration(fc.PollIntervalMs) * time.Millisecond
		}
	}

	if v := os.Getenv("SHADOWCAST_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("SHADOWCAST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SHADOWCAST_TOKEN_PATH"); v != "" {
		cfg.TokenPath = expandTilde(v)
	}
	return cfg, nil
}

func agentConfigPath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "shadowcast")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "shadowcast")
	} else {
		return ""
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultTokenPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "shadowcast", "tokens.json")
	}
	return filepath.Join(".", ".shadowcast-tokens.json")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
