package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the client settings.
type Config struct {
	APIBase        string
	DownloadDir    string
	LogFile        string
	OutputName     string
	RedirectDelay  time.Duration
	RequestTimeout time.Duration

	// Credentials come from the environment only and are never written back.
	UserID   string
	Password string
	Token    string
}

const (
	defaultConfigPath     = "~/.config/excelextractor/config.toml"
	defaultAPIBase        = "http://127.0.0.1:8000"
	defaultDownloadDir    = "~/Downloads"
	defaultLogFile        = "~/.local/state/excelextractor/excelextractor.log"
	defaultOutputName     = "merged_output.xlsx"
	defaultRedirectDelay  = 1500 * time.Millisecond
	defaultRequestTimeout = 10 * time.Second
)

// Environment variables that override file values.
const (
	EnvAPIBase  = "EXTRACTOR_API_BASE"
	EnvUser     = "EXTRACTOR_USER"
	EnvPassword = "EXTRACTOR_PASSWORD"
	EnvToken    = "EXTRACTOR_TOKEN"
)

// Load locates and parses the config, falling back to defaults when missing,
// then applies environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIBase:        defaultAPIBase,
		DownloadDir:    mustExpand(defaultDownloadDir),
		LogFile:        mustExpand(defaultLogFile),
		OutputName:     defaultOutputName,
		RedirectDelay:  defaultRedirectDelay,
		RequestTimeout: defaultRequestTimeout,
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIBase          string `toml:"api_base"`
		DownloadDir      string `toml:"download_dir"`
		LogFile          string `toml:"log_file"`
		OutputName       string `toml:"output_name"`
		RedirectDelayMS  int    `toml:"redirect_delay_ms"`
		RequestTimeoutMS int    `toml:"request_timeout_ms"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIBase); v != "" {
		cfg.APIBase = v
	}
	if v := strings.TrimSpace(raw.DownloadDir); v != "" {
		cfg.DownloadDir = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.OutputName); v != "" {
		cfg.OutputName = v
	}
	if raw.RedirectDelayMS > 0 {
		cfg.RedirectDelay = time.Duration(raw.RedirectDelayMS) * time.Millisecond
	}
	if raw.RequestTimeoutMS > 0 {
		cfg.RequestTimeout = time.Duration(raw.RequestTimeoutMS) * time.Millisecond
	}

	applyEnv(&cfg)
	return cfg, nil
}

// LoadDotEnv populates the process environment from .env files. Missing files
// are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIBase)); v != "" {
		cfg.APIBase = v
	}
	cfg.UserID = strings.TrimSpace(os.Getenv(EnvUser))
	cfg.Password = os.Getenv(EnvPassword)
	cfg.Token = strings.TrimSpace(os.Getenv(EnvToken))
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
