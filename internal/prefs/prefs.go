// Package prefs handles excelextractor user preferences persistence.
// Preferences are stored in ~/.config/excelextractor/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds user preferences and the last known monthly usage per user.
type Prefs struct {
	Theme         string         `toml:"theme"`
	MonthlyCounts map[string]int `toml:"monthly_counts,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/excelextractor/prefs.toml"
	defaultTheme     = "Dracula"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path, falling back to defaults if missing.
func Load(path string) (Prefs, error) {
	prefs := Prefs{Theme: defaultTheme}

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs, nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs, nil // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return Prefs{Theme: defaultTheme}, nil // Graceful degradation
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}

	return prefs, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

// File binds preference reads and writes to one path. Each write reloads the
// file first so the theme and the per-user counts do not clobber each other.
type File struct {
	mu   sync.Mutex
	path string
}

// Open returns a File for path; empty uses the default location.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the configured path.
func (f *File) Path() string {
	return f.path
}

// Theme returns the stored theme name.
func (f *File) Theme() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, _ := Load(f.path)
	return p.Theme
}

// SaveTheme persists the theme name.
func (f *File) SaveTheme(name string) error {
	return f.update(func(p *Prefs) { p.Theme = name })
}

// LoadCount returns the cached monthly count for user.
func (f *File) LoadCount(user string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, _ := Load(f.path)
	n, ok := p.MonthlyCounts[cacheKey(user)]
	return n, ok
}

// SaveCount overwrites the cached monthly count for user.
func (f *File) SaveCount(user string, count int) error {
	return f.update(func(p *Prefs) {
		if p.MonthlyCounts == nil {
			p.MonthlyCounts = make(map[string]int)
		}
		p.MonthlyCounts[cacheKey(user)] = count
	})
}

func (f *File) update(mutate func(*Prefs)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, _ := Load(f.path)
	mutate(&p)
	return Save(f.path, p)
}

func cacheKey(user string) string {
	user = strings.ToLower(strings.TrimSpace(user))
	if user == "" {
		return "_anonymous"
	}
	return user
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
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
