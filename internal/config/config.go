// Package config loads and validates CLI configuration for latexmath.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MERCorg/mkdocs-latex-math/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidMode     = errors.New("invalid mode")
	ErrInvalidWorkers  = errors.New("invalid workers value")
	ErrInvalidTimeout  = errors.New("invalid timeout value")
)

// Rendering modes accepted in config files.
const (
	ModeLinked   = "linked"
	ModeEmbedded = "embedded"
)

// Bounds for sanity-checked numeric fields.
const (
	MaxWorkers        = 64
	MaxTimeoutSeconds = 3600
)

// Config holds all configuration for math rendering.
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Cache     CacheConfig     `yaml:"cache"`
	Render    RenderConfig    `yaml:"render"`
}

// InputConfig defines input source options.
type InputConfig struct {
	DefaultDir string `yaml:"defaultDir"` // Default input directory (empty = must specify)
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	SiteDir     string `yaml:"siteDir"`     // Output tree root (empty = same as source)
	AssetSubdir string `yaml:"assetSubdir"` // Subdirectory of siteDir for linked SVGs
	SiteURL     string `yaml:"siteUrl"`     // Base URL for linked references
	HTML        bool   `yaml:"html"`        // Also render processed markdown to HTML
}

// ToolchainConfig locates the external compilers.
type ToolchainConfig struct {
	LatexPath   string `yaml:"latexPath"`   // LaTeX engine (default: "latex")
	DvisvgmPath string `yaml:"dvisvgmPath"` // DVI→SVG converter (default: "dvisvgm")
	TempDir     string `yaml:"tempDir"`     // If set, working dirs go here and are retained
}

// CacheConfig locates the durable artifact store.
type CacheConfig struct {
	Dir string `yaml:"dir"` // Artifact store directory (default: ".latexmath-cache")
}

// RenderConfig defines rendering behavior.
type RenderConfig struct {
	Mode           string `yaml:"mode"`           // "linked" (default) or "embedded"
	Strict         bool   `yaml:"strict"`         // Fail document on first compile error
	Workers        int    `yaml:"workers"`        // 0 = auto
	TimeoutSeconds int    `yaml:"timeoutSeconds"` // Per-fragment compile timeout, 0 = default
}

// DefaultConfig returns a configuration matching the toolchain defaults.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{AssetSubdir: "assets/latex"},
		Toolchain: ToolchainConfig{
			LatexPath:   "latex",
			DvisvgmPath: "dvisvgm",
		},
		Cache:  CacheConfig{Dir: ".latexmath-cache"},
		Render: RenderConfig{Mode: ModeLinked},
	}
}

// Validate checks mode and numeric bounds.
func (c *Config) Validate() error {
	switch c.Render.Mode {
	case "", ModeLinked, ModeEmbedded:
	default:
		return fmt.Errorf("%w: %q (must be linked or embedded)", ErrInvalidMode, c.Render.Mode)
	}
	if c.Render.Workers < 0 || c.Render.Workers > MaxWorkers {
		return fmt.Errorf("%w: %d (must be 0..%d)", ErrInvalidWorkers, c.Render.Workers, MaxWorkers)
	}
	if c.Render.TimeoutSeconds < 0 || c.Render.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("%w: %d (must be 0..%d)", ErrInvalidTimeout, c.Render.TimeoutSeconds, MaxTimeoutSeconds)
	}
	return nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !strings.ContainsAny(nameOrPath, "/\\") {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/latexmath/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "latexmath", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
