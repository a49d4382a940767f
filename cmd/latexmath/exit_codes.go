package main

import (
	"errors"
	"os"

	latexmath "github.com/MERCorg/mkdocs-latex-math"
	"github.com/MERCorg/mkdocs-latex-math/internal/config"
)

// Exit codes for the latexmath CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess   = 0 // All documents rendered
	ExitGeneral   = 1 // General/unexpected error (including compile failures)
	ExitUsage     = 2 // Invalid flags, config, or validation
	ExitIO        = 3 // File not found, permission denied
	ExitToolchain = 4 // latex/dvisvgm missing or broken
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Toolchain errors (exit 4)
	if errors.Is(err, latexmath.ErrToolchainMissing) {
		return ExitToolchain
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, latexmath.ErrCacheDirCreate) ||
		errors.Is(err, latexmath.ErrAssetWrite) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrInvalidArgs) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrInvalidMode) ||
		errors.Is(err, config.ErrInvalidWorkers) ||
		errors.Is(err, config.ErrInvalidTimeout) ||
		errors.Is(err, latexmath.ErrEmptyMarkdown) {
		return ExitUsage
	}

	return ExitGeneral
}
