package latexmath

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/MERCorg/mkdocs-latex-math/internal/process"
)

// Compilation stage names, reported in StageError.
const (
	StageTypeset = "typeset" // latex: .tex → .dvi
	StageConvert = "convert" // dvisvgm: .dvi → .svg
)

// StageError reports a failed compilation stage with the diagnostics needed
// to fix the math: which tool, how it exited, and everything it printed.
// Unwraps to ErrCompile.
type StageError struct {
	Stage    string
	ExitCode int
	Output   string
	Timeout  bool
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s stage timed out", e.Stage)
	}
	return fmt.Sprintf("%s stage failed with exit code %d:\n%s", e.Stage, e.ExitCode, e.Output)
}

func (e *StageError) Unwrap() error { return ErrCompile }

// CommandRunner abstracts toolchain execution to enable testing without real
// subprocesses.
type CommandRunner interface {
	// Run executes name with args in dir and returns combined stdout+stderr.
	Run(ctx context.Context, dir, name string, args ...string) (output string, err error)
}

// ExecRunner implements CommandRunner using os/exec. Each command runs in its
// own process group so a context cancellation kills the whole tree, not just
// the direct child (latex can fork helper processes).
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	process.Setpgid(cmd)
	cmd.Cancel = func() error {
		process.KillProcessGroup(cmd.Process.Pid)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.CombinedOutput()
	return string(out), err
}

// compiler drives the two-stage toolchain for one composite source. Every
// invocation gets a fresh working directory, never shared between concurrent
// compilations, removed on all exit paths unless retention is configured.
type compiler struct {
	latexPath   string
	dvisvgmPath string
	tempDir     string // non-empty: workdirs created here and retained
	timeout     time.Duration
	runner      CommandRunner
}

// texBasename is the fixed name for intermediate files inside the isolated
// working directory.
const texBasename = "doc"

// checkToolchain verifies both executables resolve before any compilation is
// attempted, so a misconfigured host fails once instead of per fragment.
func (c *compiler) checkToolchain() error {
	for _, tool := range []string{c.latexPath, c.dvisvgmPath} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s", ErrToolchainMissing, tool)
		}
	}
	return nil
}

// compile runs latex then dvisvgm on the composite source and returns the
// SVG bytes.
func (c *compiler) compile(ctx context.Context, source string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	workdir, cleanup, err := c.makeWorkdir()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	texPath := filepath.Join(workdir, texBasename+".tex")
	if err := os.WriteFile(texPath, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("writing tex source: %w", err)
	}

	// Stage 1: typeset to DVI. nonstopmode + halt-on-error keeps latex from
	// waiting on interactive input when the math is broken.
	out, err := c.runner.Run(ctx, workdir, c.latexPath,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-output-directory", workdir,
		texPath,
	)
	dviPath := filepath.Join(workdir, texBasename+".dvi")
	if stageErr := classifyStage(ctx, StageTypeset, out, err, dviPath); stageErr != nil {
		return nil, stageErr
	}

	// Stage 2: convert DVI to SVG. currentcolor makes stroke and fill
	// inherit from the embedding context instead of hardcoding black;
	// no-fonts replaces font glyphs with paths so no font files are needed
	// at display time.
	svgPath := filepath.Join(workdir, texBasename+".svg")
	out, err = c.runner.Run(ctx, workdir, c.dvisvgmPath,
		"--no-fonts",
		"--currentcolor",
		dviPath,
		"-o", svgPath,
	)
	if stageErr := classifyStage(ctx, StageConvert, out, err, svgPath); stageErr != nil {
		return nil, stageErr
	}

	svg, err := os.ReadFile(svgPath) // #nosec G304 -- path is inside our own workdir
	if err != nil {
		return nil, fmt.Errorf("reading compiled SVG: %w", err)
	}
	return svg, nil
}

// makeWorkdir creates the isolated working directory. With a configured temp
// dir the directory is created under it and retained for inspection;
// otherwise it lives in the system temp area and cleanup removes it.
func (c *compiler) makeWorkdir() (dir string, cleanup func(), err error) {
	parent := ""
	if c.tempDir != "" {
		if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("creating temp dir: %w", err)
		}
		parent = c.tempDir
	}

	dir, err = os.MkdirTemp(parent, "latexmath-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating working directory: %w", err)
	}

	if c.tempDir != "" {
		return dir, func() {}, nil
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// classifyStage turns a stage's outcome into nil or a *StageError. A stage
// fails on non-zero exit, on timeout, or when it exited cleanly but the
// expected output file is absent.
func classifyStage(ctx context.Context, stage, output string, runErr error, wantFile string) error {
	if runErr != nil {
		// Cancellation is the caller's doing, not a compile failure.
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		se := &StageError{Stage: stage, Output: output, ExitCode: -1}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			se.Timeout = true
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			se.ExitCode = exitErr.ExitCode()
		}
		return se
	}
	if _, err := os.Stat(wantFile); err != nil {
		return &StageError{
			Stage:    stage,
			ExitCode: 0,
			Output:   fmt.Sprintf("expected output %s missing\n%s", filepath.Base(wantFile), output),
		}
	}
	return nil
}
