package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	latexmath "github.com/MERCorg/mkdocs-latex-math"
	"github.com/MERCorg/mkdocs-latex-math/internal/config"
	"github.com/MERCorg/mkdocs-latex-math/internal/pipeline"
)

// Sentinel errors for CLI operations.
var (
	ErrInvalidArgs = errors.New("usage: latexmath [flags] <input> [output]")
	ErrReadInput   = errors.New("failed to read input")
	ErrWriteOutput = errors.New("failed to write output")
)

// run executes a render invocation: load config, merge flags, build the
// service, and process the input file or directory.
func run(ctx context.Context, flags *cliFlags, args []string, env *Environment) error {
	if len(args) < 1 {
		return ErrInvalidArgs
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	mergeFlags(cfg, flags)

	input := args[0]
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadInput, err)
	}

	// The asset directory lives under the output tree so linked references
	// resolve relative to the generated pages.
	siteDir := cfg.Output.SiteDir
	var outDir string
	if info.IsDir() {
		outDir = siteDir
		if len(args) > 1 {
			outDir = args[1]
		}
		if outDir == "" {
			return fmt.Errorf("%w (directory input needs an output directory)", ErrInvalidArgs)
		}
		siteDir = outDir
	} else if siteDir == "" {
		siteDir = "."
	}

	svc, err := buildService(cfg, siteDir)
	if err != nil {
		return err
	}
	if err := svc.CheckToolchain(); err != nil {
		return err
	}

	var htmlr *pipeline.HTMLRenderer
	if cfg.Output.HTML {
		htmlr = pipeline.NewHTMLRenderer()
	}

	if !info.IsDir() {
		outPath := ""
		if len(args) > 1 {
			outPath = args[1]
		}
		return renderFile(ctx, svc, htmlr, input, outPath, flags.verbose, env)
	}

	return renderDir(ctx, svc, htmlr, input, outDir, cfg.Render.Workers, flags.verbose, env)
}

// loadConfig loads the named config or the defaults when none is given.
func loadConfig(flags *cliFlags) (*config.Config, error) {
	if flags.configName == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(flags.configName)
}

// mergeFlags overlays explicitly set flags on top of the loaded config.
// Flags win over config file values.
func mergeFlags(cfg *config.Config, flags *cliFlags) {
	overrideString(&cfg.Cache.Dir, flags.cacheDir)
	overrideString(&cfg.Output.SiteDir, flags.siteDir)
	overrideString(&cfg.Output.AssetSubdir, flags.assetSubdir)
	overrideString(&cfg.Output.SiteURL, flags.siteURL)
	overrideString(&cfg.Toolchain.LatexPath, flags.latexPath)
	overrideString(&cfg.Toolchain.DvisvgmPath, flags.dvisvgmPath)
	overrideString(&cfg.Toolchain.TempDir, flags.tempDir)
	if flags.embed {
		cfg.Render.Mode = config.ModeEmbedded
	}
	if flags.strict {
		cfg.Render.Strict = true
	}
	if flags.renderHTML {
		cfg.Output.HTML = true
	}
	if flags.workers > 0 {
		cfg.Render.Workers = flags.workers
	}
	if flags.timeoutSec > 0 {
		cfg.Render.TimeoutSeconds = flags.timeoutSec
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// buildService translates merged config into service options.
func buildService(cfg *config.Config, siteDir string) (*latexmath.Service, error) {
	opts := []latexmath.Option{
		latexmath.WithCacheDir(cfg.Cache.Dir),
		latexmath.WithLatexPath(cfg.Toolchain.LatexPath),
		latexmath.WithDvisvgmPath(cfg.Toolchain.DvisvgmPath),
		latexmath.WithAssetDir(filepath.Join(siteDir, cfg.Output.AssetSubdir)),
		latexmath.WithSiteURL(referenceBase(cfg.Output.SiteURL, cfg.Output.AssetSubdir)),
		latexmath.WithWorkers(cfg.Render.Workers),
	}
	if cfg.Render.Mode == config.ModeEmbedded {
		opts = append(opts, latexmath.WithEmbedded())
	}
	if cfg.Render.Strict {
		opts = append(opts, latexmath.WithStrict())
	}
	if cfg.Toolchain.TempDir != "" {
		opts = append(opts, latexmath.WithTempDir(cfg.Toolchain.TempDir))
	}
	if cfg.Render.TimeoutSeconds > 0 {
		opts = append(opts, latexmath.WithTimeout(time.Duration(cfg.Render.TimeoutSeconds)*time.Second))
	}
	return latexmath.New(opts...)
}

// referenceBase joins the site URL and asset subdir the way the generated
// img src attributes expect. Without a site URL, references stay relative to
// the output tree.
func referenceBase(siteURL, assetSubdir string) string {
	if siteURL == "" {
		return assetSubdir
	}
	return strings.TrimRight(siteURL, "/") + "/" + assetSubdir
}

// renderFile processes one markdown file. Empty outPath writes to stdout.
func renderFile(ctx context.Context, svc *latexmath.Service, htmlr *pipeline.HTMLRenderer, inPath, outPath string, verbose bool, env *Environment) error {
	data, err := os.ReadFile(inPath) // #nosec G304 -- input path is user-provided
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadInput, err)
	}

	result, err := svc.Render(ctx, latexmath.Document{Name: inPath, Markdown: string(data)})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(env.Stderr, "warning: %s (offset %d): %s\n", w.Doc, w.Offset, w.Message)
	}
	if verbose {
		fmt.Fprintf(env.Stderr, "%s: %d fragments (%d cached, %d compiled, %d failed)\n",
			inPath, result.Stats.Fragments, result.Stats.CacheHits, result.Stats.Compiled, result.Stats.Failed)
	}

	output := result.Markdown
	if htmlr != nil {
		output, err = htmlr.ToHTML(ctx, filepath.Base(inPath), result.Markdown)
		if err != nil {
			return err
		}
	}

	if outPath == "" {
		fmt.Fprint(env.Stdout, output)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	if err := os.WriteFile(outPath, []byte(output), 0o644); err != nil { // #nosec G306 -- generated docs are world-readable
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// renderDir processes every .md file under inDir into the mirrored path
// under outDir, concurrently. The service (and its cache and in-flight
// compilation dedup) is shared across all files.
func renderDir(ctx context.Context, svc *latexmath.Service, htmlr *pipeline.HTMLRenderer, inDir, outDir string, workers int, verbose bool, env *Environment) error {
	var files []string
	err := filepath.WalkDir(inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isMarkdown(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadInput, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(latexmath.ResolveWorkers(workers))
	for _, in := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(inDir, in)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReadInput, err)
			}
			out := filepath.Join(outDir, rel)
			if htmlr != nil {
				out = strings.TrimSuffix(out, filepath.Ext(out)) + ".html"
			}
			return renderFile(gctx, svc, htmlr, in, out, verbose, env)
		})
	}
	return g.Wait()
}

// isMarkdown returns true for files the renderer should process.
func isMarkdown(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".md" || ext == ".markdown"
}
