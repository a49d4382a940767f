package main

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// cliFlags holds parsed command-line flags. Zero values mean "not set";
// merge semantics in run.go let explicit flags override config file values.
type cliFlags struct {
	configName  string
	cacheDir    string
	siteDir     string
	assetSubdir string
	siteURL     string
	latexPath   string
	dvisvgmPath string
	tempDir     string
	embed       bool
	strict      bool
	renderHTML  bool
	workers     int
	timeoutSec  int
	verbose     bool
	version     bool
	doctorJSON  bool
}

// newFlagSet builds the pflag set bound to f.
func newFlagSet(f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("latexmath", flag.ContinueOnError)

	fs.StringVarP(&f.configName, "config", "c", "", "config file path or name")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "artifact cache directory")
	fs.StringVar(&f.siteDir, "site-dir", "", "output tree root for linked assets")
	fs.StringVar(&f.assetSubdir, "asset-subdir", "", "asset subdirectory under the site dir")
	fs.StringVar(&f.siteURL, "site-url", "", "base URL for linked references")
	fs.StringVar(&f.latexPath, "latex-path", "", "LaTeX executable")
	fs.StringVar(&f.dvisvgmPath, "dvisvgm-path", "", "dvisvgm executable")
	fs.StringVar(&f.tempDir, "temp-dir", "", "retain compilation working dirs under this directory")
	fs.BoolVar(&f.embed, "embed", false, "inline SVG markup instead of writing asset files")
	fs.BoolVar(&f.strict, "strict", false, "fail a document on its first compile error")
	fs.BoolVar(&f.renderHTML, "html", false, "also render processed markdown to HTML")
	fs.IntVarP(&f.workers, "workers", "w", 0, "concurrent compilations (0 = auto)")
	fs.IntVar(&f.timeoutSec, "timeout", 0, "per-fragment compile timeout in seconds (0 = default)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "verbose progress on stderr")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.BoolVar(&f.doctorJSON, "json", false, "machine-readable doctor output")

	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}
	return fs
}

const usageText = `latexmath renders embedded LaTeX math in markdown to SVG.

Usage:
  latexmath [flags] <input.md> [output.md]
  latexmath [flags] <input-dir> <output-dir>
  latexmath doctor [--json]

Flags:
`

// parseFlags parses args (excluding the program name). Returns the flags and
// remaining positional arguments.
func parseFlags(args []string) (*cliFlags, []string, *flag.FlagSet, error) {
	f := &cliFlags{}
	fs := newFlagSet(f)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	return f, fs.Args(), fs, nil
}
