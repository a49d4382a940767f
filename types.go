package latexmath

import "time"

// Kind identifies the flavor of an extracted fragment. The kind decides the
// math-mode wrapping fed to the compiler and participates in cache
// fingerprints, so identical text in different kinds never shares an artifact.
type Kind string

// Fragment kinds.
const (
	KindInline   Kind = "inline"   // $...$
	KindBlock    Kind = "block"    // $$...$$
	KindDisplay  Kind = "display"  // fenced block with info string "math"
	KindPreamble Kind = "preamble" // fenced block with info string "math_preamble"
)

// Rendering mode constants.
const (
	ModeLinked   = "linked"   // write SVG under the asset dir, reference by path
	ModeEmbedded = "embedded" // splice SVG markup directly into the document
)

// Fragment is one delimited math or preamble span extracted from a document.
// Start and End are byte offsets of the full delimited span (including the
// delimiters) in the original source, used for substitution. Body holds the
// content between the delimiters. Fragments are immutable once extracted.
type Fragment struct {
	Kind  Kind
	Body  string
	Start int
	End   int
}

// Resolved pairs a math fragment with the preamble text in effect at its
// position in the document (empty if no math_preamble block precedes it).
type Resolved struct {
	Fragment
	Preamble string
}

// Document is one markdown source to render.
type Document struct {
	Name     string // used in warnings and diagnostics only
	Markdown string
}

// Warning describes a non-fatal problem found while rendering a document,
// such as an unterminated delimiter or a fragment replaced by a placeholder.
type Warning struct {
	Doc     string
	Offset  int // byte offset in the original markdown
	Message string
}

// Stats counts what happened during one Render call.
type Stats struct {
	Fragments int // math fragments found
	CacheHits int
	Compiled  int
	Failed    int
}

// Result is the outcome of rendering one document.
type Result struct {
	Markdown string
	Warnings []Warning
	Stats    Stats
}

// Rendered is the substitution produced for one compiled fragment: either a
// path under the asset directory plus the markup referencing it, or inline
// SVG markup.
type Rendered struct {
	Mode      string
	AssetPath string // set in linked mode
	Markup    string // the text spliced into the document
}

// Option configures a Service.
type Option func(*Service)

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	latexPath   string
	dvisvgmPath string
	cacheDir    string
	assetDir    string
	siteURL     string
	tempDir     string // non-empty: working dirs created here and retained
	mode        string
	timeout     time.Duration
	workers     int
	strict      bool
}

// Defaults matching the original toolchain expectations.
const (
	defaultLatexPath   = "latex"
	defaultDvisvgmPath = "dvisvgm"
	defaultCacheDir    = ".latexmath-cache"
	defaultAssetDir    = "assets/latex"
	defaultTimeout     = 60 * time.Second
)

// WithTimeout sets the per-fragment compilation timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("latexmath: WithTimeout duration must be positive")
	}
	return func(s *Service) {
		s.cfg.timeout = d
	}
}

// WithWorkers caps concurrent fragment compilations. Zero or negative means
// auto (GOMAXPROCS-based, see ResolveWorkers).
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.cfg.workers = n
	}
}

// WithStrict makes the first compile failure fail the whole document instead
// of substituting a placeholder and continuing.
func WithStrict() Option {
	return func(s *Service) {
		s.cfg.strict = true
	}
}

// WithEmbedded switches to embedded mode: SVG markup is spliced inline
// instead of written under the asset directory.
func WithEmbedded() Option {
	return func(s *Service) {
		s.cfg.mode = ModeEmbedded
	}
}

// WithLatexPath sets the LaTeX executable invoked for typesetting.
func WithLatexPath(path string) Option {
	return func(s *Service) {
		s.cfg.latexPath = path
	}
}

// WithDvisvgmPath sets the dvisvgm executable invoked for DVI→SVG conversion.
func WithDvisvgmPath(path string) Option {
	return func(s *Service) {
		s.cfg.dvisvgmPath = path
	}
}

// WithCacheDir sets the durable artifact store location.
func WithCacheDir(dir string) Option {
	return func(s *Service) {
		s.cfg.cacheDir = dir
	}
}

// WithAssetDir sets the output directory for linked-mode SVG files.
func WithAssetDir(dir string) Option {
	return func(s *Service) {
		s.cfg.assetDir = dir
	}
}

// WithSiteURL sets the base URL prepended to linked-mode reference paths.
func WithSiteURL(url string) Option {
	return func(s *Service) {
		s.cfg.siteURL = url
	}
}

// WithTempDir creates compilation working directories under dir and retains
// them after compilation for inspection, instead of using the system temp
// area and deleting them.
func WithTempDir(dir string) Option {
	return func(s *Service) {
		s.cfg.tempDir = dir
	}
}
