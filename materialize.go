package latexmath

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MERCorg/mkdocs-latex-math/internal/fileutil"
)

// materializer turns a compiled artifact into the replacement text for one
// fragment: an <img> reference to a file under the asset directory (linked
// mode) or the SVG markup itself (embedded mode).
type materializer struct {
	mode     string
	assetDir string
	urlBase  string // prefix for linked src attributes, may be empty
}

// assetName returns the deterministic file name for a fingerprint. Identical
// content always lands on the identical path, which is what makes linked
// writes idempotent.
func assetName(fp Fingerprint) string {
	return "latex-" + fp.Hex() + ".svg"
}

// materialize produces the substitution for one fragment. Inline fragments
// splice flush with the surrounding text; block and display fragments get
// their own lines.
func (m *materializer) materialize(art *Artifact, r Resolved) (Rendered, error) {
	var rendered Rendered
	var err error

	switch m.mode {
	case ModeEmbedded:
		rendered, err = m.embed(art)
	default:
		rendered, err = m.link(art, r)
	}
	if err != nil {
		return Rendered{}, err
	}

	if r.Kind != KindInline {
		rendered.Markup = "\n" + rendered.Markup + "\n"
	}
	return rendered, nil
}

// link writes the SVG under the asset directory (skipping the write when the
// content-addressed file already exists) and returns an img reference.
func (m *materializer) link(art *Artifact, r Resolved) (Rendered, error) {
	if err := os.MkdirAll(m.assetDir, 0o755); err != nil {
		return Rendered{}, fmt.Errorf("%w: %v", ErrAssetWrite, err)
	}

	name := assetName(art.Fingerprint)
	path := filepath.Join(m.assetDir, name)
	if !fileutil.FileExists(path) {
		if err := fileutil.AtomicWrite(path, art.SVG, 0o644); err != nil {
			return Rendered{}, fmt.Errorf("%w: %v", ErrAssetWrite, err)
		}
	}

	src := name
	if m.urlBase != "" {
		src = strings.TrimRight(m.urlBase, "/") + "/" + name
	}
	markup := fmt.Sprintf(`<img src="%s" alt="%s">`, src, sanitizeAlt(r.Body))
	return Rendered{Mode: ModeLinked, AssetPath: path, Markup: markup}, nil
}

// embed returns the SVG markup itself, stripped of the XML prolog and
// doctype that are invalid when spliced into HTML.
func (m *materializer) embed(art *Artifact) (Rendered, error) {
	svg := string(art.SVG)
	at := strings.Index(svg, "<svg")
	if at < 0 {
		return Rendered{}, fmt.Errorf("%w: %s", ErrNotSVG, art.Fingerprint.Hex())
	}
	return Rendered{Mode: ModeEmbedded, Markup: svg[at:]}, nil
}

// altWhitespace collapses runs of whitespace in alt text.
var altWhitespace = regexp.MustCompile(`\s+`)

// maxAltLen bounds the alt attribute so a page-sized tikz source does not
// bloat the output.
const maxAltLen = 120

// sanitizeAlt makes fragment text safe for a double-quoted alt attribute.
func sanitizeAlt(text string) string {
	alt := strings.ReplaceAll(text, `"`, "'")
	alt = strings.ReplaceAll(alt, "<", "(")
	alt = strings.ReplaceAll(alt, ">", ")")
	alt = altWhitespace.ReplaceAllString(alt, " ")
	runes := []rune(alt)
	if len(runes) > maxAltLen {
		return string(runes[:maxAltLen]) + "…"
	}
	return alt
}
