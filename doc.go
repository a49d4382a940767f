// Package latexmath renders embedded LaTeX math in markdown documents to
// standalone SVG artifacts using an external latex + dvisvgm toolchain.
//
// # Quick Start
//
// Create a service and render a document:
//
//	svc, err := latexmath.New(
//	    latexmath.WithCacheDir(".latex-cache"),
//	    latexmath.WithAssetDir("site/assets/latex"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := svc.Render(ctx, latexmath.Document{
//	    Name:     "page.md",
//	    Markdown: "Area: $A=\\pi r^2$.",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("out.md", []byte(result.Markdown), 0644)
//
// The result contains the rewritten markdown with each math span replaced by
// an <img> reference (linked mode) or inline SVG markup (embedded mode), plus
// any warnings collected along the way.
//
// # Rendering Pipeline
//
// Rendering a document follows these stages:
//
//  1. Fragment extraction ($...$, $$...$$, fenced math / math_preamble blocks)
//  2. Preamble resolution (last preceding math_preamble block wins)
//  3. Fingerprinting (BLAKE3 over the full compilable source)
//  4. Cache lookup in a durable content-addressed artifact store
//  5. On miss: latex → dvisvgm compilation in an isolated working directory
//  6. Materialization (asset file + reference, or inline markup)
//  7. In-place substitution preserving all surrounding text
//
// Compilation is deduplicated: concurrent misses on the same fingerprint
// trigger exactly one toolchain invocation, and the artifact store persists
// across runs so unchanged math never recompiles.
//
// # Configuration
//
// Use functional options to customize the service:
//
//	svc, err := latexmath.New(
//	    latexmath.WithTimeout(time.Minute),
//	    latexmath.WithEmbedded(),
//	    latexmath.WithLatexPath("/usr/local/texlive/bin/latex"),
//	)
//
// # Toolchain Requirements
//
// Rendering requires a LaTeX engine producing DVI output (latex) and dvisvgm
// on the PATH, or explicit paths via WithLatexPath / WithDvisvgmPath. Use
// CheckToolchain (or the CLI's doctor command) to verify a host before
// processing documents. SVGs are generated with dvisvgm's currentcolor mode
// so they inherit the foreground color of the surrounding page.
package latexmath
