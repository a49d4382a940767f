package latexmath

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// documentTemplate is the fixed wrapper around (preamble, body). The preview
// package with tightpage crops the output to the math's bounding box, so
// dvisvgm produces an SVG sized to the content rather than a full page.
const documentTemplate = `\documentclass{article}
\usepackage[active,tightpage]{preview}
\usepackage{amsmath,amssymb}
%s
\begin{document}
\begin{preview}
%s
\end{preview}
\end{document}
`

// compositeSource builds the full compilable LaTeX document for one resolved
// fragment: the fixed template wrapping the effective preamble and the
// kind-specific math-mode delimiters around the body. Never mutated after
// construction; this exact byte sequence is what gets fingerprinted and what
// the compiler consumes.
func compositeSource(r Resolved) string {
	var body string
	switch r.Kind {
	case KindInline:
		body = "$" + r.Body + "$"
	case KindBlock:
		body = `\[` + "\n" + r.Body + "\n" + `\]`
	default:
		// Fenced display blocks are compiled verbatim so full environments
		// (tikzpicture, align, ...) work unwrapped.
		body = r.Body
	}
	return fmt.Sprintf(documentTemplate, r.Preamble, body)
}

// fingerprintDomain separates fragment fingerprints from any other BLAKE3 use
// of the same bytes. Changing it invalidates every cached artifact.
const fingerprintDomain = "latexmath.fragment.v1"

// Fingerprint is a 32-byte BLAKE3 digest identifying one compiled artifact.
// Two fragments with equal fingerprints are interchangeable by construction:
// the digest covers every byte of the composite source plus the fragment
// kind, so preamble, body, and wrapping all participate.
type Fingerprint [32]byte

// Hex returns the lowercase hex form used for cache keys and asset names.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// fingerprint digests a composite source and its kind discriminator.
// Deterministic across processes and runs.
func fingerprint(source string, kind Kind) Fingerprint {
	h := blake3.New()
	_, _ = h.Write([]byte(fingerprintDomain))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// sumBytes is the integrity digest stored next to each artifact. Plain
// (unkeyed) BLAKE3 over the artifact bytes.
func sumBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
