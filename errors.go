package latexmath

import "errors"

// Sentinel errors for library operations.
var (
	ErrEmptyMarkdown    = errors.New("markdown content cannot be empty")
	ErrToolchainMissing = errors.New("latex toolchain not found")
	ErrCompile          = errors.New("math compilation failed")
	ErrDocumentFailed   = errors.New("document has failed fragments")

	// Artifact store errors.
	ErrCacheDirCreate  = errors.New("failed to create cache directory")
	ErrCorruptArtifact = errors.New("cached artifact failed integrity check")

	// Materializer errors.
	ErrAssetWrite = errors.New("failed to write asset file")
	ErrNotSVG     = errors.New("compiled output is not SVG markup")
)
