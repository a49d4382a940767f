package latexmath

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MERCorg/mkdocs-latex-math/internal/fileutil"
)

// Artifact is one compiled SVG keyed by fingerprint. Append-only: once
// inserted it is never mutated, and re-inserting the same fingerprint is a
// no-op since the content is identical by construction.
type Artifact struct {
	Fingerprint Fingerprint
	SVG         []byte
	CreatedAt   time.Time
}

// Store is a durable content-addressed map from fingerprint to compiled SVG.
// Each artifact lives as <hex>.svg with a <hex>.sum sidecar holding a BLAKE3
// digest of the SVG bytes; a lookup whose bytes no longer match the sidecar
// is treated as corruption, not as a hit. All writes go through a
// write-temp-then-rename protocol so a concurrent reader never observes a
// truncated artifact, and the directory can be shared by concurrent runs and
// across process restarts.
type Store struct {
	root  string
	group singleflight.Group
}

// OpenStore opens (creating if needed) an artifact store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheDirCreate, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's directory.
func (s *Store) Root() string { return s.root }

func (s *Store) svgPath(fp Fingerprint) string {
	return filepath.Join(s.root, fp.Hex()+".svg")
}

func (s *Store) sumPath(fp Fingerprint) string {
	return filepath.Join(s.root, fp.Hex()+".sum")
}

// Lookup returns the artifact for fp, or nil if absent. A stored artifact
// whose bytes fail the integrity check returns ErrCorruptArtifact; callers
// treat that as a forced miss and recompile rather than using the bytes.
func (s *Store) Lookup(fp Fingerprint) (*Artifact, error) {
	path := s.svgPath(fp)
	svg, err := os.ReadFile(path) // #nosec G304 -- path is derived from a hex digest under our root
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	sum, err := os.ReadFile(s.sumPath(fp)) // #nosec G304
	if err != nil || string(sum) != sumBytes(svg) {
		return nil, fmt.Errorf("%w: %s", ErrCorruptArtifact, fp.Hex())
	}

	created := time.Now()
	if info, err := os.Stat(path); err == nil {
		created = info.ModTime()
	}
	return &Artifact{Fingerprint: fp, SVG: svg, CreatedAt: created}, nil
}

// Insert durably stores svg under fp and returns the record. Idempotent: if
// a valid artifact already exists it is returned untouched. The sum sidecar
// is published before the SVG so a reader never sees an SVG without its
// digest; a crash between the two renames leaves only the sidecar, which the
// next lookup ignores.
func (s *Store) Insert(fp Fingerprint, svg []byte) (*Artifact, error) {
	if existing, err := s.Lookup(fp); err == nil && existing != nil {
		return existing, nil
	}

	if err := s.publish(s.sumPath(fp), []byte(sumBytes(svg))); err != nil {
		return nil, err
	}
	if err := s.publish(s.svgPath(fp), svg); err != nil {
		return nil, err
	}
	return &Artifact{Fingerprint: fp, SVG: svg, CreatedAt: time.Now()}, nil
}

// publish atomically writes data to path via a temp file in the same
// directory and an atomic rename.
func (s *Store) publish(path string, data []byte) error {
	return fileutil.AtomicWrite(path, data, 0o644)
}

// GetOrCompile returns the artifact for fp, invoking compile on a miss.
// Concurrent callers missing on the same fingerprint are deduplicated:
// exactly one runs compile, the rest block and share its result. A caller
// whose shared compilation was canceled by someone else's context retries
// with its own, so one aborted document does not fail waiters from others.
// The hit return reports whether this caller was served from the durable
// store without a compilation (shared in-flight results count as
// compilations for the leader only).
func (s *Store) GetOrCompile(ctx context.Context, fp Fingerprint, compile func() ([]byte, error)) (art *Artifact, hit bool, err error) {
	type outcome struct {
		art *Artifact
		hit bool
	}

	v, err, shared := s.group.Do(fp.Hex(), func() (any, error) {
		existing, lookupErr := s.Lookup(fp)
		if existing != nil {
			return outcome{existing, true}, nil
		}
		// lookupErr is either nil (clean miss) or corruption; both force a
		// recompile. Corruption is deliberately not surfaced as a failure.
		_ = lookupErr

		svg, compileErr := compile()
		if compileErr != nil {
			return nil, compileErr
		}
		inserted, insertErr := s.Insert(fp, svg)
		if insertErr != nil {
			return nil, insertErr
		}
		return outcome{inserted, false}, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return s.GetOrCompile(ctx, fp, compile)
		}
		return nil, false, err
	}

	o := v.(outcome)
	// Followers of a shared call did not compile anything themselves.
	return o.art, o.hit || shared, nil
}
