package latexmath

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Service renders math markup in documents to SVG. Safe for concurrent use:
// one Service (and its artifact store) can be shared by goroutines rendering
// different documents, and in-flight compilations are deduplicated across
// all of them.
type Service struct {
	cfg   serviceConfig
	store *Store
	comp  *compiler
	mat   *materializer

	checkOnce sync.Once
	checkErr  error
}

// New creates a Service with default configuration.
// Use options to customize behavior (e.g., WithTimeout, WithEmbedded).
func New(opts ...Option) (*Service, error) {
	s := &Service{
		cfg: serviceConfig{
			latexPath:   defaultLatexPath,
			dvisvgmPath: defaultDvisvgmPath,
			cacheDir:    defaultCacheDir,
			assetDir:    defaultAssetDir,
			mode:        ModeLinked,
			timeout:     defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	store, err := OpenStore(s.cfg.cacheDir)
	if err != nil {
		return nil, err
	}
	s.store = store

	// Compiler and materializer are built from the final config so options
	// can be applied in any order.
	s.comp = &compiler{
		latexPath:   s.cfg.latexPath,
		dvisvgmPath: s.cfg.dvisvgmPath,
		tempDir:     s.cfg.tempDir,
		timeout:     s.cfg.timeout,
		runner:      ExecRunner{},
	}
	s.mat = &materializer{
		mode:     s.cfg.mode,
		assetDir: s.cfg.assetDir,
		urlBase:  s.cfg.siteURL,
	}

	return s, nil
}

// Store exposes the underlying artifact store (for inspection and tests).
func (s *Service) Store() *Store { return s.store }

// CheckToolchain verifies the configured latex and dvisvgm executables
// resolve. Render calls this automatically before the first compilation;
// call it directly to fail fast at startup.
func (s *Service) CheckToolchain() error {
	s.checkOnce.Do(func() {
		s.checkErr = s.comp.checkToolchain()
	})
	return s.checkErr
}

// substitution is one span replacement to apply to the source text.
type substitution struct {
	start, end int
	text       string
}

// Render processes one document: extracts math and preamble fragments,
// compiles every math fragment (through the cache), and returns the markdown
// with each fragment's span replaced by its rendered reference and each
// preamble block removed. Fragment failures follow the configured policy:
// lenient (default) substitutes a visible placeholder and records a warning,
// strict fails the document on the first error.
func (s *Service) Render(ctx context.Context, doc Document) (*Result, error) {
	if doc.Markdown == "" {
		return nil, ErrEmptyMarkdown
	}

	frags, extractWarns := extract(doc.Markdown)
	resolved := resolve(frags)

	result := &Result{}
	for _, w := range extractWarns {
		w.Doc = doc.Name
		result.Warnings = append(result.Warnings, w)
	}
	result.Stats.Fragments = len(resolved)

	subs := make([]substitution, 0, len(frags))
	// Preamble blocks are consumed by resolution; their spans vanish from
	// the output.
	for _, f := range frags {
		if f.Kind == KindPreamble {
			subs = append(subs, substitution{f.Start, f.End, ""})
		}
	}

	if len(resolved) > 0 {
		if err := s.CheckToolchain(); err != nil {
			return nil, err
		}

		rendered := make([]substitution, len(resolved))
		var warnMu sync.Mutex
		var hits, compiled, failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ResolveWorkers(s.cfg.workers))
		for i, r := range resolved {
			g.Go(func() error {
				markup, hit, err := s.renderFragment(gctx, r)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					if s.cfg.strict {
						return fmt.Errorf("%w: %s: fragment at offset %d: %w", ErrDocumentFailed, doc.Name, r.Start, err)
					}
					failed.Add(1)
					warnMu.Lock()
					result.Warnings = append(result.Warnings, Warning{
						Doc:     doc.Name,
						Offset:  r.Start,
						Message: err.Error(),
					})
					warnMu.Unlock()
					markup = errorPlaceholder(doc.Markdown[r.Start:r.End], err.Error())
				} else if hit {
					hits.Add(1)
				} else {
					compiled.Add(1)
				}
				rendered[i] = substitution{r.Start, r.End, markup}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		subs = append(subs, rendered...)
		result.Stats.CacheHits = int(hits.Load())
		result.Stats.Compiled = int(compiled.Load())
		result.Stats.Failed = int(failed.Load())
	}

	result.Markdown = applySubstitutions(doc.Markdown, subs)
	return result, nil
}

// renderFragment takes one resolved fragment through fingerprinting, the
// cache, and materialization.
func (s *Service) renderFragment(ctx context.Context, r Resolved) (markup string, hit bool, err error) {
	src := compositeSource(r)
	fp := fingerprint(src, r.Kind)

	art, hit, err := s.store.GetOrCompile(ctx, fp, func() ([]byte, error) {
		return s.comp.compile(ctx, src)
	})
	if err != nil {
		return "", false, err
	}

	rendered, err := s.mat.materialize(art, r)
	if err != nil {
		return "", false, err
	}
	return rendered.Markup, hit, nil
}

// errorPlaceholder marks a failed fragment in the output while keeping the
// original markup visible, so a broken formula is findable on the page
// instead of silently disappearing. The title carries the compiler
// diagnostics, truncated the same way alt text is.
func errorPlaceholder(original, diagnostic string) string {
	return `<span class="latexmath-error" title="` + sanitizeAlt(diagnostic) + `">` +
		original + `</span>`
}

// applySubstitutions replaces each span with its text. Spans are
// non-overlapping offsets into the original source; applying them in
// descending start order keeps every remaining offset valid, so fragments
// land exactly where their delimiters were and the surrounding text is
// untouched.
func applySubstitutions(doc string, subs []substitution) string {
	sort.Slice(subs, func(i, j int) bool { return subs[i].start > subs[j].start })

	out := doc
	for _, sub := range subs {
		out = out[:sub.start] + sub.text + out[sub.end:]
	}
	return out
}
