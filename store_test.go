package latexmath

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// TestStore - Lookup and insert
// ---------------------------------------------------------------------------

func TestStore_LookupMissing(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	art, err := s.Lookup(fingerprint("absent", KindInline))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if art != nil {
		t.Errorf("got artifact for missing fingerprint: %+v", art)
	}
}

func TestStore_InsertThenLookup(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("source", KindInline)
	svg := []byte("<svg>test</svg>")

	inserted, err := s.Insert(fp, svg)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !bytes.Equal(inserted.SVG, svg) {
		t.Errorf("inserted SVG = %q", inserted.SVG)
	}

	got, err := s.Lookup(fp)
	if err != nil {
		t.Fatalf("Lookup after insert: %v", err)
	}
	if got == nil || !bytes.Equal(got.SVG, svg) {
		t.Errorf("Lookup = %+v, want SVG %q", got, svg)
	}
	if got.Fingerprint != fp {
		t.Errorf("fingerprint = %s, want %s", got.Fingerprint.Hex(), fp.Hex())
	}
}

// Re-inserting an existing fingerprint is a no-op, not an overwrite.
func TestStore_InsertIdempotent(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("source", KindInline)

	if _, err := s.Insert(fp, []byte("<svg>first</svg>")); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if _, err := s.Insert(fp, []byte("<svg>second</svg>")); err != nil {
		t.Fatalf("second Insert: %v", err)
	}

	got, err := s.Lookup(fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(got.SVG) != "<svg>first</svg>" {
		t.Errorf("record mutated by re-insert: %q", got.SVG)
	}
}

// The store is durable: a second Store over the same directory sees records
// inserted by the first.
func TestStore_PersistsAcrossOpens(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fp := fingerprint("durable", KindBlock)

	first, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if _, err := first.Insert(fp, []byte("<svg/>")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	second, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := second.Lookup(fp)
	if err != nil || got == nil {
		t.Fatalf("Lookup after reopen = %v, %v", got, err)
	}
}

// ---------------------------------------------------------------------------
// TestStore - Integrity
// ---------------------------------------------------------------------------

func TestStore_CorruptArtifactIsForcedMiss(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("source", KindInline)
	if _, err := s.Insert(fp, []byte("<svg>good</svg>")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Corrupt the stored bytes behind the store's back.
	if err := os.WriteFile(s.svgPath(fp), []byte("<svg>tampered</svg>"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, err := s.Lookup(fp); !errors.Is(err, ErrCorruptArtifact) {
		t.Fatalf("Lookup error = %v, want ErrCorruptArtifact", err)
	}

	// GetOrCompile must recompile rather than serve the tampered bytes.
	var calls atomic.Int64
	art, hit, err := s.GetOrCompile(context.Background(), fp, func() ([]byte, error) {
		calls.Add(1)
		return []byte("<svg>recompiled</svg>"), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if hit {
		t.Error("corrupt artifact reported as hit")
	}
	if calls.Load() != 1 {
		t.Errorf("compile calls = %d, want 1", calls.Load())
	}
	if string(art.SVG) != "<svg>recompiled</svg>" {
		t.Errorf("artifact = %q", art.SVG)
	}
}

func TestStore_MissingSumIsForcedMiss(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("source", KindInline)
	if _, err := s.Insert(fp, []byte("<svg/>")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := os.Remove(s.sumPath(fp)); err != nil {
		t.Fatalf("remove sum: %v", err)
	}

	if _, err := s.Lookup(fp); !errors.Is(err, ErrCorruptArtifact) {
		t.Fatalf("Lookup error = %v, want ErrCorruptArtifact", err)
	}
}

// ---------------------------------------------------------------------------
// TestStore - Single-flight compilation
// ---------------------------------------------------------------------------

func TestStore_GetOrCompile_Hit(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("source", KindInline)
	if _, err := s.Insert(fp, []byte("<svg/>")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	art, hit, err := s.GetOrCompile(context.Background(), fp, func() ([]byte, error) {
		t.Error("compile invoked on a warm cache")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if !hit || art == nil {
		t.Errorf("hit = %v, art = %v", hit, art)
	}
}

func TestStore_GetOrCompile_CompileError(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("bad", KindInline)
	wantErr := errors.New("boom")

	_, _, err := s.GetOrCompile(context.Background(), fp, func() ([]byte, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	// A failed compile leaves nothing behind; the next call tries again.
	var calls atomic.Int64
	_, _, err = s.GetOrCompile(context.Background(), fp, func() ([]byte, error) {
		calls.Add(1)
		return []byte("<svg/>"), nil
	})
	if err != nil || calls.Load() != 1 {
		t.Fatalf("retry: err = %v, calls = %d", err, calls.Load())
	}
}

// A compile aborted by some other caller's cancellation must not fail callers
// whose own contexts are still live: they retry and get a fresh compile.
func TestStore_GetOrCompile_CanceledLeaderRetries(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("aborted", KindBlock)

	var calls atomic.Int64
	art, hit, err := s.GetOrCompile(context.Background(), fp, func() ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, context.Canceled
		}
		return []byte("<svg>retried</svg>"), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if hit {
		t.Error("retried compile reported as hit")
	}
	if calls.Load() != 2 {
		t.Errorf("compile invocations = %d, want 2", calls.Load())
	}
	if string(art.SVG) != "<svg>retried</svg>" {
		t.Errorf("artifact = %q", art.SVG)
	}
}

// A caller whose own context is canceled gets the cancellation back directly.
func TestStore_GetOrCompile_CallerCanceled(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("gone", KindInline)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	_, _, err := s.GetOrCompile(ctx, fp, func() ([]byte, error) {
		calls.Add(1)
		return nil, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Errorf("compile invocations = %d, want 1", calls.Load())
	}
}

// N concurrent misses on one fingerprint must trigger exactly one compile,
// with every caller observing byte-identical output.
func TestStore_GetOrCompile_AtMostOne(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	fp := fingerprint("contended", KindBlock)

	var calls atomic.Int64
	release := make(chan struct{})
	const n = 16

	results := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art, _, err := s.GetOrCompile(context.Background(), fp, func() ([]byte, error) {
				calls.Add(1)
				<-release // hold all callers in flight
				return []byte("<svg>shared</svg>"), nil
			})
			if err != nil {
				t.Errorf("GetOrCompile: %v", err)
				return
			}
			results[i] = art.SVG
		}()
	}

	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("compile invocations = %d, want 1", got)
	}
	for i, svg := range results {
		if !bytes.Equal(svg, []byte("<svg>shared</svg>")) {
			t.Errorf("caller %d saw %q", i, svg)
		}
	}
}
