package latexmath

import (
	"regexp"
	"strings"
)

// Opening fence with captured delimiter and info string. Fences are only
// recognized at the start of a line.
var fenceOpen = regexp.MustCompile("^(```|~~~)\\s*([^\\n]*)$")

// extract scans markdown source and returns all math and preamble fragments
// in document order, non-overlapping, each with exact byte offsets into the
// source. Malformed or unterminated delimiters produce a warning instead of
// a fragment and never consume the remainder of the document.
func extract(doc string) ([]Fragment, []Warning) {
	s := &scanner{doc: doc, lines: splitLines(doc)}
	s.run()
	return s.frags, s.warns
}

// line is one source line with its byte offsets. end includes the trailing
// newline when present, so a fragment spanning whole lines swallows it and
// substitution leaves no stray blank line behind.
type line struct {
	text       string
	start, end int
}

func splitLines(doc string) []line {
	var lines []line
	start := 0
	for start < len(doc) {
		nl := strings.IndexByte(doc[start:], '\n')
		if nl < 0 {
			lines = append(lines, line{doc[start:], start, len(doc)})
			break
		}
		lines = append(lines, line{doc[start : start+nl], start, start + nl + 1})
		start += nl + 1
	}
	return lines
}

type scanner struct {
	doc   string
	lines []line
	li    int // current line index
	pos   int // current byte offset
	frags []Fragment
	warns []Warning
}

func (s *scanner) run() {
	for s.li < len(s.lines) {
		ln := s.lines[s.li]
		if s.pos < ln.start {
			s.pos = ln.start
		}
		if s.pos >= ln.end {
			s.li++
			continue
		}

		// Fences are recognized only when the scan is at a line start.
		if s.pos == ln.start && s.fence(ln) {
			continue
		}

		if !s.dollar(ln) {
			// No more delimiters on this line.
			s.li++
			s.pos = ln.end
		}
	}
}

// fence handles a fenced code block opening at line ln. Returns true if the
// line was consumed. Blocks with info string "math" or "math_preamble" become
// fragments; any other fenced block is opaque and math inside it is ignored.
func (s *scanner) fence(ln line) bool {
	m := fenceOpen.FindStringSubmatch(strings.TrimRight(ln.text, "\r"))
	if m == nil {
		return false
	}
	delim, info := m[1], strings.TrimSpace(m[2])
	close := s.findClosingFence(s.li+1, delim)

	switch info {
	case "math", "math_preamble":
		if close < 0 {
			s.warn(ln.start, "unterminated "+info+" fence")
			s.li++
			s.pos = ln.end
			return true
		}
		kind := KindDisplay
		if info == "math_preamble" {
			kind = KindPreamble
		}
		s.frags = append(s.frags, Fragment{
			Kind:  kind,
			Body:  joinBody(s.lines[s.li+1 : close]),
			Start: ln.start,
			End:   s.lines[close].end,
		})
	default:
		if close < 0 {
			// Unterminated generic fence runs to EOF, matching CommonMark.
			s.li = len(s.lines)
			s.pos = len(s.doc)
			return true
		}
	}

	s.li = close + 1
	s.pos = s.lines[close].end
	return true
}

// findClosingFence returns the index of the line closing a fence opened with
// delim, or -1 if the document ends first.
func (s *scanner) findClosingFence(from int, delim string) int {
	for j := from; j < len(s.lines); j++ {
		if strings.TrimSpace(strings.TrimRight(s.lines[j].text, "\r")) == delim {
			return j
		}
	}
	return -1
}

// dollar extracts the next $...$ or $$...$$ span on the current line.
// Inline math must close on the same line; block math may span lines and is
// matched greedily to the first closing $$. An unmatched opener yields a
// warning and scanning resumes immediately after it. Returns false when the
// rest of the line holds no delimiter.
func (s *scanner) dollar(ln line) bool {
	rel := strings.IndexByte(s.doc[s.pos:ln.end], '$')
	if rel < 0 {
		return false
	}
	at := s.pos + rel
	if isEscaped(s.doc, at) {
		s.pos = at + 1
		return true
	}

	if at+1 < len(s.doc) && s.doc[at+1] == '$' {
		close := indexUnescaped(s.doc, at+2, "$$")
		if close < 0 {
			s.warn(at, "unterminated $$ delimiter")
			s.pos = at + 2
			return true
		}
		s.frags = append(s.frags, Fragment{
			Kind:  KindBlock,
			Body:  s.doc[at+2 : close],
			Start: at,
			End:   close + 2,
		})
		s.jumpTo(close + 2)
		return true
	}

	close := indexUnescaped(s.doc[:ln.end], at+1, "$")
	if close < 0 {
		s.warn(at, "unterminated $ delimiter")
		s.pos = at + 1
		return true
	}
	if strings.TrimSpace(s.doc[at+1:close]) == "" {
		// Empty inline math is meaningless; likely currency or typo.
		// Treat the pair as literal text.
		s.pos = close + 1
		return true
	}
	s.frags = append(s.frags, Fragment{
		Kind:  KindInline,
		Body:  s.doc[at+1 : close],
		Start: at,
		End:   close + 1,
	})
	s.pos = close + 1
	return true
}

// jumpTo moves the scan position to an absolute offset, advancing the line
// index past any lines a multi-line fragment consumed.
func (s *scanner) jumpTo(pos int) {
	s.pos = pos
	for s.li < len(s.lines) && s.lines[s.li].end <= pos {
		s.li++
	}
}

func (s *scanner) warn(offset int, msg string) {
	s.warns = append(s.warns, Warning{Offset: offset, Message: msg})
}

// joinBody reassembles fence body lines, trimming the trailing newline.
func joinBody(body []line) string {
	var sb strings.Builder
	for _, ln := range body {
		sb.WriteString(strings.TrimRight(ln.text, "\r"))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// isEscaped reports whether the byte at offset is preceded by a backslash.
func isEscaped(doc string, at int) bool {
	return at > 0 && doc[at-1] == '\\'
}

// indexUnescaped returns the offset of the first unescaped occurrence of sub
// in doc at or after from, or -1.
func indexUnescaped(doc string, from int, sub string) int {
	for from <= len(doc)-len(sub) {
		rel := strings.Index(doc[from:], sub)
		if rel < 0 {
			return -1
		}
		at := from + rel
		if !isEscaped(doc, at) {
			return at
		}
		from = at + 1
	}
	return -1
}

// resolve assigns each math fragment the preamble in effect at its position:
// the closest preceding math_preamble block, or empty if none. A pure
// left-to-right fold; preamble scoping never crosses document boundaries.
// Preamble fragments themselves are not returned: they compile to nothing
// and their spans are removed from the output.
func resolve(frags []Fragment) []Resolved {
	resolved := make([]Resolved, 0, len(frags))
	preamble := ""
	for _, f := range frags {
		if f.Kind == KindPreamble {
			preamble = f.Body
			continue
		}
		resolved = append(resolved, Resolved{Fragment: f, Preamble: preamble})
	}
	return resolved
}
