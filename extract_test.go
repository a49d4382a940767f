package latexmath

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestExtract - Fragment recognition and spans
// ---------------------------------------------------------------------------

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		doc       string
		want      []Fragment
		wantWarns int
	}{
		{
			name: "inline math",
			doc:  `Area: $A=\pi r^2$.`,
			want: []Fragment{
				{Kind: KindInline, Body: `A=\pi r^2`, Start: 6, End: 17},
			},
		},
		{
			name: "block math same line",
			doc:  "$$E=mc^2$$",
			want: []Fragment{
				{Kind: KindBlock, Body: "E=mc^2", Start: 0, End: 10},
			},
		},
		{
			name: "block math spans lines",
			doc:  "before\n$$\na+b\n$$\nafter",
			want: []Fragment{
				{Kind: KindBlock, Body: "\na+b\n", Start: 7, End: 16},
			},
		},
		{
			name: "fenced math block",
			doc:  "intro\n```math\n\\frac{1}{2}\n```\noutro",
			want: []Fragment{
				{Kind: KindDisplay, Body: `\frac{1}{2}`, Start: 6, End: 30},
			},
		},
		{
			name: "fenced preamble block",
			doc:  "```math_preamble\n\\usepackage{tikz}\n```\n",
			want: []Fragment{
				{Kind: KindPreamble, Body: `\usepackage{tikz}`, Start: 0, End: 39},
			},
		},
		{
			name: "tilde fence",
			doc:  "~~~math\nx\n~~~\n",
			want: []Fragment{
				{Kind: KindDisplay, Body: "x", Start: 0, End: 14},
			},
		},
		{
			name: "generic fence is opaque",
			doc:  "```python\nprice = \"$5\"\ncost = \"$6\"\n```\n",
			want: nil,
		},
		{
			name: "dollar inside generic fence then math outside",
			doc:  "```sh\necho $HOME\n```\n$x$\n",
			want: []Fragment{
				{Kind: KindInline, Body: "x", Start: 21, End: 24},
			},
		},
		{
			name:      "unterminated inline does not consume document",
			doc:       "cost is $5 today\nbut $x$ renders",
			wantWarns: 1,
			want: []Fragment{
				{Kind: KindInline, Body: "x", Start: 21, End: 24},
			},
		},
		{
			name:      "unterminated block delimiter",
			doc:       "$$a+b\nno close here",
			wantWarns: 1,
			want:      nil,
		},
		{
			name:      "unterminated math fence resumes on next line",
			doc:       "```math\nx+y\nand $z$ still works",
			wantWarns: 1,
			want: []Fragment{
				{Kind: KindInline, Body: "z", Start: 16, End: 19},
			},
		},
		{
			name: "escaped dollar is literal",
			doc:  `price \$5 and $x$`,
			want: []Fragment{
				{Kind: KindInline, Body: "x", Start: 14, End: 17},
			},
		},
		{
			name: "multiple fragments in order",
			doc:  "$a$ then $$b$$ then\n```math\nc\n```\n",
			want: []Fragment{
				{Kind: KindInline, Body: "a", Start: 0, End: 3},
				{Kind: KindBlock, Body: "b", Start: 9, End: 14},
				{Kind: KindDisplay, Body: "c", Start: 20, End: 34},
			},
		},
		{
			name: "no math",
			doc:  "plain text, nothing to see",
			want: nil,
		},
		{
			name: "empty dollar pair is literal",
			doc:  "x$ $y",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frags, warns := extract(tt.doc)

			if len(frags) != len(tt.want) {
				t.Fatalf("got %d fragments, want %d: %+v", len(frags), len(tt.want), frags)
			}
			for i, want := range tt.want {
				got := frags[i]
				if got != want {
					t.Errorf("fragment %d = %+v, want %+v", i, got, want)
				}
			}
			if len(warns) != tt.wantWarns {
				t.Errorf("got %d warnings, want %d: %+v", len(warns), tt.wantWarns, warns)
			}
		})
	}
}

// Spans must slice the original document back to exactly the delimited text.
func TestExtract_SpansMatchSource(t *testing.T) {
	t.Parallel()

	doc := "Area: $A=\\pi r^2$.\n\n$$\nE = mc^2\n$$\n\n```math\n\\sum_i i\n```\n"
	frags, _ := extract(doc)

	if len(frags) != 3 {
		t.Fatalf("got %d fragments, want 3", len(frags))
	}
	for _, f := range frags {
		span := doc[f.Start:f.End]
		if !strings.Contains(span, f.Body) {
			t.Errorf("span %q does not contain body %q", span, f.Body)
		}
	}
	if got := doc[frags[0].Start:frags[0].End]; got != "$A=\\pi r^2$" {
		t.Errorf("inline span = %q", got)
	}
}

// ---------------------------------------------------------------------------
// TestResolve - Preamble scoping
// ---------------------------------------------------------------------------

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frags []Fragment
		want  []Resolved
	}{
		{
			name: "no preamble defaults to empty",
			frags: []Fragment{
				{Kind: KindInline, Body: "x"},
			},
			want: []Resolved{
				{Fragment: Fragment{Kind: KindInline, Body: "x"}, Preamble: ""},
			},
		},
		{
			name: "last preamble wins",
			frags: []Fragment{
				{Kind: KindPreamble, Body: "P1"},
				{Kind: KindInline, Body: "f1"},
				{Kind: KindPreamble, Body: "P2"},
				{Kind: KindInline, Body: "f2"},
			},
			want: []Resolved{
				{Fragment: Fragment{Kind: KindInline, Body: "f1"}, Preamble: "P1"},
				{Fragment: Fragment{Kind: KindInline, Body: "f2"}, Preamble: "P2"},
			},
		},
		{
			name: "fragment before first preamble gets default",
			frags: []Fragment{
				{Kind: KindInline, Body: "early"},
				{Kind: KindPreamble, Body: "P"},
				{Kind: KindDisplay, Body: "late"},
			},
			want: []Resolved{
				{Fragment: Fragment{Kind: KindInline, Body: "early"}, Preamble: ""},
				{Fragment: Fragment{Kind: KindDisplay, Body: "late"}, Preamble: "P"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := resolve(tt.frags)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d resolved, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("resolved %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// Resolution is a pure function of the fragment sequence: calling it twice
// yields identical results and never mutates its input.
func TestResolve_Pure(t *testing.T) {
	t.Parallel()

	frags := []Fragment{
		{Kind: KindPreamble, Body: "P"},
		{Kind: KindInline, Body: "x"},
	}
	first := resolve(frags)
	second := resolve(frags)
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("resolve not stable: %+v vs %+v", first, second)
	}
}
