// Package layout implements the pure function from a byte slice to a
// layout delta described in spec.md §4.D: it never touches the sparse
// store or the linemap tree, and its output depends only on the bytes
// given to it and the carried-over decode/column state, never on the
// wider document. That purity is what makes composition associative
// (spec.md §4.D, §8) and is the property the linemap tree leans on
// when it aggregates layout deltas across a split of a byte range.
package layout

import (
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Delta is (lines_crossed, trailing_x). Composition is defined in
// spec.md §3: (a, α) · (b, β) = (a+b, α+β) if b == 0, else (a+b, β).
type Delta struct {
	Lines     int
	TrailingX float64
}

// Compose implements the monoid product from spec.md §3. b is applied
// after a: Compose(a, b) == a · b.
func Compose(a, b Delta) Delta {
	if b.Lines == 0 {
		return Delta{Lines: a.Lines, TrailingX: a.TrailingX + b.TrailingX}
	}
	return Delta{Lines: a.Lines + b.Lines, TrailingX: b.TrailingX}
}

// Identity is the delta of an empty byte range: the monoid's identity
// element under Compose.
var Identity = Delta{}

// State carries the cross-chunk context layout needs: up to three
// trailing bytes of a partial UTF-8 code point, plus the running
// column (needed so a tab in the next chunk snaps to the right stop).
type State struct {
	// PartialRune holds 0-3 trailing bytes of an incomplete code point.
	PartialRune [3]byte
	PartialLen  uint8

	// Column is the x position (in the table's x units, the same units
	// as Delta.TrailingX) at the point State was captured; needed to
	// resolve a tab landing exactly on the chunk boundary.
	Column float64
}

// Start is the initial state at the beginning of a resident run.
var Start = State{}

// Table supplies a character's width in font-height x units. A table
// is built once per editor session from font metrics; it is not part
// of the linemap tree.
type Table struct {
	// TabStopWidth is the x distance a tab snaps the column forward to
	// the next multiple of.
	TabStopWidth float64

	// Override maps specific code points (e.g. wide CJK punctuation
	// the font renders narrower/wider than its East-Asian-width class
	// suggests) to an exact width. Code points absent from the map
	// fall back to Default.
	Override map[rune]float64

	// Default is the width of one terminal cell: a code point without
	// an Override gets Default times its runewidth cell count (see
	// WidthOf).
	Default float64
}

// DefaultTable returns a table using the terminal's standard
// single/double-cell width classification as a proxy for font-height
// glyph width, scaled by Default. This is the table the CLI viewport
// renderer uses; the layout model accepts any Table, including one
// built from real font metrics.
func DefaultTable(unitWidth float64) Table {
	return Table{
		TabStopWidth: 8 * unitWidth,
		Default:      unitWidth,
	}
}

// WidthOf returns r's x width under t: an explicit Override if one is
// set, else the font's Default unit scaled by the terminal cell count
// runewidth reports for r.
func (t Table) WidthOf(r rune) float64 {
	if w, ok := t.Override[r]; ok {
		return w
	}
	cells := runewidth.RuneWidth(r)
	if cells <= 0 {
		return 0
	}
	return float64(cells) * t.Default
}

// LayoutOf computes the layout delta of b, given the state carried
// over from whatever precedes b and a character-width table. It
// returns the delta, the state to carry into whatever follows b, and
// a lower bound on the widest line wholly contained in b: a line
// whose leading and trailing newlines are both inside b, so its width
// doesn't depend on bytes outside this call. The line that b starts
// or ends mid-way through is never counted, since neighboring bytes
// could extend it arbitrarily (the linemap tree's max-line-width
// summary is deliberately a lower bound, never an exact sup, for
// exactly this reason: spec.md §9).
//
// LayoutOf allocates only when start carries a partial rune (to join
// it with b) and never blocks; callers must already have every byte
// of b resident.
func LayoutOf(b []byte, start State, table Table) (Delta, State, float64) {
	var delta Delta
	var maxInteriorWidth float64
	column := start.Column
	newlines := 0

	// Prepend any code point split across the previous chunk boundary
	// so the rest of this function only has to decode one contiguous
	// stream.
	buf := b
	if start.PartialLen > 0 {
		buf = append(append([]byte{}, start.PartialRune[:start.PartialLen]...), b...)
	}

	i := 0
	for i < len(buf) {
		rest := buf[i:]
		if !utf8.FullRune(rest) && len(rest) < utf8.UTFMax {
			// Truncated at the end of this chunk; carry the remaining
			// bytes forward instead of guessing.
			var st State
			st.Column = column
			st.PartialLen = uint8(copy(st.PartialRune[:], rest))
			return delta, st, maxInteriorWidth
		}
		r, size := utf8.DecodeRune(rest)
		if r == '\n' {
			newlines++
			if newlines > 1 && column > maxInteriorWidth {
				maxInteriorWidth = column
			}
		}
		d, _ := advance(r, table, &column)
		delta = Compose(delta, d)
		i += size
	}

	return delta, State{Column: column}, maxInteriorWidth
}

// advance folds one decoded rune into a Delta and returns the x width
// it consumed, updating column in place.
func advance(r rune, table Table, column *float64) (Delta, float64) {
	switch r {
	case '\n':
		*column = 0
		return Delta{Lines: 1, TrailingX: 0}, 0
	case '\t':
		w := table.TabStopWidth
		if w <= 0 {
			w = 1
		}
		next := (float64(int(*column/w)) + 1) * w
		d := Delta{Lines: 0, TrailingX: next - *column}
		*column = next
		return d, d.TrailingX
	default:
		w := table.WidthOf(r)
		*column += w
		return Delta{Lines: 0, TrailingX: w}, w
	}
}
