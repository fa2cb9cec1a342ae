package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeIdentity(t *testing.T) {
	d := Delta{Lines: 2, TrailingX: 5}
	assert.Equal(t, d, Compose(d, Identity))
	assert.Equal(t, d, Compose(Identity, d))
}

func TestComposeAssociative(t *testing.T) {
	a := Delta{Lines: 1, TrailingX: 3}
	b := Delta{Lines: 0, TrailingX: 2}
	c := Delta{Lines: 2, TrailingX: 1}
	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))
	assert.Equal(t, left, right)
}

func TestLayoutOfNewline(t *testing.T) {
	table := DefaultTable(1)
	d, _, _ := LayoutOf([]byte("hello\n"), Start, table)
	assert.Equal(t, 1, d.Lines)
	assert.Equal(t, 0.0, d.TrailingX)
}

func TestLayoutOfAssociativeOverSplit(t *testing.T) {
	table := DefaultTable(1)
	text := []byte("abc\ndef\tghi")

	whole, _, _ := LayoutOf(text, Start, table)

	for split := 0; split <= len(text); split++ {
		d1, st, _ := LayoutOf(text[:split], Start, table)
		d2, _, _ := LayoutOf(text[split:], st, table)
		got := Compose(d1, d2)
		require.Equalf(t, whole, got, "split at %d", split)
	}
}

func TestLayoutOfSplitMultibyteRune(t *testing.T) {
	table := DefaultTable(1)
	// "日" is E6 97 A5 in UTF-8.
	text := []byte("a日b")

	whole, _, _ := LayoutOf(text, Start, table)

	for split := 0; split <= len(text); split++ {
		d1, st, _ := LayoutOf(text[:split], Start, table)
		d2, _, _ := LayoutOf(text[split:], st, table)
		got := Compose(d1, d2)
		require.Equalf(t, whole, got, "split at byte %d", split)
	}
}

func TestLayoutOfTab(t *testing.T) {
	table := DefaultTable(1)
	d, _, _ := LayoutOf([]byte("\t"), Start, table)
	assert.Equal(t, 0, d.Lines)
	assert.Equal(t, table.TabStopWidth, d.TrailingX)
}

func TestLayoutOfMaxInteriorLineWidth(t *testing.T) {
	table := DefaultTable(1)

	// First line ("ab") touches the start of b, last line ("c") touches
	// the end of b, so only "defg" (between the two interior newlines)
	// is wholly contained and counts.
	_, _, w := LayoutOf([]byte("ab\ndefg\nc"), Start, table)
	assert.Equal(t, 4.0, w)

	// A single line with no newline at all has no wholly-contained
	// line: the bound stays 0, not the line's own width.
	_, _, w = LayoutOf([]byte("abcdef"), Start, table)
	assert.Equal(t, 0.0, w)
}

func TestLayoutOfEmpty(t *testing.T) {
	table := DefaultTable(1)
	d, st, w := LayoutOf(nil, Start, table)
	assert.Equal(t, Identity, d)
	assert.Equal(t, Start, st)
	assert.Equal(t, 0.0, w)
}
