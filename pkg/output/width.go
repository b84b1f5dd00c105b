package output

import "github.com/mattn/go-runewidth"

// DisplayWidth returns the number of terminal cells s occupies. Wide runes
// such as CJK characters and most emoji count as two.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// ToWidth pads s with spaces to width cells. Strings that are already at
// least that wide are returned unchanged.
func ToWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.FillRight(s, width)
}

// Clip shortens s to at most width cells, marking the cut with "…".
// A width of zero or less disables clipping.
func Clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
