package bidparse

import (
	"strings"

	"golang.org/x/text/width"
)

// textReplacer maps look-alike characters seen in scraped comments and OCR
// output onto the ASCII forms the grammars understand.
var textReplacer = strings.NewReplacer(
	// Thai digits
	"๐", "0", "๑", "1", "๒", "2", "๓", "3", "๔", "4",
	"๕", "5", "๖", "6", "๗", "7", "๘", "8", "๙", "9",
	// dashes
	"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-", "\u2212", "-",
	// spaces
	"\u00a0", " ", "\u202f", " ", "\u200b", "",
	"\r", "",
)

// normalize folds full-width forms and look-alike characters to ASCII.
func normalize(text string) string {
	return textReplacer.Replace(width.Fold.String(text))
}

// stripGrouping removes grouping characters (commas, dots, spaces) from a number.
func stripGrouping(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
