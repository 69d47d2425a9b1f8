package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// hyphenNewline matches a word broken across a line ending with a hyphen,
// as produced by justified PDF layouts.
var hyphenNewline = regexp.MustCompile(`(\w)-[ \t]*\r?\n[ \t]*(\w)`)

// Sanitize normalizes extracted text for chunking: NFKC unicode
// normalization, de-hyphenation of line-broken words, collapsed internal
// whitespace, and paragraph breaks reduced to a single blank line.
func Sanitize(raw string) string {
	normalized := norm.NFKC.String(raw)
	deHyphenated := hyphenNewline.ReplaceAllString(normalized, "$1$2")

	var b strings.Builder
	b.Grow(len(deHyphenated))

	prevBlank := false
	firstContent := true

	for line := range strings.Lines(deHyphenated) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			prevBlank = true
			continue
		}
		if !firstContent {
			if prevBlank {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		collapseInternalWhitespace(trimmed, &b)
		prevBlank = false
		firstContent = false
	}

	return strings.TrimSpace(b.String())
}

// collapseInternalWhitespace writes line to out with runs of whitespace
// reduced to a single space.
func collapseInternalWhitespace(line string, out *strings.Builder) {
	prevSpace := false
	for _, ch := range line {
		if unicode.IsSpace(ch) {
			if !prevSpace {
				out.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		out.WriteRune(ch)
		prevSpace = false
	}
}
