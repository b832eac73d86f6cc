// Package extract isolates the single embedded runnable HTML document from
// accumulated streamed text. All functions are pure and replay-safe: called
// on strictly growing prefixes of the same text they return nothing until
// both markers are present, then the same stable result thereafter.
package extract

import "strings"

const (
	openMarker  = "<!doctype html>"
	closeMarker = "</html>"

	fenceOpen  = "```html\n"
	fenceClose = "\n```"
)

// Document returns the span from the first opening marker through the last
// closing marker, inclusive. Both markers are matched case-insensitively.
// The pairing is first-opening/last-closing: first-opening/first-closing
// would truncate legitimate nested content.
//
// Matching folds ASCII case in place on the original text. Lowercasing the
// whole input first would break the offsets: case pairs like U+212A KELVIN
// SIGN fold to a different byte length and shift every index after them.
func Document(text string) (string, bool) {
	start := indexFold(text, openMarker)
	if start < 0 {
		return "", false
	}

	end := lastIndexFold(text, closeMarker)
	if end < 0 || end < start {
		return "", false
	}

	return text[start : end+len(closeMarker)], true
}

// indexFold is strings.Index with ASCII case folding. marker must be
// lowercase ASCII.
func indexFold(text, marker string) int {
	for i := 0; i+len(marker) <= len(text); i++ {
		if matchFold(text[i:], marker) {
			return i
		}
	}
	return -1
}

// lastIndexFold is strings.LastIndex with ASCII case folding. marker must be
// lowercase ASCII.
func lastIndexFold(text, marker string) int {
	for i := len(text) - len(marker); i >= 0; i-- {
		if matchFold(text[i:], marker) {
			return i
		}
	}
	return -1
}

func matchFold(text, marker string) bool {
	for i := 0; i < len(marker); i++ {
		c := text[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != marker[i] {
			return false
		}
	}
	return true
}

// FromMarkdown returns the contents of the last complete fenced ```html
// code block, for models that wrap their output in markdown instead of
// emitting bare markup. An unterminated trailing block is an in-flight
// stream, not a document, and is ignored.
func FromMarkdown(text string) (string, bool) {
	var doc string
	var found bool

	rest := text
	for {
		start := strings.Index(rest, fenceOpen)
		if start < 0 {
			break
		}

		body := rest[start+len(fenceOpen):]
		end := strings.Index(body, fenceClose)
		if end < 0 {
			break
		}

		if block := strings.TrimSpace(body[:end]); block != "" {
			doc = block
			found = true
		}
		rest = body[end+len(fenceClose):]
	}

	return doc, found
}

// BestEffort tries bare-marker extraction first, then the fenced-markdown
// fallback.
func BestEffort(text string) (string, bool) {
	if doc, ok := Document(text); ok {
		return doc, true
	}
	return FromMarkdown(text)
}
