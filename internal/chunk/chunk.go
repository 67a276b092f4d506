// Package chunk splits text into bounded pieces for the memory index.
// Limits are measured in characters (runes), not bytes.
package chunk

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultLineSize is the window size for line-based chunking.
	DefaultLineSize = 50

	// DefaultLineOverlap is the number of lines shared between
	// consecutive windows.
	DefaultLineOverlap = 10
)

// LineChunk is a window over a line array. Start and End are 1-indexed
// and inclusive.
type LineChunk struct {
	Text  string
	Start int
	End   int
}

// Text splits text into pieces of at most limit characters. Within each
// window the break point is searched right-to-left: a newline is
// preferred, then any whitespace, then a hard cut at the limit. Pieces
// are trimmed of surrounding whitespace; empty input yields nil.
func Text(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		window := runes[:limit]
		cut := lastBreak(window)
		if cut <= 0 {
			cut = limit // single oversize word, hard cut
		}
		piece := strings.TrimSpace(string(runes[:cut]))
		if piece != "" {
			out = append(out, piece)
		}
		rest := runes[cut:]
		for len(rest) > 0 && unicode.IsSpace(rest[0]) {
			rest = rest[1:]
		}
		runes = rest
	}
	tail := strings.TrimSpace(string(runes))
	if tail != "" {
		out = append(out, tail)
	}
	return out
}

// lastBreak returns the preferred break index within the window:
// the last newline if any, otherwise the last whitespace, otherwise -1.
func lastBreak(window []rune) int {
	lastSpace := -1
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i
		}
		if lastSpace < 0 && unicode.IsSpace(window[i]) {
			lastSpace = i
		}
	}
	return lastSpace
}

// ByParagraph normalizes line endings, splits text on blank lines, and
// greedily packs paragraphs (joined by "\n\n") into pieces of at most
// limit characters. A paragraph that alone exceeds the limit is split
// by Text.
func ByParagraph(text string, limit int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) == 0 {
		return nil
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, p := range paras {
		plen := utf8.RuneCountInString(p)
		if limit > 0 && plen > limit {
			flush()
			out = append(out, Text(p, limit)...)
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 2 // "\n\n"
		}
		if limit > 0 && curLen+sep+plen > limit {
			flush()
			sep = 0
		}
		if sep > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		curLen += sep + plen
	}
	flush()
	return out
}

// Lines produces overlapping windows over a line array. Consecutive
// windows share exactly overlap lines: end(i) - start(i+1) + 1 == overlap.
func Lines(lines []string, size, overlap int) []LineChunk {
	if len(lines) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultLineSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultLineOverlap
		if overlap >= size {
			overlap = size / 2
		}
	}

	step := size - overlap
	var chunks []LineChunk
	for start := 0; start < len(lines); start += step {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, LineChunk{
			Text:  strings.Join(lines[start:end], "\n"),
			Start: start + 1,
			End:   end,
		})
		if end == len(lines) {
			break
		}
	}
	return chunks
}

// Hash returns the MD5 hex digest of the UTF-8 bytes of text.
// Change detection only, no security property.
func Hash(text string) string {
	h := md5.Sum([]byte(text))
	return hex.EncodeToString(h[:])
}
