package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTextEmpty(t *testing.T) {
	if got := Text("", 100); got != nil {
		t.Errorf("Text(\"\") = %v, want nil", got)
	}
	if got := Text("   \n\t  ", 100); got != nil {
		t.Errorf("Text(whitespace) = %v, want nil", got)
	}
}

func TestTextSingleChunk(t *testing.T) {
	got := Text("hello world", 100)
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("Text under limit = %v, want one unchanged chunk", got)
	}
}

func TestTextPrefersNewline(t *testing.T) {
	// Window contains both a newline and later spaces; newline wins.
	text := "first line\nsecond part goes here"
	got := Text(text, 20)
	if len(got) < 2 {
		t.Fatalf("expected split, got %v", got)
	}
	if got[0] != "first line" {
		t.Errorf("first chunk = %q, want break at the newline", got[0])
	}
}

func TestTextFallsBackToWhitespace(t *testing.T) {
	text := "alpha beta gamma delta epsilon"
	got := Text(text, 12)
	for i, c := range got {
		if utf8.RuneCountInString(c) > 12 {
			t.Errorf("chunk %d length %d exceeds limit", i, utf8.RuneCountInString(c))
		}
		if strings.Contains(c, "  ") {
			t.Errorf("chunk %d has collapsed-whitespace damage: %q", i, c)
		}
	}
}

func TestTextHardCut(t *testing.T) {
	text := strings.Repeat("x", 25)
	got := Text(text, 10)
	if len(got) != 3 {
		t.Fatalf("hard cut of 25 runes at 10 = %d chunks, want 3", len(got))
	}
	total := 0
	for _, c := range got {
		total += len(c)
	}
	if total != 25 {
		t.Errorf("hard cut lost characters: total %d, want 25", total)
	}
}

// Joining chunks with spaces and collapsing whitespace preserves the
// token sequence whenever no single word exceeds the limit.
func TestTextRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
	}{
		{"prose", "The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs.", 20},
		{"multiline", "alpha beta\ngamma delta\n\nepsilon zeta eta theta\niota kappa", 16},
		{"tabs", "one\ttwo\tthree four five six seven", 10},
		{"exact", "abcde fghij", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Text(tc.text, tc.limit)
			joined := strings.Join(chunks, " ")
			want := strings.Join(strings.Fields(tc.text), " ")
			got := strings.Join(strings.Fields(joined), " ")
			if got != want {
				t.Errorf("round trip broke tokens:\n got %q\nwant %q", got, want)
			}
			for i, c := range chunks {
				if utf8.RuneCountInString(c) > tc.limit {
					t.Errorf("chunk %d exceeds limit: %d > %d", i, utf8.RuneCountInString(c), tc.limit)
				}
			}
		})
	}
}

func TestByParagraphPacking(t *testing.T) {
	text := "para one.\n\npara two.\n\npara three is a bit longer."
	got := ByParagraph(text, 25)
	if len(got) == 0 {
		t.Fatal("no chunks")
	}
	// First two short paragraphs pack together, third stands alone.
	if !strings.Contains(got[0], "para one.") || !strings.Contains(got[0], "para two.") {
		t.Errorf("first chunk should pack two paragraphs, got %q", got[0])
	}
	for i, c := range got {
		t.Logf("chunk %d: %q", i, c)
	}
}

func TestByParagraphOversize(t *testing.T) {
	big := strings.Repeat("word ", 40) // ~200 chars, one paragraph
	got := ByParagraph("small.\n\n"+big, 50)
	for i, c := range got {
		if utf8.RuneCountInString(c) > 50 {
			t.Errorf("chunk %d length %d exceeds limit", i, utf8.RuneCountInString(c))
		}
	}
}

func TestByParagraphCRLF(t *testing.T) {
	got := ByParagraph("a\r\n\r\nb", 100)
	if len(got) != 1 || got[0] != "a\n\nb" {
		t.Errorf("CRLF normalization failed: %v", got)
	}
}

func TestLinesOverlapInvariant(t *testing.T) {
	lines := make([]string, 127)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	chunks := Lines(lines, 50, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(chunks))
	}
	for i := 0; i < len(chunks)-1; i++ {
		got := chunks[i].End - chunks[i+1].Start + 1
		if got != 10 {
			t.Errorf("windows %d/%d overlap = %d, want 10", i, i+1, got)
		}
	}
	if chunks[0].Start != 1 {
		t.Errorf("first window starts at %d, want 1", chunks[0].Start)
	}
	last := chunks[len(chunks)-1]
	if last.End != 127 {
		t.Errorf("last window ends at %d, want 127", last.End)
	}
}

func TestLinesShortInput(t *testing.T) {
	chunks := Lines([]string{"only", "two"}, 50, 10)
	if len(chunks) != 1 {
		t.Fatalf("short input: %d chunks, want 1", len(chunks))
	}
	if chunks[0].Start != 1 || chunks[0].End != 2 {
		t.Errorf("window = %d-%d, want 1-2", chunks[0].Start, chunks[0].End)
	}
	if chunks[0].Text != "only\ntwo" {
		t.Errorf("text = %q", chunks[0].Text)
	}
}

func TestLinesEmpty(t *testing.T) {
	if got := Lines(nil, 50, 10); got != nil {
		t.Errorf("Lines(nil) = %v, want nil", got)
	}
}

func TestHash(t *testing.T) {
	if got := Hash("hello"); got != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("Hash(hello) = %s", got)
	}
	if Hash("a") == Hash("b") {
		t.Error("distinct inputs collided")
	}
}
