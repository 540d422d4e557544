package chunker

import (
	"strings"

	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// chunkMarkdown splits Markdown on ATX headings ("#" .. "######"), so each
// chunk is one section plus its heading. No tree-sitter grammar for
// Markdown is wired (no example in the retrieval pack vendors one), so
// this is a dedicated heading-aware splitter rather than a fall-through to
// the generic windowed splitter: headings are a much stronger chunk
// boundary than a fixed line count for prose.
func chunkMarkdown(content []byte) []models.Chunk {
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	var out []models.Chunk
	start := 0
	for i := 1; i <= len(lines); i++ {
		if i < len(lines) && !isHeading(lines[i]) {
			continue
		}
		if i > start {
			out = append(out, models.Chunk{
				StartLine:   start + 1,
				EndLine:     i,
				Language:    "markdown",
				ElementType: models.ElementText,
				Content:     strings.Join(lines[start:i], "\n"),
			})
		}
		start = i
	}
	return out
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n > 6 {
		return false
	}
	return n == len(trimmed) || trimmed[n] == ' '
}
