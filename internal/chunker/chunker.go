// Package chunker implements the syntax-aware chunker (C2): it maps a
// source file to an ordered sequence of semantic chunks using a
// language-specific tree-sitter grammar, falling back to a windowed
// splitter for unsupported languages (spec §4.3).
package chunker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/karthik-sk/codesearch-core/internal/errs"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// DefaultMaxBytes is the byte-size ceiling above which a file is skipped
// rather than chunked (spec §4.3's "configurable byte limit (default
// 256 KiB)").
const DefaultMaxBytes = 256 * 1024

// DefaultWindowLines and DefaultOverlapLines size the fallback splitter
// used for languages with no tree-sitter grammar wired.
const (
	DefaultWindowLines  = 60
	DefaultOverlapLines = 10
)

// Chunker turns file bytes into Chunks. The zero value uses the package
// defaults.
type Chunker struct {
	MaxBytes     int
	WindowLines  int
	OverlapLines int
}

// New returns a Chunker configured from ConfigSource-supplied tuning
// constants (spec §6.1), falling back to the package defaults for any
// zero field.
func New(maxBytes, windowLines, overlapLines int) *Chunker {
	c := &Chunker{MaxBytes: maxBytes, WindowLines: windowLines, OverlapLines: overlapLines}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.WindowLines <= 0 {
		c.WindowLines = DefaultWindowLines
	}
	if c.OverlapLines <= 0 || c.OverlapLines >= c.WindowLines {
		c.OverlapLines = DefaultOverlapLines
	}
	return c
}

// ErrFileTooLarge is returned when a file exceeds MaxBytes; the sync
// engine treats this as a skip-with-warning, not a fatal error.
var ErrFileTooLarge = errs.New(errs.KindChunker, "file exceeds size ceiling", nil)

// Chunk parses path's content and returns its chunks in source order.
// Chunk is pure and deterministic for identical (path, content) given a
// fixed Chunker configuration and grammar version (spec §4.3).
func (c *Chunker) Chunk(ctx context.Context, path string, content []byte) ([]models.Chunk, error) {
	if len(content) > c.MaxBytes {
		return nil, ErrFileTooLarge
	}
	lang := DetectLanguage(path)

	var chunks []models.Chunk
	if g, ok := grammars[lang]; ok {
		parsed, err := g.chunk(ctx, content, lang)
		if err != nil {
			return nil, errs.New(errs.KindChunker, "parse "+path, err)
		}
		chunks = parsed
	} else if lang == "markdown" {
		chunks = chunkMarkdown(content)
	} else {
		chunks = c.windowSplit(content, lang)
	}

	return dropEmpty(chunks), nil
}

// DetectLanguage maps a file extension to the chunker's canonical,
// lowercase language name. Files with unrecognized extensions still get a
// language name (the trimmed extension) so payloads are never empty, but
// fall back to the windowed splitter.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".go":
		return "go"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".yaml", ".yml":
		return "yaml"
	case ".md", ".markdown":
		return "markdown"
	case ".py":
		return "python"
	case "":
		return "text"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}

// windowSplit is the fallback for languages with no tree-sitter grammar:
// fixed-size line windows with overlap to preserve local context.
func (c *Chunker) windowSplit(content []byte, lang string) []models.Chunk {
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	step := c.WindowLines - c.OverlapLines
	if step <= 0 {
		step = c.WindowLines
	}

	var out []models.Chunk
	for start := 0; start < len(lines); start += step {
		end := start + c.WindowLines
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, models.Chunk{
			StartLine:   start + 1,
			EndLine:     end,
			Language:    lang,
			ElementType: models.ElementText,
			Content:     strings.Join(lines[start:end], "\n"),
		})
		if end == len(lines) {
			break
		}
	}
	return out
}

func dropEmpty(chunks []models.Chunk) []models.Chunk {
	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
