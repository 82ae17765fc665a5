package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/ragdrive/internal/model"
)

// Separators are tried in order: paragraph, line, sentence, word. Text that
// still does not fit after the last one is cut by characters.
var Separators = []string{"\n\n", "\n", ". ", " "}

type Config struct {
	MaxChunkChars int
	OverlapChars  int
}

// Span is a byte range of the source text.
type Span struct {
	Start int
	End   int
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if cfg.MaxChunkChars <= 0 {
		return nil, fmt.Errorf("max chunk chars must be positive")
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.MaxChunkChars {
		return nil, fmt.Errorf("overlap chars must be in [0, %d)", cfg.MaxChunkChars)
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Config() Config {
	return c.cfg
}

// Split chunks every document in order. Chunks inherit a copy of their
// document's metadata.
func (c *Chunker) Split(docs []model.TextDocument) []model.Chunk {
	var out []model.Chunk
	for _, doc := range docs {
		for _, sp := range c.Spans(doc.Text) {
			out = append(out, model.Chunk{
				Text:     doc.Text[sp.Start:sp.End],
				Metadata: copyMetadata(doc.Metadata),
			})
		}
	}
	return out
}

// Spans returns the chunk boundaries for text. Blank text has no chunks.
func (c *Chunker) Spans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.cfg.MaxChunkChars {
		return []Span{{Start: 0, End: len(text)}}
	}
	pieces := c.segment(text, 0, Separators)
	return c.merge(text, pieces)
}

// segment cuts text into contiguous pieces of at most MaxChunkChars runes.
func (c *Chunker) segment(text string, base int, seps []string) []Span {
	if utf8.RuneCountInString(text) <= c.cfg.MaxChunkChars {
		return []Span{{Start: base, End: base + len(text)}}
	}
	for i, sep := range seps {
		if !strings.Contains(text, sep) {
			continue
		}
		var out []Span
		offset := 0
		for _, part := range strings.SplitAfter(text, sep) {
			if part == "" {
				continue
			}
			out = append(out, c.segment(part, base+offset, seps[i+1:])...)
			offset += len(part)
		}
		return out
	}
	return c.cutRunes(text, base)
}

func (c *Chunker) cutRunes(text string, base int) []Span {
	var out []Span
	start, count := 0, 0
	for idx := range text {
		if count == c.cfg.MaxChunkChars {
			out = append(out, Span{Start: base + start, End: base + idx})
			start, count = idx, 0
		}
		count++
	}
	if start < len(text) {
		out = append(out, Span{Start: base + start, End: base + len(text)})
	}
	return out
}

// merge packs pieces greedily into chunks and seeds each new chunk with a
// tail of the previous one no longer than OverlapChars.
func (c *Chunker) merge(text string, pieces []Span) []Span {
	size := func(sp Span) int {
		return utf8.RuneCountInString(text[sp.Start:sp.End])
	}
	var (
		out     []Span
		current []Span
		total   int
	)
	for _, piece := range pieces {
		n := size(piece)
		if len(current) > 0 && total+n > c.cfg.MaxChunkChars {
			out = append(out, Span{Start: current[0].Start, End: current[len(current)-1].End})
			for len(current) > 0 && (total > c.cfg.OverlapChars || total+n > c.cfg.MaxChunkChars) {
				total -= size(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if len(current) > 0 {
		out = append(out, Span{Start: current[0].Start, End: current[len(current)-1].End})
	}
	return out
}

func copyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
