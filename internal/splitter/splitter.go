// Package splitter divides document text into overlapping chunks sized
// for the embedding model.
package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// defaultSeparators are tried in order when looking for a natural break
// point inside a window, from paragraph down to clause boundaries.
var defaultSeparators = []string{"\n\n", "\n", ". ", ", "}

// Splitter cuts text into chunks of at most chunkSize bytes, where
// consecutive chunks share up to overlap bytes of context.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// New creates a Splitter. overlap must be smaller than chunkSize.
func New(chunkSize, overlap int) *Splitter {
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split produces ordered chunks covering the document text with no gaps.
// Every chunk is a contiguous substring of the text; Reconstruct inverts
// the operation exactly. A document shorter than the chunk size yields
// exactly one chunk.
func (s *Splitter) Split(doc domain.Document) []domain.Chunk {
	text := doc.Text
	if text == "" {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	for {
		if len(text)-start <= s.chunkSize {
			chunks = append(chunks, domain.Chunk{
				Source: doc.Source,
				Index:  len(chunks),
				Offset: start,
				Text:   text[start:],
			})
			return chunks
		}

		end := s.cut(text, start)
		chunks = append(chunks, domain.Chunk{
			Source: doc.Source,
			Index:  len(chunks),
			Offset: start,
			Text:   text[start:end],
		})

		next := end - s.overlap
		if next <= start {
			next = end // chunk too small to overlap, continue without
		}
		for next > 0 && next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
}

// cut finds the end of the chunk starting at start: the last natural
// boundary within the window, falling back to a hard cut at chunkSize.
func (s *Splitter) cut(text string, start int) int {
	hard := start + s.chunkSize
	for hard > start && !utf8.RuneStart(text[hard]) {
		hard--
	}
	if hard == start {
		// chunkSize smaller than one rune; take the rune whole
		hard = start + 1
		for hard < len(text) && !utf8.RuneStart(text[hard]) {
			hard++
		}
	}
	window := text[start:hard]

	for _, sep := range s.separators {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return start + idx + len(sep)
		}
	}
	return hard
}

// Reconstruct joins chunks back into the original text, dropping each
// chunk's overlap with its predecessor.
func Reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		skip := prevEnd - c.Offset
		if skip < 0 {
			skip = 0
		}
		if skip > len(c.Text) {
			skip = len(c.Text)
		}
		b.WriteString(c.Text[skip:])
		prevEnd = c.Offset + len(c.Text)
	}
	return b.String()
}
