package textproc

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	// Chunks at or below this trimmed length are treated as extraction noise
	// (page headers, footers, stray numbering) and dropped.
	minChunkLen = 50
)

// Splitter splits text into overlapping chunks, preferring to break on
// paragraph boundaries, then lines, then spaces, and only then mid-word.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter() *Splitter {
	return &Splitter{
		ChunkSize:    defaultChunkSize,
		ChunkOverlap: defaultChunkOverlap,
		Separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// SplitText returns ordered chunks of at most ChunkSize runes wherever the
// separators allow it, with adjacent chunks sharing up to ChunkOverlap runes
// of context. Empty or all-whitespace input yields no chunks.
func (s *Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	chunks := s.split(text, s.Separators)

	filtered := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(c)) > minChunkLen {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// split picks the first separator present in text, splits on it, packs the
// pieces that fit into windows and recurses with the remaining separators
// into the pieces that do not.
func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			remaining = nil
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	var splits []string
	if separator == "" {
		splits = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, separator)
	}

	var final []string
	var good []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(remaining) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, remaining)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge packs consecutive splits into chunks not exceeding ChunkSize,
// carrying a tail of up to ChunkOverlap runes into the next chunk.
func (s *Splitter) merge(splits []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)

	var docs []string
	var current []string
	total := 0

	for _, d := range splits {
		dLen := utf8.RuneCountInString(d)
		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+dLen+extra > s.ChunkSize && len(current) > 0 {
			if doc := joinSplits(current, separator); doc != "" {
				docs = append(docs, doc)
			}
			// Drop leading splits until the retained tail is within the
			// overlap limit and leaves room for the incoming split.
			for total > s.ChunkOverlap || (total+dLen+extra > s.ChunkSize && total > 0) {
				head := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					head += sepLen
				}
				total -= head
				current = current[1:]
				extra = 0
				if len(current) > 0 {
					extra = sepLen
				}
			}
		}
		current = append(current, d)
		total += dLen
		if len(current) > 1 {
			total += sepLen
		}
	}

	if doc := joinSplits(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinSplits(splits []string, separator string) string {
	return strings.TrimSpace(strings.Join(splits, separator))
}
