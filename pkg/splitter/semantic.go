package splitter

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// Ensure Semantic implements the Splitter interface.
var _ Splitter = (*Semantic)(nil)

// Semantic packs whole sentences into chunks under a token budget.
// Paragraphs (separated by a blank line) never share a chunk. A sentence
// whose own token count exceeds the budget is cut by a character-window
// binary search so no text is lost. Consecutive chunks within a paragraph
// share a sentence tail of roughly overlapTokens tokens; a one-sentence
// chunk carries no overlap.
type Semantic struct {
	maxTokens     int
	overlapTokens int
	counter       TokenCounter
}

// NewSemantic constructs a token-budgeted sentence-aware splitter.
func NewSemantic(maxTokens, overlapTokens int, counter TokenCounter) *Semantic {
	return &Semantic{maxTokens: maxTokens, overlapTokens: overlapTokens, counter: counter}
}

// Split implements Splitter. Offsets increase monotonically across the
// whole document, measured in code points of emitted chunk text.
func (s *Semantic) Split(ctx context.Context, text string, documentID domain.DocumentID) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	globalOffset := 0

	for _, paragraph := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		texts, err := s.packSentences(splitSentences(paragraph))
		if err != nil {
			return nil, err
		}
		for _, t := range texts {
			chunks = append(chunks, domain.NewChunk(t, documentID, nil, globalOffset))
			globalOffset += utf8.RuneCountInString(t)
		}
	}
	return chunks, nil
}

// packSentences greedily fills chunks with sentences until the next sentence
// would overflow maxTokens, then resumes after the overlap tail.
func (s *Semantic) packSentences(sentences []string) ([]string, error) {
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0

	for start < len(sentences) {
		var b strings.Builder
		curTokens := 0
		end := start

		for idx := start; idx < len(sentences); idx++ {
			sent := sentences[idx]
			n, err := s.counter.Count(sent)
			if err != nil {
				return nil, err
			}

			// A single sentence over budget is cut by character windows.
			if n > s.maxTokens {
				if b.Len() > 0 {
					chunks = append(chunks, b.String())
					b.Reset()
					curTokens = 0
				}
				subs, err := s.splitOversized(sent)
				if err != nil {
					return nil, err
				}
				chunks = append(chunks, subs...)
				end = idx
				start = idx + 1
				continue
			}

			if curTokens+n > s.maxTokens && b.Len() > 0 {
				break
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(sent)
			curTokens += n
			end = idx
		}

		if b.Len() > 0 {
			chunks = append(chunks, b.String())
		}

		// Resume after the overlap tail of the chunk just emitted.
		if start <= end {
			overlapIdx := end
			overlapTokens := 0
			for overlapIdx > start && overlapTokens < s.overlapTokens {
				n, err := s.counter.Count(sentences[overlapIdx])
				if err != nil {
					return nil, err
				}
				overlapTokens += n
				overlapIdx--
			}
			if overlapIdx < end {
				start = overlapIdx + 1
			} else {
				start = end + 1
			}
		}

		// The final chunk already covers the tail; re-walking it would
		// only emit the overlap again.
		if start <= end && end == len(sentences)-1 {
			break
		}
	}
	return chunks, nil
}

// splitOversized cuts a sentence into the largest character prefixes whose
// token count fits the budget. Concatenating the result reproduces the
// sentence exactly.
func (s *Semantic) splitOversized(sentence string) ([]string, error) {
	chars := []rune(sentence)
	var subs []string

	offset := 0
	for offset < len(chars) {
		low, high := 1, len(chars)-offset
		best := 1
		for low <= high {
			mid := (low + high) / 2
			n, err := s.counter.Count(string(chars[offset : offset+mid]))
			if err != nil {
				return nil, err
			}
			if n <= s.maxTokens {
				best = mid
				low = mid + 1
			} else {
				high = mid - 1
			}
		}
		subs = append(subs, string(chars[offset:offset+best]))
		offset += best
	}
	return subs, nil
}

// splitSentences segments a paragraph into sentences ending in '.', '!', or
// '?' followed by whitespace or end-of-paragraph. Trailing text without a
// terminator forms a final sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	var cur []rune

	for i, r := range runes {
		cur = append(cur, r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		atEnd := i == len(runes)-1
		if atEnd || unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(cur)); s != "" {
				sentences = append(sentences, s)
			}
			cur = cur[:0]
		}
	}
	if s := strings.TrimSpace(string(cur)); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
