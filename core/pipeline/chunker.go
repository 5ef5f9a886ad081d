package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/counsel/model"
)

// span marks a sentence as byte offsets into the original text.
type span struct {
	start int
	end   int
}

// SizeChunker creates the default deterministic chunker. Chunks aim for
// TargetSize bytes, end on sentence boundaries where possible and share
// an overlap window of TargetSize*OverlapFraction bytes with their
// predecessor. A trailing chunk shorter than MinSize is merged into the
// previous one. Identical (text, config) always produces identical
// boundaries.
func SizeChunker(config model.ChunkingConfig) ChunkFunc {
	return func(text string) ([]Fragment, error) {
		if config.TargetSize <= 0 {
			return nil, fmt.Errorf("target size must be positive")
		}
		if config.OverlapFraction < 0 || config.OverlapFraction >= 1 {
			return nil, fmt.Errorf("overlap fraction %f outside [0,1)", config.OverlapFraction)
		}
		overlap := int(float64(config.TargetSize) * config.OverlapFraction)

		sentences := scanSentences(text)
		if len(sentences) == 0 {
			return []Fragment{}, nil
		}

		var fragments []Fragment
		first := 0
		for first < len(sentences) {
			start := sentences[first].start

			// A single sentence longer than the target is split hard,
			// snapped to rune starts.
			if sentences[first].end-start > config.TargetSize {
				fragments = append(fragments, hardSplit(text, sentences[first], config.TargetSize, overlap)...)
				first++
				continue
			}

			last := first
			for last+1 < len(sentences) && sentences[last+1].end-start <= config.TargetSize {
				last++
			}
			end := sentences[last].end
			fragments = append(fragments, Fragment{
				Content:  text[start:end],
				StartPos: start,
				EndPos:   end,
			})

			if last+1 == len(sentences) {
				break
			}

			// Re-enter inside the overlap window, as far back as the
			// following sentence still fits into one target-sized
			// chunk. This keeps every step strictly progressing.
			next := last + 1
			for k := last; k > first; k-- {
				if sentences[k].start < end-overlap {
					break
				}
				if sentences[last+1].end-sentences[k].start > config.TargetSize {
					break
				}
				next = k
			}
			first = next
		}

		// Merge an undersized trailing chunk into its predecessor
		if config.MinSize > 0 && len(fragments) > 1 {
			lastFragment := fragments[len(fragments)-1]
			if lastFragment.EndPos-lastFragment.StartPos < config.MinSize {
				previous := &fragments[len(fragments)-2]
				previous.EndPos = lastFragment.EndPos
				previous.Content = text[previous.StartPos:previous.EndPos]
				fragments = fragments[:len(fragments)-1]
			}
		}

		for i := range fragments {
			fragments[i].ChunkIndex = i
		}
		return fragments, nil
	}
}

// ParagraphChunker creates a chunker that splits on blank lines. Useful
// for pre-structured documents where paragraphs are the natural unit.
func ParagraphChunker() ChunkFunc {
	return func(text string) ([]Fragment, error) {
		var fragments []Fragment
		index := 0
		pos := 0

		for pos < len(text) {
			next := strings.Index(text[pos:], "\n\n")
			end := len(text)
			if next >= 0 {
				end = pos + next
			}

			start := pos
			for start < end && isSpace(text[start]) {
				start++
			}
			trimmed := end
			for trimmed > start && isSpace(text[trimmed-1]) {
				trimmed--
			}

			if trimmed > start {
				fragments = append(fragments, Fragment{
					Content:    text[start:trimmed],
					StartPos:   start,
					EndPos:     trimmed,
					ChunkIndex: index,
				})
				index++
			}

			if next < 0 {
				break
			}
			pos = end + 2
		}

		if fragments == nil {
			fragments = []Fragment{}
		}
		return fragments, nil
	}
}

// scanSentences finds sentence boundaries as byte offsets. A sentence
// ends after '.', '!' or '?' followed by whitespace, at a blank line or
// at the end of the text. Offsets never include surrounding whitespace.
func scanSentences(text string) []span {
	var sentences []span
	start := -1

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if !isSpace(c) {
				start = i
			}
			continue
		}

		switch {
		case c == '.' || c == '!' || c == '?':
			if i+1 == len(text) || isSpace(text[i+1]) {
				sentences = append(sentences, span{start: start, end: i + 1})
				start = -1
			}
		case c == '\n' && i+1 < len(text) && text[i+1] == '\n':
			sentences = append(sentences, span{start: start, end: trimSpanEnd(text, i)})
			start = -1
		}
	}

	if start >= 0 {
		sentences = append(sentences, span{start: start, end: trimSpanEnd(text, len(text))})
	}
	return sentences
}

// hardSplit cuts one over-long sentence into target-sized pieces with
// the configured overlap, snapping cut points to rune starts.
func hardSplit(text string, s span, target int, overlap int) []Fragment {
	step := target - overlap
	if step <= 0 {
		step = target
	}

	var fragments []Fragment
	pos := s.start
	for pos < s.end {
		end := pos + target
		if end > s.end {
			end = s.end
		} else {
			end = snapRuneStart(text, end)
		}

		fragments = append(fragments, Fragment{
			Content:  text[pos:end],
			StartPos: pos,
			EndPos:   end,
		})
		if end == s.end {
			break
		}

		next := snapRuneStart(text, pos+step)
		if next <= pos {
			next = end
		}
		pos = next
	}
	return fragments
}

// snapRuneStart moves pos back to the nearest UTF-8 rune start.
func snapRuneStart(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

func trimSpanEnd(text string, end int) int {
	for end > 0 && isSpace(text[end-1]) {
		end--
	}
	return end
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
