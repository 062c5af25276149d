// Package chunk splits document text into bounded-size overlapping
// segments suitable for embedding.
//
// Splitting prefers natural boundaries: the last paragraph break inside
// the window wins, then the last sentence break, then a hard cut at the
// window edge. Identical input and parameters always yield the identical
// sequence, so re-ingestion is reproducible.
package chunk

import (
	"fmt"
)

// Split divides text into chunks of at most size runes. The trailing
// overlap runes of each chunk are repeated as the leading runes of the
// next, 0 <= overlap < size.
//
// Empty input yields zero chunks; any non-empty input yields at least one.
// Concatenating the chunks with the overlap removed reconstructs the
// input exactly.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks, nil
		}

		cut := findCut(runes, start+overlap+1, end)
		chunks = append(chunks, string(runes[start:cut]))

		// The overlap must stay behind the cut so every step advances.
		start = cut - overlap
	}
}

// findCut returns the split position in (lo-1, hi], preferring the last
// paragraph break, then the last sentence break, then hi (hard cut).
// A cut below lo would stall the scan once the overlap is subtracted.
func findCut(runes []rune, lo, hi int) int {
	lastParagraph := -1
	lastSentence := -1

	for i := lo - 1; i < hi; i++ {
		if i+1 < len(runes) && runes[i] == '\n' && runes[i+1] == '\n' {
			if cut := i + 2; cut >= lo && cut <= hi {
				lastParagraph = cut
			}
			continue
		}
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			if cut := i + 2; cut >= lo && cut <= hi {
				lastSentence = cut
			}
		}
	}

	if lastParagraph >= 0 {
		return lastParagraph
	}
	if lastSentence >= 0 {
		return lastSentence
	}
	return hi
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
