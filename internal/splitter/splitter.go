// Package splitter implements boundary-aware content chunking (spec §4.3).
//
// Grounded on original_source/.../utils/content_splitter.py's split_content
// family, restructured in the shape of the teacher's internal/memory/chunker.go
// (Config/Chunk types, guard against zero-progress loops).
package splitter

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Config mirrors spec §4.3's parameters.
type Config struct {
	MaxLength          int
	Overlap            int
	PreserveBoundaries bool
}

// DefaultConfig matches the teacher's chunker defaults, reinterpreted as
// character-based backend limits rather than "should we chunk" heuristics.
func DefaultConfig() Config {
	return Config{MaxLength: 1000, Overlap: 100, PreserveBoundaries: true}
}

// Chunk is one piece of split content.
type Chunk struct {
	Content string
	Index   int
}

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// Split splits content into chunks per spec §4.3's exact algorithm:
//   - len(content) <= max: return [content]
//   - overlap >= max: configuration error
//   - preserve_boundaries = false: fixed-width sliding window
//   - otherwise: greedy boundary-aware split with priority order
//     double newline > single newline > sentence terminator > word boundary > hard cut
func Split(content string, cfg Config) ([]Chunk, error) {
	if content == "" {
		return nil, nil
	}
	if len(content) <= cfg.MaxLength {
		return []Chunk{{Content: content, Index: 0}}, nil
	}
	if cfg.Overlap >= cfg.MaxLength {
		return nil, fmt.Errorf("overlap (%d) must be smaller than max_length (%d)", cfg.Overlap, cfg.MaxLength)
	}

	if !cfg.PreserveBoundaries {
		return splitByCharacters(content, cfg), nil
	}
	return splitPreservingBoundaries(content, cfg), nil
}

func splitByCharacters(content string, cfg Config) []Chunk {
	var chunks []Chunk
	start := 0
	idx := 0
	for start < len(content) {
		end := start + cfg.MaxLength
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, Chunk{Content: content[start:end], Index: idx})
		idx++
		if end < len(content) {
			start = end - cfg.Overlap
		} else {
			start = end
		}
	}
	return chunks
}

func splitPreservingBoundaries(content string, cfg Config) []Chunk {
	var chunks []Chunk
	remaining := content
	idx := 0

	for remaining != "" {
		if len(remaining) <= cfg.MaxLength {
			chunks = append(chunks, Chunk{Content: remaining, Index: idx})
			break
		}

		splitPoint := findBestSplitPoint(remaining, cfg.MaxLength)
		chunk := strings.TrimRight(remaining[:splitPoint], " \t\n\r")
		chunks = append(chunks, Chunk{Content: chunk, Index: idx})
		idx++

		var nextStart int
		if splitPoint <= cfg.Overlap {
			// Not enough text to overlap without risking an infinite loop;
			// advance past the chunk without creating an overlap.
			nextStart = splitPoint
		} else {
			overlapStart := splitPoint - cfg.Overlap
			if cfg.Overlap > 0 && overlapStart > 0 {
				if spacePos := strings.IndexByte(remaining[overlapStart:splitPoint], ' '); spacePos != -1 {
					overlapStart += spacePos + 1
				}
			}
			nextStart = overlapStart
		}

		remaining = strings.TrimLeft(remaining[nextStart:], " \t\n\r")

		if remaining == "" || len(chunk) == 0 {
			break
		}
	}

	return chunks
}

// findBestSplitPoint returns the index in text[:maxLength] to cut at, using
// the priority order double-newline > newline > sentence end > space > hard
// cut (spec §4.3).
func findBestSplitPoint(text string, maxLength int) int {
	if len(text) <= maxLength {
		return len(text)
	}
	window := text[:maxLength]

	if pos := strings.LastIndex(window, "\n\n"); pos != -1 {
		return pos + 2
	}
	if pos := strings.LastIndex(window, "\n"); pos != -1 {
		return pos + 1
	}
	if matches := sentenceEnd.FindAllStringIndex(window, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		return last[0] + 1 // end of the punctuation rune, before the trailing whitespace/EOF group
	}
	if pos := strings.LastIndexByte(window, ' '); pos != -1 {
		return pos + 1
	}
	return maxLength
}

// EstimateChunksNeeded mirrors estimate_chunks_needed in the Python
// reference; used by tests to assert chunk-count correctness (spec
// invariant 8).
func EstimateChunksNeeded(contentLength, maxLength, overlap int) int {
	if contentLength <= 0 {
		return 0
	}
	if contentLength <= maxLength {
		return 1
	}
	effective := maxLength - overlap
	if effective <= 0 {
		return int(math.Ceil(float64(contentLength) / float64(maxLength)))
	}
	additional := math.Ceil(float64(contentLength-maxLength) / float64(effective))
	return 1 + int(additional)
}

// ValidateChunkLengths reports whether every chunk satisfies maxLength.
func ValidateChunkLengths(chunks []Chunk, maxLength int) bool {
	for _, c := range chunks {
		if len(c.Content) > maxLength {
			return false
		}
	}
	return true
}
