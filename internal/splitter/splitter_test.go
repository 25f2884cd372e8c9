package splitter

import (
	"strings"
	"testing"
)

func TestSplitShortContentUnchanged(t *testing.T) {
	chunks, err := Split("short", DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "short" {
		t.Fatalf("expected single unchanged chunk, got %+v", chunks)
	}
}

func TestSplitRejectsOverlapTooLarge(t *testing.T) {
	content := strings.Repeat("a", 2000)
	_, err := Split(content, Config{MaxLength: 100, Overlap: 100, PreserveBoundaries: true})
	if err == nil {
		t.Fatal("expected configuration error when overlap >= max_length")
	}
}

func TestSplitPreservingParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("word ", 40) // ~200 chars
	content := para + "\n\n" + para + "\n\n" + para
	cfg := Config{MaxLength: 250, Overlap: 20, PreserveBoundaries: true}
	chunks, err := Split(content, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ValidateChunkLengths(chunks, cfg.MaxLength) {
		t.Fatalf("some chunk exceeds max length: %+v", chunks)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

func TestSplitNoBoundariesSlidingWindow(t *testing.T) {
	content := strings.Repeat("x", 500)
	cfg := Config{MaxLength: 100, Overlap: 10, PreserveBoundaries: false}
	chunks, err := Split(content, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ValidateChunkLengths(chunks, cfg.MaxLength) {
		t.Fatalf("chunk exceeds max length")
	}
	want := EstimateChunksNeeded(len(content), cfg.MaxLength, cfg.Overlap)
	if len(chunks) != want {
		t.Fatalf("expected %d chunks, got %d", want, len(chunks))
	}
}

func TestEstimateChunksNeeded(t *testing.T) {
	cases := []struct {
		length, max, overlap, want int
	}{
		{0, 100, 0, 0},
		{50, 100, 0, 1},
		{2050, 800, 50, 3},
	}
	for _, c := range cases {
		got := EstimateChunksNeeded(c.length, c.max, c.overlap)
		if got != c.want {
			t.Errorf("EstimateChunksNeeded(%d,%d,%d) = %d, want %d", c.length, c.max, c.overlap, got, c.want)
		}
	}
}

func TestSplitNeverLosesProgress(t *testing.T) {
	content := strings.Repeat("a", 300)
	cfg := Config{MaxLength: 50, Overlap: 49, PreserveBoundaries: true}
	chunks, err := Split(content, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if !ValidateChunkLengths(chunks, cfg.MaxLength) {
		t.Fatalf("chunk exceeds max length")
	}
}
