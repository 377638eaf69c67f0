package service

// Chunker splits transcripts into fixed-size overlapping windows. It is a
// pure function of its inputs: the same transcript always yields the same
// chunk sequence, which keeps re-embedding runs reproducible.
type Chunker struct {
	size    int // window length in runes
	overlap int // runes shared between consecutive windows
}

// NewChunker creates a Chunker. Overlap must be smaller than size; the
// constructor trusts config validation to have enforced that.
func NewChunker(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts text into windows of at most size runes, each starting
// size-overlap runes after the previous one. The final window may be
// shorter; it is never empty. Empty or whitespace-free-empty input yields
// no chunks.
// Parameters:
//   - text: transcript text to split.
// Returns:
//   - []string: ordered windows covering the whole input.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
