package archiver

// ChunkSplitter splits text into overlapping rune windows so long articles
// stay under embedding model limits while keeping context at the seams.
type ChunkSplitter struct {
	Size    int
	Overlap int
}

// NewChunkSplitter creates a splitter. Overlap is clamped below Size.
func NewChunkSplitter(size, overlap int) *ChunkSplitter {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &ChunkSplitter{Size: size, Overlap: overlap}
}

// Split returns the chunks in order. Short text yields a single chunk;
// empty text yields none.
func (s *ChunkSplitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.Size {
		return []string{text}
	}

	step := s.Size - s.Overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.Size
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
