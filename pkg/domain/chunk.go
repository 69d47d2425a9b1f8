package domain

// Chunk is a contiguous text span extracted from a document, the atomic
// unit of embedding and retrieval. Page is set only for paginated sources;
// Offset is the character offset of the span within the source text.
type Chunk struct {
	ID         ChunkID
	Text       string
	DocumentID DocumentID
	Page       *int
	Offset     int
}

// NewChunk creates a Chunk with a fresh id.
func NewChunk(text string, documentID DocumentID, page *int, offset int) Chunk {
	return Chunk{
		ID:         NewChunkID(),
		Text:       text,
		DocumentID: documentID,
		Page:       page,
		Offset:     offset,
	}
}
