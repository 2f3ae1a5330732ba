package ingest

// Record is one decoded input record: the typed form used by the
// structured filters and the generic form that gets flattened.
type Record[R any] struct {
	Value R
	Raw   any
}

// ChunkedBatch holds the chunk texts of a batch of records. Links[i] is the
// position in Records of the record chunk i came from.
type ChunkedBatch[R any] struct {
	Records []R
	Chunks  []string
	Links   []int
}

// EmbeddedBatch is a chunked batch with one embedding per chunk.
type EmbeddedBatch[R any] struct {
	ChunkedBatch[R]
	Embeddings [][]float32
}
