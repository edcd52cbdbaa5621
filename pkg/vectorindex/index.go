package vectorindex

import "context"

// Collection and named sub-vector layout shared by all index backends.
const (
	TextCollection  = "text_collection"
	ImageCollection = "image_collection"
	AudioCollection = "audio_collection"

	VectorDense      = "dense"      // text_collection
	VectorSparse     = "sparse"     // text_collection
	VectorImage      = "image"      // image_collection (CLIP space)
	VectorOCR        = "ocr"        // image_collection (text space over OCR)
	VectorTranscript = "transcript" // audio_collection

	OwnerField = "owner_id"
)

// SparseVector is a weighted term-indicator vector.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Fusion selects how prefetch candidate sets are merged by the index.
type Fusion int

const (
	FusionNone Fusion = iota
	FusionRRF
)

// Prefetch is one candidate set gathered before fusion.
type Prefetch struct {
	Using  string
	Dense  []float32
	Sparse *SparseVector
	Limit  int
}

// Query is a single typed request against one collection.
// Exactly one of Dense/Sparse is set unless Prefetch+Fusion are used.
type Query struct {
	Collection string
	Using      string
	Dense      []float32
	Sparse     *SparseVector
	Prefetch   []Prefetch
	Fusion     Fusion
	OwnerID    string
	TopK       int
}

// Point is one ranked result with its stored payload.
type Point struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Capabilities reports what a backend can do natively. Callers degrade to
// dense-only search or in-process rank fusion when a capability is missing.
type Capabilities struct {
	Sparse       bool
	NativeFusion bool
}

// Index is the boundary to the vector search engine. Implementations must be
// safe for concurrent use and honor context cancellation on every call.
type Index interface {
	Query(ctx context.Context, q Query) ([]Point, error)
	// Scroll pages through a collection's payloads, used to build the sparse
	// encoder vocabulary.
	Scroll(ctx context.Context, collection string, limit int) ([]Point, error)
	Capabilities() Capabilities
}
