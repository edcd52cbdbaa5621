package retriever

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"multimodal-chat-be/pkg/embedding"
	"multimodal-chat-be/pkg/embedding/clip"
	"multimodal-chat-be/pkg/embedding/sparse"
	"multimodal-chat-be/pkg/rag/rerank"
	"multimodal-chat-be/pkg/retrieval"
	"multimodal-chat-be/pkg/vectorindex"
)

const (
	// DefaultTopK is the per-path result budget.
	DefaultTopK = 5

	// prefetchLimit is the candidate pool gathered per representation
	// before rank fusion.
	prefetchLimit = 50

	// Score floors. Sparse TF-IDF scores live on a much lower scale than
	// cosine similarities, and CLIP cross-modal scores run lower still.
	sparseFloor = 0.08

	denseFloorShort = 0.30 // <= 2 tokens
	denseFloorLong  = 0.38

	clipFloorShort  = 0.20 // <= 3 words
	clipFloorMedium = 0.18 // <= 8 words
	clipFloorLong   = 0.15
)

// Retriever runs every retrieval path against the vector index. Anchor
// content (uploaded image embeddings, audio transcripts) is computed once by
// the caller and passed in, so fan-out paths sharing an anchor never repeat
// the extraction work.
type Retriever struct {
	index    vectorindex.Index
	embedder embedding.Provider
	sparse   *sparse.TfidfEncoder
	clip     *clip.Encoder
	reranker *rerank.Reranker
}

func NewRetriever(
	index vectorindex.Index,
	embedder embedding.Provider,
	sparseEnc *sparse.TfidfEncoder,
	clipEnc *clip.Encoder,
	reranker *rerank.Reranker,
) *Retriever {
	return &Retriever{
		index:    index,
		embedder: embedder,
		sparse:   sparseEnc,
		clip:     clipEnc,
		reranker: reranker,
	}
}

// IsEntityQuery reports whether a query looks like a named entity lookup:
// one to three tokens, each starting with an uppercase letter. Such queries
// are routed to sparse-only search for exact-term precision.
func IsEntityQuery(query string) bool {
	tokens := strings.Fields(strings.TrimSpace(query))
	if len(tokens) < 1 || len(tokens) > 3 {
		return false
	}
	for _, t := range tokens {
		r, _ := utf8.DecodeRuneInString(t)
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func denseFloor(query string) float64 {
	if len(strings.Fields(query)) <= 2 {
		return denseFloorShort
	}
	return denseFloorLong
}

func clipFloor(query string) float64 {
	switch words := len(strings.Fields(query)); {
	case words <= 3:
		return clipFloorShort
	case words <= 8:
		return clipFloorMedium
	default:
		return clipFloorLong
	}
}

// applyFloor drops hits scoring under the floor, falling back to the
// unfiltered list when the floor would empty the result entirely.
func applyFloor(hits []retrieval.Hit, floor float64) []retrieval.Hit {
	filtered := make([]retrieval.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= floor {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		return hits
	}
	return filtered
}

// TextChunks runs the adaptive hybrid search over the text collection.
//
// Entity-shaped queries go sparse-only when the encoder is fitted and the
// backend supports sparse vectors. Everything else runs dense+sparse fusion,
// natively when the backend fuses prefetch sets itself, otherwise via
// in-process reciprocal rank fusion. Before the sparse vocabulary is fitted,
// and on backends without sparse support, search degrades to dense-only.
func (r *Retriever) TextChunks(ctx context.Context, query, ownerID string, topK int) ([]retrieval.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	caps := r.index.Capabilities()
	sparseReady := r.sparse.IsFitted() && caps.Sparse

	if IsEntityQuery(query) && sparseReady {
		sv, err := r.sparse.Encode(query)
		if err != nil {
			return nil, fmt.Errorf("encode sparse query: %w", err)
		}
		points, err := r.index.Query(ctx, vectorindex.Query{
			Collection: vectorindex.TextCollection,
			Using:      vectorindex.VectorSparse,
			Sparse:     &vectorindex.SparseVector{Indices: sv.Indices, Values: sv.Values},
			OwnerID:    ownerID,
			TopK:       topK,
		})
		if err != nil {
			return nil, fmt.Errorf("sparse text search: %w", err)
		}
		return applyFloor(textHits(points), sparseFloor), nil
	}

	dense, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var points []vectorindex.Point
	switch {
	case sparseReady && caps.NativeFusion:
		points, err = r.hybridNative(ctx, query, dense, ownerID, topK)
	case sparseReady:
		points, err = r.hybridRRF(ctx, query, dense, ownerID, topK)
	default:
		points, err = r.denseOnly(ctx, dense, ownerID, topK)
	}
	if err != nil {
		return nil, err
	}
	return applyFloor(textHits(points), denseFloor(query)), nil
}

func (r *Retriever) hybridNative(ctx context.Context, query string, dense []float32, ownerID string, topK int) ([]vectorindex.Point, error) {
	sv, err := r.sparse.Encode(query)
	if err != nil {
		return nil, fmt.Errorf("encode sparse query: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.TextCollection,
		Prefetch: []vectorindex.Prefetch{
			{Using: vectorindex.VectorDense, Dense: dense, Limit: prefetchLimit},
			{Using: vectorindex.VectorSparse, Sparse: &vectorindex.SparseVector{Indices: sv.Indices, Values: sv.Values}, Limit: prefetchLimit},
		},
		Fusion:  vectorindex.FusionRRF,
		OwnerID: ownerID,
		TopK:    topK,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid text search: %w", err)
	}
	return points, nil
}

func (r *Retriever) hybridRRF(ctx context.Context, query string, dense []float32, ownerID string, topK int) ([]vectorindex.Point, error) {
	sv, err := r.sparse.Encode(query)
	if err != nil {
		return nil, fmt.Errorf("encode sparse query: %w", err)
	}

	densePoints, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.TextCollection,
		Using:      vectorindex.VectorDense,
		Dense:      dense,
		OwnerID:    ownerID,
		TopK:       prefetchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("dense prefetch: %w", err)
	}
	sparsePoints, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.TextCollection,
		Using:      vectorindex.VectorSparse,
		Sparse:     &vectorindex.SparseVector{Indices: sv.Indices, Values: sv.Values},
		OwnerID:    ownerID,
		TopK:       prefetchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("sparse prefetch: %w", err)
	}

	return fuseRRF([][]vectorindex.Point{densePoints, sparsePoints}, topK), nil
}

func (r *Retriever) denseOnly(ctx context.Context, dense []float32, ownerID string, topK int) ([]vectorindex.Point, error) {
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.TextCollection,
		Using:      vectorindex.VectorDense,
		Dense:      dense,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("dense text search: %w", err)
	}
	return points, nil
}

// ImagesFromText searches the CLIP image space with an encoded text query.
// Twice the budget is fetched so the floor has candidates to discard; the
// final list is capped back to topK.
func (r *Retriever) ImagesFromText(ctx context.Context, query, ownerID string, topK int) ([]retrieval.Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.clip.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clip text embedding: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.ImageCollection,
		Using:      vectorindex.VectorImage,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("text-to-image search: %w", err)
	}
	hits := applyFloor(imageHits(points), clipFloor(query))
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// AudioFromText searches audio transcripts with the dense text embedding.
func (r *Retriever) AudioFromText(ctx context.Context, query, ownerID string, topK int) ([]retrieval.Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.AudioCollection,
		Using:      vectorindex.VectorTranscript,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("text-to-audio search: %w", err)
	}
	return audioHits(points), nil
}
