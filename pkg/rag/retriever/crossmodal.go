package retriever

import (
	"context"
	"fmt"
	"strings"

	"multimodal-chat-be/pkg/embedding/clip"
	"multimodal-chat-be/pkg/retrieval"
	"multimodal-chat-be/pkg/vectorindex"
)

// minTranscriptChars guards audio-anchored paths against empty or garbage
// transcriptions.
const minTranscriptChars = 5

// SimilarImages finds images near the anchor in CLIP space and reranks them
// against the anchor's OCR text. Anchors embedded through the OCR fallback
// live in the text space, not the CLIP space, so same-modality search is
// skipped for them.
func (r *Retriever) SimilarImages(ctx context.Context, anchor *clip.ImageEmbedding, ownerID string, topK int) ([]retrieval.Hit, error) {
	if anchor == nil || anchor.Source == clip.SourceOCRFallback {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.ImageCollection,
		Using:      vectorindex.VectorImage,
		Dense:      anchor.Vector,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("image-to-image search: %w", err)
	}
	hits := r.reranker.ImageHits(ctx, anchor.OCRText, imageHits(points))
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// TextFromImage searches text chunks with the anchor's OCR text embedded in
// the dense text space, then reranks by lexical overlap with that OCR text.
// No OCR text means no path.
func (r *Retriever) TextFromImage(ctx context.Context, anchorOCR, ownerID string, topK int) ([]retrieval.Hit, error) {
	if anchorOCR == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.EmbedQuery(ctx, anchorOCR)
	if err != nil {
		return nil, fmt.Errorf("embed ocr text: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.TextCollection,
		Using:      vectorindex.VectorDense,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("image-to-text search: %w", err)
	}
	hits := r.reranker.TextHits(anchorOCR, textHits(points))
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// AudioFromImage searches audio transcripts with the anchor's OCR text.
func (r *Retriever) AudioFromImage(ctx context.Context, anchorOCR, ownerID string, topK int) ([]retrieval.Hit, error) {
	if anchorOCR == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.EmbedQuery(ctx, anchorOCR)
	if err != nil {
		return nil, fmt.Errorf("embed ocr text: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.AudioCollection,
		Using:      vectorindex.VectorTranscript,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("image-to-audio search: %w", err)
	}
	return audioHits(points), nil
}

// SimilarAudio finds audio items whose transcripts are near the anchor
// transcript. Transcripts below the length floor abort the path.
func (r *Retriever) SimilarAudio(ctx context.Context, transcript, ownerID string, topK int) ([]retrieval.Hit, error) {
	if len(strings.TrimSpace(transcript)) < minTranscriptChars {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.EmbedQuery(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("embed transcript: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.AudioCollection,
		Using:      vectorindex.VectorTranscript,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("audio-to-audio search: %w", err)
	}
	return audioHits(points), nil
}

// TextFromAudio searches text chunks with the anchor transcript.
func (r *Retriever) TextFromAudio(ctx context.Context, transcript, ownerID string, topK int) ([]retrieval.Hit, error) {
	if len(strings.TrimSpace(transcript)) < minTranscriptChars {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.EmbedQuery(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("embed transcript: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.TextCollection,
		Using:      vectorindex.VectorDense,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("audio-to-text search: %w", err)
	}
	return textHits(points), nil
}

// ImagesFromAudio searches the OCR text space of the image collection with
// the anchor transcript, matching spoken content to text visible in images.
func (r *Retriever) ImagesFromAudio(ctx context.Context, transcript, ownerID string, topK int) ([]retrieval.Hit, error) {
	if len(strings.TrimSpace(transcript)) < minTranscriptChars {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	vec, err := r.embedder.EmbedQuery(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("embed transcript: %w", err)
	}
	points, err := r.index.Query(ctx, vectorindex.Query{
		Collection: vectorindex.ImageCollection,
		Using:      vectorindex.VectorOCR,
		Dense:      vec,
		OwnerID:    ownerID,
		TopK:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("audio-to-image search: %w", err)
	}
	return imageHits(points), nil
}
