package rerank

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"

	"multimodal-chat-be/pkg/embedding"
	"multimodal-chat-be/pkg/retrieval"
)

const (
	// minTokens is the floor below which extracted text is too noisy to
	// carry a rerank signal.
	minTokens = 5

	// maxCacheEntries bounds the embedding cache. On overflow the whole
	// cache is flushed rather than evicting piecemeal.
	maxCacheEntries = 1000

	imageBaseWeight = 0.75
	imageTextWeight = 0.25

	textBaseWeight    = 0.9
	textOverlapWeight = 0.1
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "with": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "it": {}, "this": {}, "that": {}, "these": {},
	"those": {},
}

// Reranker reorders retrieval hits by blending the index similarity with a
// secondary text signal taken from OCR or transcript content.
type Reranker struct {
	embedder embedding.Provider
	cache    *cache.Cache
}

func NewReranker(embedder embedding.Provider) *Reranker {
	return &Reranker{
		embedder: embedder,
		cache:    cache.New(cache.NoExpiration, 0),
	}
}

// GoodText reports whether extracted text is long enough to rerank on.
func GoodText(text string) bool {
	return len(strings.Fields(text)) >= minTokens
}

// TokenOverlap is a stopword-filtered lexical similarity in [0,1]:
// the intersection size over the geometric mean of the two token sets.
func TokenOverlap(query, candidate string) float64 {
	qt := tokenSet(query)
	ct := tokenSet(candidate)
	if len(qt) == 0 || len(ct) == 0 {
		return 0.0
	}
	inter := 0
	for t := range qt {
		if _, ok := ct[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qt))*float64(len(ct)))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopwords[t]; !stop {
			set[t] = struct{}{}
		}
	}
	return set
}

// embedCached returns the normalized embedding of text, serving repeats from
// the bounded cache.
func (r *Reranker) embedCached(ctx context.Context, text string) ([]float32, error) {
	if v, ok := r.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	vec = embedding.Normalize(vec)
	if r.cache.ItemCount() >= maxCacheEntries {
		r.cache.Flush()
	}
	r.cache.Set(text, vec, cache.NoExpiration)
	return vec, nil
}

// ImageHits reranks image-to-image results. The anchor image's OCR text is
// embedded and compared against each candidate's OCR text in the text space;
// candidates whose OCR is absent or too short keep their base score.
// Embedding failures degrade to the base score instead of failing the search.
func (r *Reranker) ImageHits(ctx context.Context, anchorOCR string, hits []retrieval.Hit) []retrieval.Hit {
	if !GoodText(anchorOCR) {
		return sorted(hits)
	}
	anchorVec, err := r.embedCached(ctx, anchorOCR)
	if err != nil {
		return sorted(hits)
	}

	for i := range hits {
		hits[i].CombinedScore = hits[i].Score
		candOCR := hits[i].Payload.OCRText
		if !GoodText(candOCR) {
			continue
		}
		candVec, err := r.embedCached(ctx, candOCR)
		if err != nil {
			continue
		}
		textScore := embedding.Cosine(anchorVec, candVec)
		if textScore > 0 {
			hits[i].CombinedScore = imageBaseWeight*hits[i].Score + imageTextWeight*textScore
		}
	}
	return sorted(hits)
}

// TextHits reranks image-to-text results by lexical overlap between the
// anchor OCR text and each chunk. Anchors shorter than the token floor skip
// the overlap term entirely.
func (r *Reranker) TextHits(anchorOCR string, hits []retrieval.Hit) []retrieval.Hit {
	useOverlap := GoodText(anchorOCR)
	for i := range hits {
		overlap := 0.0
		if useOverlap {
			overlap = TokenOverlap(anchorOCR, hits[i].Payload.Text)
		}
		hits[i].CombinedScore = textBaseWeight*hits[i].Score + textOverlapWeight*overlap
	}
	return sorted(hits)
}

func sorted(hits []retrieval.Hit) []retrieval.Hit {
	for i := range hits {
		if hits[i].CombinedScore == 0 && hits[i].Score != 0 {
			hits[i].CombinedScore = hits[i].Score
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].CombinedScore != hits[j].CombinedScore {
			return hits[i].CombinedScore > hits[j].CombinedScore
		}
		return hits[i].Rank < hits[j].Rank
	})
	return hits
}
