package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-chat-be/pkg/asr"
	"multimodal-chat-be/pkg/embedding/clip"
	"multimodal-chat-be/pkg/embedding/sparse"
	"multimodal-chat-be/pkg/rag/normalize"
	"multimodal-chat-be/pkg/rag/rerank"
	"multimodal-chat-be/pkg/rag/retriever"
	"multimodal-chat-be/pkg/retrieval"
	"multimodal-chat-be/pkg/vectorindex"
)

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}
func (noopLogger) Sync() error                                                  { return nil }

// routeIndex serves canned points keyed by collection and named vector, and
// can fail selected routes.
type routeIndex struct {
	mu      sync.Mutex
	results map[string][]vectorindex.Point
	errs    map[string]error
	slow    map[string]bool
}

func queryKey(q vectorindex.Query) string {
	return q.Collection + "/" + q.Using
}

func (f *routeIndex) Query(ctx context.Context, q vectorindex.Query) ([]vectorindex.Point, error) {
	key := queryKey(q)
	f.mu.Lock()
	slow := f.slow[key]
	err := f.errs[key]
	res := f.results[key]
	f.mu.Unlock()

	// A slow key never answers; it parks until the caller's deadline fires.
	if slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *routeIndex) Scroll(ctx context.Context, collection string, limit int) ([]vectorindex.Point, error) {
	return nil, nil
}

func (f *routeIndex) Capabilities() vectorindex.Capabilities {
	return vectorindex.Capabilities{}
}

type constEmbedder struct{}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constEmbedder) Dimension() int { return 2 }

func newTestRouter(t *testing.T, idx vectorindex.Index) *Router {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding": [1.0, 0.0]}`))
	}))
	t.Cleanup(srv.Close)

	emb := constEmbedder{}
	enc := sparse.NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
	clipEnc := clip.NewEncoder(srv.URL, nil, emb)
	ret := retriever.NewRetriever(idx, emb, enc, clipEnc, rerank.NewReranker(emb))
	return NewRouter(ret, noopLogger{})
}

func TestRoute_TextOnlyTurn(t *testing.T) {
	idx := &routeIndex{results: map[string][]vectorindex.Point{
		"text_collection/dense": {
			{ID: "t1", Score: 0.9, Payload: map[string]any{"text": "release checklist steps"}},
		},
		"image_collection/image": {
			{ID: "i1", Score: 0.5, Payload: map[string]any{"file_id": "f1"}},
		},
		"audio_collection/transcript": {
			{ID: "a1", Score: 0.6, Payload: map[string]any{"transcript": "release call notes"}},
		},
	}}
	r := newTestRouter(t, idx)

	q := &normalize.NormalizedQuery{OwnerID: "owner-1", Text: "what is the release checklist"}
	bucket, err := r.Route(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, bucket[retrieval.BucketText], 1)
	assert.Len(t, bucket[retrieval.BucketImage], 1)
	assert.Len(t, bucket[retrieval.BucketAudio], 1)
	assert.Empty(t, bucket[retrieval.BucketImageText])
	assert.Empty(t, bucket[retrieval.BucketAudioText])
}

func TestRoute_TextPathIsFatal(t *testing.T) {
	idx := &routeIndex{
		results: map[string][]vectorindex.Point{},
		errs: map[string]error{
			"text_collection/dense": errors.New("index unavailable"),
		},
	}
	r := newTestRouter(t, idx)

	q := &normalize.NormalizedQuery{OwnerID: "owner-1", Text: "anything at all really"}
	_, err := r.Route(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text_to_text")
}

func TestRoute_EnrichmentPathDegradesToEmpty(t *testing.T) {
	idx := &routeIndex{
		results: map[string][]vectorindex.Point{
			"text_collection/dense": {
				{ID: "t1", Score: 0.9, Payload: map[string]any{"text": "chunk"}},
			},
		},
		errs: map[string]error{
			"audio_collection/transcript": errors.New("index unavailable"),
		},
	}
	r := newTestRouter(t, idx)

	q := &normalize.NormalizedQuery{OwnerID: "owner-1", Text: "some query about the corpus"}
	bucket, err := r.Route(context.Background(), q)
	require.NoError(t, err)

	assert.Len(t, bucket[retrieval.BucketText], 1)
	assert.Empty(t, bucket[retrieval.BucketAudio])
}

func TestRoute_ImageTurnSeedsUploadHit(t *testing.T) {
	idx := &routeIndex{results: map[string][]vectorindex.Point{
		"text_collection/dense": {
			{ID: "t1", Score: 0.7, Payload: map[string]any{"text": "invoice processing policy for vendors"}},
		},
	}}
	r := newTestRouter(t, idx)

	q := &normalize.NormalizedQuery{
		OwnerID:  "owner-1",
		ImageRef: "tmp/sess/invoice.png",
		ImageAnchor: &clip.ImageEmbedding{
			Source:  clip.SourceOCRFallback,
			OCRText: "invoice total due by end of march",
		},
	}
	bucket, err := r.Route(context.Background(), q)
	require.NoError(t, err)

	// The synthetic upload item sits ahead of retrieved chunks.
	imageText := bucket[retrieval.BucketImageText]
	require.Len(t, imageText, 2)
	assert.True(t, imageText[0].FromUpload)
	assert.Equal(t, "upload:tmp/sess/invoice.png", imageText[0].ID)
	assert.Equal(t, "t1", imageText[1].ID)

	// OCR-fallback anchors live in the text space; image-to-image is skipped.
	assert.Empty(t, bucket[retrieval.BucketImage])
}

func TestRoute_AudioTurnSeedsUploadHit(t *testing.T) {
	idx := &routeIndex{results: map[string][]vectorindex.Point{}}
	r := newTestRouter(t, idx)

	q := &normalize.NormalizedQuery{
		OwnerID:  "owner-1",
		AudioRef: "tmp/sess/memo.mp3",
		Transcript: &asr.Transcription{
			Transcript: "action items from the planning call",
			Segments:   []retrieval.Segment{{Text: "action items", Start: 0, End: 2}},
		},
	}
	bucket, err := r.Route(context.Background(), q)
	require.NoError(t, err)

	audioText := bucket[retrieval.BucketAudioText]
	require.Len(t, audioText, 1)
	assert.True(t, audioText[0].FromUpload)
	assert.Equal(t, "action items from the planning call", audioText[0].Payload.Transcript)
	require.Len(t, audioText[0].Payload.Segments, 1)
}

func TestRoute_TimedPathTimeoutDegradesToEmpty(t *testing.T) {
	idx := &routeIndex{
		results: map[string][]vectorindex.Point{
			"audio_collection/transcript": {
				{ID: "a1", Score: 0.6, Payload: map[string]any{"transcript": "quarterly planning recording"}},
			},
		},
		slow: map[string]bool{
			"image_collection/ocr": true,
		},
	}
	r := newTestRouter(t, idx)
	r.timeout = 20 * time.Millisecond

	q := &normalize.NormalizedQuery{
		OwnerID:  "owner-1",
		AudioRef: "tmp/sess/memo.mp3",
		Transcript: &asr.Transcription{
			Transcript: "quarterly planning recording from last week",
		},
	}
	bucket, err := r.Route(context.Background(), q)
	require.NoError(t, err)

	// The overrunning audio-to-image path contributes nothing while the
	// audio-to-audio result still lands.
	assert.Empty(t, bucket[retrieval.BucketImage])
	require.Len(t, bucket[retrieval.BucketAudio], 1)
	assert.Equal(t, "a1", bucket[retrieval.BucketAudio][0].ID)
}
