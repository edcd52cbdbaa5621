package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"multimodal-chat-be/internal/pkg/logger"
	"multimodal-chat-be/pkg/rag/normalize"
	"multimodal-chat-be/pkg/rag/retriever"
	"multimodal-chat-be/pkg/retrieval"
)

// DefaultTimeout bounds every retrieval path that processes an uploaded
// blob. A path that overruns it contributes an empty list, never an error.
const DefaultTimeout = 30 * time.Second

// Router fans a normalized turn out across every applicable retrieval path
// and fans the results back into per-modality buckets.
//
// The text-to-text path is the only fatal one: without it a text turn has no
// primary grounding at all. Every other path is enrichment and degrades to
// empty on error or timeout.
type Router struct {
	retriever *retriever.Retriever
	log       logger.ILogger
	timeout   time.Duration
	topK      int
}

func NewRouter(r *retriever.Retriever, log logger.ILogger) *Router {
	return &Router{
		retriever: r,
		log:       log,
		timeout:   DefaultTimeout,
		topK:      retriever.DefaultTopK,
	}
}

type path struct {
	name   string
	bucket string
	fatal  bool
	timed  bool
	run    func(ctx context.Context) ([]retrieval.Hit, error)
}

// Route executes all paths the turn's modalities call for. Within a bucket,
// path results are concatenated in a fixed declaration order regardless of
// which goroutine finished first, so fan-out affects latency only.
func (r *Router) Route(ctx context.Context, q *normalize.NormalizedQuery) (retrieval.Bucket, error) {
	ownerID := q.OwnerID
	paths := make([]path, 0, 9)

	if q.Text != "" {
		text := q.Text
		paths = append(paths,
			path{name: "text_to_text", bucket: retrieval.BucketText, fatal: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.TextChunks(ctx, text, ownerID, r.topK)
			}},
			path{name: "text_to_image", bucket: retrieval.BucketImage, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.ImagesFromText(ctx, text, ownerID, r.topK)
			}},
			path{name: "text_to_audio", bucket: retrieval.BucketAudio, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.AudioFromText(ctx, text, ownerID, r.topK)
			}},
		)
	}

	if q.HasImage() && q.ImageAnchor != nil {
		anchor := q.ImageAnchor
		paths = append(paths,
			path{name: "image_to_image", bucket: retrieval.BucketImage, timed: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.SimilarImages(ctx, anchor, ownerID, r.topK)
			}},
			path{name: "image_to_text", bucket: retrieval.BucketImageText, timed: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.TextFromImage(ctx, anchor.OCRText, ownerID, r.topK)
			}},
			path{name: "image_to_audio", bucket: retrieval.BucketAudio, timed: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.AudioFromImage(ctx, anchor.OCRText, ownerID, r.topK)
			}},
		)
	}

	if q.HasAudio() && q.Transcript != nil {
		transcript := q.Transcript.Transcript
		paths = append(paths,
			path{name: "audio_to_audio", bucket: retrieval.BucketAudio, timed: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.SimilarAudio(ctx, transcript, ownerID, r.topK)
			}},
			path{name: "audio_to_text", bucket: retrieval.BucketAudioText, timed: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.TextFromAudio(ctx, transcript, ownerID, r.topK)
			}},
			path{name: "audio_to_image", bucket: retrieval.BucketImage, timed: true, run: func(ctx context.Context) ([]retrieval.Hit, error) {
				return r.retriever.ImagesFromAudio(ctx, transcript, ownerID, r.topK)
			}},
		)
	}

	results := make([][]retrieval.Hit, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func(i int, p path) {
			defer wg.Done()

			runCtx := ctx
			if p.timed {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}

			hits, err := p.run(runCtx)
			if err != nil {
				if p.fatal {
					errs[i] = fmt.Errorf("%s: %w", p.name, err)
					return
				}
				r.log.Warn("router", "retrieval path degraded to empty", map[string]interface{}{
					"path":  p.name,
					"error": err.Error(),
				})
				return
			}
			results[i] = hits
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	bucket := retrieval.NewBucket()
	appendUploadHits(bucket, q)
	for i, p := range paths {
		bucket[p.bucket] = append(bucket[p.bucket], results[i]...)
	}
	return bucket, nil
}

// appendUploadHits seeds the upload-derived buckets with a synthetic item
// carrying the turn's own extracted text, so the uploaded media itself can
// ground the answer. These items are placeholders, not corpus evidence, and
// the confidence estimator skips them.
func appendUploadHits(bucket retrieval.Bucket, q *normalize.NormalizedQuery) {
	if q.ImageAnchor != nil && q.ImageAnchor.OCRText != "" {
		bucket[retrieval.BucketImageText] = append(bucket[retrieval.BucketImageText], retrieval.Hit{
			ID:         "upload:" + q.ImageRef,
			Modality:   retrieval.ModalityImage,
			FromUpload: true,
			Payload: retrieval.Payload{
				OCRText:   q.ImageAnchor.OCRText,
				SourceRef: q.ImageRef,
			},
		})
	}
	if q.Transcript != nil && q.Transcript.Transcript != "" {
		bucket[retrieval.BucketAudioText] = append(bucket[retrieval.BucketAudioText], retrieval.Hit{
			ID:         "upload:" + q.AudioRef,
			Modality:   retrieval.ModalityAudio,
			FromUpload: true,
			Payload: retrieval.Payload{
				Transcript: q.Transcript.Transcript,
				SourceRef:  q.AudioRef,
				Segments:   q.Transcript.Segments,
			},
		})
	}
}
