package normalize

import (
	"context"
	"fmt"
	"io"
	"strings"

	"multimodal-chat-be/internal/pkg/logger"
	"multimodal-chat-be/pkg/asr"
	"multimodal-chat-be/pkg/embedding/clip"
	"multimodal-chat-be/pkg/rag/session"
	"multimodal-chat-be/pkg/storage"
)

// Upload is one media file attached to a turn.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// NormalizedQuery is the immutable view of a turn the router works from.
// Anchor content (image embedding, transcript) is extracted exactly once
// here so the fan-out paths never repeat OCR or transcription work.
type NormalizedQuery struct {
	OwnerID string
	Text    string

	ImageRef string
	AudioRef string

	ImageAnchor *clip.ImageEmbedding
	Transcript  *asr.Transcription
}

// HasImage reports whether the turn carries an image upload.
func (q *NormalizedQuery) HasImage() bool { return q.ImageRef != "" }

// HasAudio reports whether the turn carries an audio upload.
func (q *NormalizedQuery) HasAudio() bool { return q.AudioRef != "" }

// Normalizer builds the NormalizedQuery for a turn: uploads blobs to temp
// storage, tracks the handles on the session, and folds extracted text into
// the query text.
type Normalizer struct {
	store       storage.ObjectStore
	clip        *clip.Encoder
	transcriber asr.Transcriber
	log         logger.ILogger
}

func NewNormalizer(store storage.ObjectStore, clipEnc *clip.Encoder, transcriber asr.Transcriber, log logger.ILogger) *Normalizer {
	return &Normalizer{
		store:       store,
		clip:        clipEnc,
		transcriber: transcriber,
		log:         log,
	}
}

// Normalize processes a turn's raw inputs. Image extraction failures degrade
// with a warning since the text query can still carry the turn; a failed
// transcription on an audio-only turn is fatal because nothing else could
// ground the answer.
func (n *Normalizer) Normalize(ctx context.Context, sess *session.Session, message string, image, audio *Upload) (*NormalizedQuery, error) {
	q := &NormalizedQuery{
		OwnerID: sess.OwnerID,
		Text:    message,
	}

	if image != nil {
		key, err := n.store.PutTemp(ctx, sess.ID, image.Filename, image.Body, image.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store image upload: %w", err)
		}
		q.ImageRef = key
		sess.TempAssets.Images = append(sess.TempAssets.Images, key)

		anchor, err := n.clip.EmbedImage(ctx, n.store.URL(key))
		if err != nil {
			n.log.Warn("normalize", "image extraction failed, continuing without anchor", map[string]interface{}{
				"session_id": sess.ID,
				"error":      err.Error(),
			})
		} else {
			q.ImageAnchor = anchor
			if anchor.OCRText != "" {
				q.Text += " " + anchor.OCRText
			}
		}
	}

	if audio != nil {
		key, err := n.store.PutTemp(ctx, sess.ID, audio.Filename, audio.Body, audio.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store audio upload: %w", err)
		}
		q.AudioRef = key
		sess.TempAssets.Audio = append(sess.TempAssets.Audio, key)

		tr, err := n.transcriber.Transcribe(ctx, n.store.URL(key))
		if err != nil {
			if strings.TrimSpace(message) == "" && image == nil {
				return nil, fmt.Errorf("transcribe audio upload: %w", err)
			}
			n.log.Warn("normalize", "transcription failed, continuing without transcript", map[string]interface{}{
				"session_id": sess.ID,
				"error":      err.Error(),
			})
		} else {
			q.Transcript = tr
			if tr.Transcript != "" {
				q.Text += " " + tr.Transcript
			}
		}
	}

	q.Text = strings.TrimSpace(q.Text)
	return q, nil
}
