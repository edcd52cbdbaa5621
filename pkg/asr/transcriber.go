package asr

import (
	"context"

	"multimodal-chat-be/pkg/retrieval"
)

// Transcription is the unified ASR result.
type Transcription struct {
	Transcript string              `json:"transcript"`
	Segments   []retrieval.Segment `json:"segments"`
}

// Transcriber turns an audio file referenced by URL into text.
// Implementations must be safe for concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (*Transcription, error)
}
