package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"multimodal-chat-be/pkg/retrieval"
)

// WhisperTranscriber implements Transcriber over a remote Whisper-compatible
// HTTP service.
type WhisperTranscriber struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

func NewWhisperTranscriber(baseURL string, apiKey string, model string) *WhisperTranscriber {
	if model == "" {
		model = "whisper-large-v3"
	}
	return &WhisperTranscriber{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type whisperRequest struct {
	AudioURL string `json:"audio_url"`
	Model    string `json:"model"`
}

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioRef string) (*Transcription, error) {
	jsonBody, err := json.Marshal(whisperRequest{AudioURL: audioRef, Model: t.Model})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/transcriptions", t.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription service error: %s", string(bodyBytes))
	}

	var whisperResp whisperResponse
	if err := json.Unmarshal(bodyBytes, &whisperResp); err != nil {
		return nil, err
	}

	segments := make([]retrieval.Segment, 0, len(whisperResp.Segments))
	for _, s := range whisperResp.Segments {
		segments = append(segments, retrieval.Segment{
			Text:  s.Text,
			Start: s.Start,
			End:   s.End,
		})
	}

	return &Transcription{
		Transcript: whisperResp.Text,
		Segments:   segments,
	}, nil
}
