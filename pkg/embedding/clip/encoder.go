package clip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"multimodal-chat-be/pkg/embedding"
	"multimodal-chat-be/pkg/ocr"
)

// Embedding sources. OCR fallback vectors live in the text embedding space,
// not the CLIP space, so same-modality image search must skip them.
const (
	SourceRemote      = "remote"
	SourceOCRFallback = "ocr_fallback"
)

// ImageEmbedding is the result of embedding one image.
type ImageEmbedding struct {
	Vector  []float32
	Source  string
	OCRText string
}

// Encoder embeds images and text into the shared CLIP space via a remote
// encoder service, falling back to an OCR-text embedding when the encoder is
// unavailable.
type Encoder struct {
	baseURL      string
	client       *http.Client
	extractor    ocr.TextExtractor
	textEmbedder embedding.Provider
}

func NewEncoder(baseURL string, extractor ocr.TextExtractor, textEmbedder embedding.Provider) *Encoder {
	return &Encoder{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		extractor:    extractor,
		textEmbedder: textEmbedder,
	}
}

type embedImageRequest struct {
	ImageURL string `json:"image_url"`
}

type embedTextRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedImage embeds an image and extracts its OCR text. When the remote CLIP
// encoder fails, the OCR text is embedded in the text space instead so the
// upload can still contribute cross-modal signal.
func (e *Encoder) EmbedImage(ctx context.Context, imageURL string) (*ImageEmbedding, error) {
	ocrText := e.extractText(ctx, imageURL)

	vec, err := e.post(ctx, "/v1/embed/image", embedImageRequest{ImageURL: imageURL})
	if err == nil {
		return &ImageEmbedding{
			Vector:  embedding.Normalize(vec),
			Source:  SourceRemote,
			OCRText: ocrText,
		}, nil
	}

	if ocrText == "" {
		return nil, fmt.Errorf("image embedding failed and no OCR text available: %w", err)
	}
	textVec, embErr := e.textEmbedder.EmbedQuery(ctx, ocrText)
	if embErr != nil {
		return nil, fmt.Errorf("ocr fallback embedding failed: %w", embErr)
	}
	return &ImageEmbedding{
		Vector:  textVec,
		Source:  SourceOCRFallback,
		OCRText: ocrText,
	}, nil
}

// EmbedText embeds a text query into the CLIP image space for text-to-image
// search.
func (e *Encoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.post(ctx, "/v1/embed/text", embedTextRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return embedding.Normalize(vec), nil
}

func (e *Encoder) extractText(ctx context.Context, imageURL string) string {
	blocks, err := e.extractor.Extract(ctx, imageURL)
	if err != nil {
		return ""
	}
	return ocr.JoinBlocks(blocks)
}

func (e *Encoder) post(ctx context.Context, path string, body any) ([]float32, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clip encoder error: %s", string(bodyBytes))
	}

	var embedResp embedResponse
	if err := json.Unmarshal(bodyBytes, &embedResp); err != nil {
		return nil, err
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("clip encoder returned empty embedding")
	}
	return embedResp.Embedding, nil
}
