package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VisionExtractor implements TextExtractor over a vision OCR HTTP service.
type VisionExtractor struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewVisionExtractor(baseURL string, apiKey string) *VisionExtractor {
	return &VisionExtractor{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type visionRequest struct {
	ImageURL string `json:"image_url"`
}

type visionResponse struct {
	Blocks []struct {
		Text        string     `json:"text"`
		BoundingBox [4]float64 `json:"bounding_box"`
	} `json:"blocks"`
}

func (e *VisionExtractor) Extract(ctx context.Context, imageRef string) ([]Block, error) {
	jsonBody, err := json.Marshal(visionRequest{ImageURL: imageRef})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/ocr", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

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
		return nil, fmt.Errorf("ocr service error: %s", string(bodyBytes))
	}

	var visionResp visionResponse
	if err := json.Unmarshal(bodyBytes, &visionResp); err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(visionResp.Blocks))
	for _, b := range visionResp.Blocks {
		blocks = append(blocks, Block{
			Text:        b.Text,
			BoundingBox: b.BoundingBox,
		})
	}
	return blocks, nil
}
