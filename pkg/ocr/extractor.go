package ocr

import "context"

// Block is one region of recognized text with its bounding box
// as [x1, y1, x2, y2] in pixel coordinates.
type Block struct {
	Text        string     `json:"text"`
	BoundingBox [4]float64 `json:"bounding_box"`
}

// TextExtractor recognizes text in an image referenced by URL.
// Implementations must be safe for concurrent use.
type TextExtractor interface {
	Extract(ctx context.Context, imageRef string) ([]Block, error)
}

// JoinBlocks flattens extracted blocks into one whitespace-joined string.
func JoinBlocks(blocks []Block) string {
	out := ""
	for _, b := range blocks {
		if b.Text == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += b.Text
	}
	return out
}
