package retrieval

import "sort"

// Modality identifies the kind of corpus item a hit points at.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// Segment is one timestamped slice of an audio transcript.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Payload carries the modality-specific fields of a hit behind one struct so
// downstream code never touches per-modality map keys.
type Payload struct {
	Text       string    `json:"text,omitempty"`       // raw chunk text (text modality)
	OCRText    string    `json:"ocr_text,omitempty"`   // extracted text (image modality)
	Transcript string    `json:"transcript,omitempty"` // extracted text (audio modality)
	SourceRef  string    `json:"source_ref,omitempty"` // filename, URL or file id
	Page       *int      `json:"page,omitempty"`
	Timestamp  *float64  `json:"timestamp,omitempty"`
	Segments   []Segment `json:"segments,omitempty"`
}

// Hit is a single retrieval result in any modality.
//
// Score is the index-assigned similarity. CombinedScore folds in the rerank
// signal when one was computable and equals Score otherwise; ordering within a
// bucket is always by CombinedScore.
type Hit struct {
	ID            string   `json:"id"`
	Modality      Modality `json:"modality"`
	Score         float64  `json:"score"`
	CombinedScore float64  `json:"combined_score"`
	Rank          int      `json:"-"` // original index-assigned rank, tie-break only
	FromUpload    bool     `json:"-"` // synthetic item derived from the turn's own upload
	Payload       Payload  `json:"payload"`
}

// Content returns the usable text of a hit regardless of modality.
// Empty means the hit cannot contribute a context snippet.
func (h Hit) Content() string {
	if h.Payload.Text != "" {
		return h.Payload.Text
	}
	if h.Payload.OCRText != "" {
		return h.Payload.OCRText
	}
	return h.Payload.Transcript
}

// SortByCombinedScore orders hits by descending CombinedScore, keeping the
// original index rank for equal scores.
func SortByCombinedScore(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].CombinedScore != hits[j].CombinedScore {
			return hits[i].CombinedScore > hits[j].CombinedScore
		}
		return hits[i].Rank < hits[j].Rank
	})
}

// Bucket names used by the router and assembler. ImageText and AudioText hold
// hits retrieved through text extracted from the turn's own uploads; they
// outrank the general buckets during assembly.
const (
	BucketImageText = "image_text"
	BucketAudioText = "audio_text"
	BucketText      = "text"
	BucketImage     = "image"
	BucketAudio     = "audio"
)

// Bucket maps a bucket name to its ordered hits.
type Bucket map[string][]Hit

// NewBucket returns a bucket with all known keys present and empty.
func NewBucket() Bucket {
	return Bucket{
		BucketImageText: {},
		BucketAudioText: {},
		BucketText:      {},
		BucketImage:     {},
		BucketAudio:     {},
	}
}

// Citation points one [n] marker in the assembled context at its source.
type Citation struct {
	ID        int       `json:"id"`
	Modality  Modality  `json:"modality"`
	FileID    string    `json:"file_id,omitempty"`
	Page      *int      `json:"page,omitempty"`
	Timestamp *float64  `json:"timestamp,omitempty"`
	Segments  []Segment `json:"segments,omitempty"`
	Snippet   string    `json:"snippet,omitempty"`
}
