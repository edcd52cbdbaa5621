package confidence

import "multimodal-chat-be/pkg/retrieval"

const (
	// minItems is the fewest corpus-grounded items a confident answer needs.
	minItems = 2

	// scoreFloor is the weakest top score still considered grounded.
	scoreFloor = 0.20
)

// IsLow reports whether retrieval produced too little corpus evidence to
// answer confidently. Synthetic items derived from the turn's own uploads
// are not corpus grounding and are ignored. The flag only adds a disclaimer
// downstream; it never blocks answer generation.
func IsLow(bucket retrieval.Bucket) bool {
	count := 0
	maxScore := 0.0

	for _, hits := range bucket {
		for _, h := range hits {
			if h.FromUpload {
				continue
			}
			count++
			if h.CombinedScore > maxScore {
				maxScore = h.CombinedScore
			}
		}
	}

	return count < minItems || maxScore < scoreFloor
}
