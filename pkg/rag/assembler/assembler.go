package assembler

import (
	"fmt"
	"strings"

	"multimodal-chat-be/pkg/retrieval"
)

const (
	// snippetBudget caps each context snippet. Uncapped OCR dumps and
	// transcripts would crowd everything else out of the prompt.
	snippetBudget = 400

	// perBucketLimit is how many items of each bucket may contribute.
	perBucketLimit = 3
)

// bucketOrder is the assembly priority. Text extracted from the turn's own
// uploads outranks every general-collection bucket.
var bucketOrder = []string{
	retrieval.BucketImageText,
	retrieval.BucketAudioText,
	retrieval.BucketText,
	retrieval.BucketImage,
	retrieval.BucketAudio,
}

// Assemble merges router output into one evidence block plus its citations.
//
// Citation ids are contiguous from 1 in block order. Items with no usable
// text are skipped without consuming an id. Duplicates are suppressed by
// (modality, source ref): the first occurrence, which sits in the higher
// priority bucket, wins.
func Assemble(bucket retrieval.Bucket) (string, []retrieval.Citation) {
	var blocks []string
	var citations []retrieval.Citation
	seen := make(map[string]struct{})
	idx := 1

	for _, name := range bucketOrder {
		items := bucket[name]
		taken := 0
		for _, item := range items {
			if taken == perBucketLimit {
				break
			}

			content := item.Content()
			if content == "" {
				continue
			}

			key := string(item.Modality) + "|" + item.Payload.SourceRef + "|" + item.ID
			if item.Payload.SourceRef != "" {
				key = string(item.Modality) + "|" + item.Payload.SourceRef
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			taken++

			snippet := content
			if len(snippet) > snippetBudget {
				runes := []rune(snippet)
				if len(runes) > snippetBudget {
					runes = runes[:snippetBudget]
				}
				snippet = string(runes)
			}

			blocks = append(blocks, fmt.Sprintf("[%d] %s", idx, snippet))
			citations = append(citations, retrieval.Citation{
				ID:        idx,
				Modality:  citationModality(name, item.Modality),
				FileID:    item.Payload.SourceRef,
				Page:      item.Payload.Page,
				Timestamp: item.Payload.Timestamp,
				Segments:  item.Payload.Segments,
				Snippet:   snippet,
			})
			idx++
		}
	}

	return strings.Join(blocks, "\n\n"), citations
}

// citationModality maps the upload-derived buckets back to the modality of
// the media they came from.
func citationModality(bucketName string, m retrieval.Modality) retrieval.Modality {
	switch bucketName {
	case retrieval.BucketImageText:
		return retrieval.ModalityImage
	case retrieval.BucketAudioText:
		return retrieval.ModalityAudio
	}
	return m
}
