package retriever

import (
	"sort"

	"multimodal-chat-be/pkg/retrieval"
	"multimodal-chat-be/pkg/vectorindex"
)

// rrfK is the rank-smoothing constant of reciprocal rank fusion.
const rrfK = 60

// fuseRRF merges candidate lists by reciprocal rank: each point contributes
// 1/(k + rank) per list it appears in, ranks counted from 1. Ties break on
// the order of first appearance, so fusing identical lists is stable.
func fuseRRF(lists [][]vectorindex.Point, topK int) []vectorindex.Point {
	type entry struct {
		point vectorindex.Point
		score float64
		seen  int
	}
	byID := make(map[string]*entry)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, p := range list {
			e, ok := byID[p.ID]
			if !ok {
				e = &entry{point: p, seen: len(order)}
				byID[p.ID] = e
				order = append(order, p.ID)
			}
			e.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	fused := make([]*entry, 0, len(byID))
	for _, id := range order {
		fused = append(fused, byID[id])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].seen < fused[j].seen
	})

	out := make([]vectorindex.Point, 0, topK)
	for _, e := range fused {
		if len(out) == topK {
			break
		}
		p := e.point
		p.Score = e.score
		out = append(out, p)
	}
	return out
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadInt(payload map[string]any, key string) *int {
	switch v := payload[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	case int64:
		n := int(v)
		return &n
	}
	return nil
}

func payloadSegments(payload map[string]any, key string) []retrieval.Segment {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	segments := make([]retrieval.Segment, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		seg := retrieval.Segment{Text: payloadString(m, "text")}
		if start, ok := m["start"].(float64); ok {
			seg.Start = start
		}
		if end, ok := m["end"].(float64); ok {
			seg.End = end
		}
		segments = append(segments, seg)
	}
	return segments
}

func textHits(points []vectorindex.Point) []retrieval.Hit {
	hits := make([]retrieval.Hit, 0, len(points))
	for i, p := range points {
		source := payloadString(p.Payload, "filename")
		if source == "" {
			source = payloadString(p.Payload, "source")
		}
		hits = append(hits, retrieval.Hit{
			ID:            p.ID,
			Modality:      retrieval.ModalityText,
			Score:         p.Score,
			CombinedScore: p.Score,
			Rank:          i,
			Payload: retrieval.Payload{
				Text:      payloadString(p.Payload, "text"),
				SourceRef: source,
				Page:      payloadInt(p.Payload, "page"),
			},
		})
	}
	return hits
}

func imageHits(points []vectorindex.Point) []retrieval.Hit {
	hits := make([]retrieval.Hit, 0, len(points))
	for i, p := range points {
		source := payloadString(p.Payload, "file_id")
		if source == "" {
			source = payloadString(p.Payload, "image_url")
		}
		hits = append(hits, retrieval.Hit{
			ID:            p.ID,
			Modality:      retrieval.ModalityImage,
			Score:         p.Score,
			CombinedScore: p.Score,
			Rank:          i,
			Payload: retrieval.Payload{
				OCRText:   payloadString(p.Payload, "ocr_text"),
				SourceRef: source,
			},
		})
	}
	return hits
}

func audioHits(points []vectorindex.Point) []retrieval.Hit {
	hits := make([]retrieval.Hit, 0, len(points))
	for i, p := range points {
		hits = append(hits, retrieval.Hit{
			ID:            p.ID,
			Modality:      retrieval.ModalityAudio,
			Score:         p.Score,
			CombinedScore: p.Score,
			Rank:          i,
			Payload: retrieval.Payload{
				Transcript: payloadString(p.Payload, "transcript"),
				SourceRef:  payloadString(p.Payload, "audio_url"),
				Segments:   payloadSegments(p.Payload, "timestamps"),
			},
		})
	}
	return hits
}
