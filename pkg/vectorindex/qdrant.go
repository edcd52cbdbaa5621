package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex adapts the Qdrant gRPC client to the Index interface. Qdrant
// supports named dense and sparse sub-vectors per collection and fuses
// prefetch candidate sets server-side.
type QdrantIndex struct {
	client *qdrant.Client
}

func NewQdrantIndex(host string, port int, apiKey string, useTLS bool) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &QdrantIndex{client: client}, nil
}

func (q *QdrantIndex) Capabilities() Capabilities {
	return Capabilities{Sparse: true, NativeFusion: true}
}

func (q *QdrantIndex) Query(ctx context.Context, query Query) ([]Point, error) {
	req := &qdrant.QueryPoints{
		CollectionName: query.Collection,
		Filter:         ownerFilter(query.OwnerID),
		Limit:          qdrant.PtrOf(uint64(query.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	switch {
	case len(query.Prefetch) > 0 && query.Fusion == FusionRRF:
		for _, p := range query.Prefetch {
			pf := &qdrant.PrefetchQuery{
				Limit: qdrant.PtrOf(uint64(p.Limit)),
			}
			if p.Using != "" {
				pf.Using = qdrant.PtrOf(p.Using)
			}
			if p.Sparse != nil {
				pf.Query = qdrant.NewQuerySparse(p.Sparse.Indices, p.Sparse.Values)
			} else {
				pf.Query = qdrant.NewQueryDense(p.Dense)
			}
			req.Prefetch = append(req.Prefetch, pf)
		}
		req.Query = qdrant.NewQueryFusion(qdrant.Fusion_RRF)
	case query.Sparse != nil:
		req.Query = qdrant.NewQuerySparse(query.Sparse.Indices, query.Sparse.Values)
		req.Using = qdrant.PtrOf(query.Using)
	default:
		req.Query = qdrant.NewQueryDense(query.Dense)
		req.Using = qdrant.PtrOf(query.Using)
	}

	scored, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query on %s failed: %w", query.Collection, err)
	}

	points := make([]Point, 0, len(scored))
	for _, p := range scored {
		points = append(points, Point{
			ID:      pointID(p.Id),
			Score:   float64(p.Score),
			Payload: payloadToMap(p.Payload),
		})
	}
	return points, nil
}

func (q *QdrantIndex) Scroll(ctx context.Context, collection string, limit int) ([]Point, error) {
	retrieved, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll on %s failed: %w", collection, err)
	}

	points := make([]Point, 0, len(retrieved))
	for _, p := range retrieved {
		points = append(points, Point{
			ID:      pointID(p.Id),
			Payload: payloadToMap(p.Payload),
		})
	}
	return points, nil
}

func ownerFilter(ownerID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(OwnerField, ownerID),
		},
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.Values))
		for _, item := range kind.ListValue.Values {
			items = append(items, valueToAny(item))
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]any, len(kind.StructValue.Fields))
		for k, f := range kind.StructValue.Fields {
			fields[k] = valueToAny(f)
		}
		return fields
	default:
		return nil
	}
}
