package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"thinkbox/internal/contextutil"
)

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantStore(urlStr string) (*QdrantStore, error) {
	host, port, err := grpcAddress(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
	}, nil
}

// grpcAddress derives the gRPC host and port from the HTTP URL of a Qdrant server.
func grpcAddress(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}
	return host, port, nil
}

// Upsert inserts or updates points in the collection.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		qdrantPoint := &qdrant.PointStruct{
			Id:      qdrant.NewID(point.ID),
			Vectors: qdrant.NewVectors(point.Vec...),
		}

		if len(point.Meta) > 0 {
			qdrantPoint.Payload = qdrant.NewValueMap(point.Meta)
		}

		qdrantPoints = append(qdrantPoints, qdrantPoint)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search restricted by filter.
func (s *QdrantStore) Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	limit := uint64(k)
	queryReq := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	scoredPoints, err := s.client.Query(ctx, queryReq)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "k", k, "error", err)
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, result := range scoredPoints {
		pointID := ""
		if result.Id != nil {
			pointID = result.Id.GetUuid()
		}

		meta := make(map[string]any)
		if result.Payload != nil {
			meta = convertPayloadToMap(result.Payload)
		}

		results = append(results, SearchResult{
			PointID: pointID,
			Score:   result.Score,
			Meta:    meta,
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "k", k, "results", len(results))
	return results, nil
}

// buildFilter converts a Filter into Qdrant conditions, or nil when it is empty.
func buildFilter(filter Filter) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition

	if filter.OwnerID != "" {
		must = append(must, qdrant.NewMatch("owner_id", filter.OwnerID))
	}
	if filter.Type != "" {
		must = append(must, qdrant.NewMatch("type", filter.Type))
	}
	if len(filter.ExcludeIDs) > 0 {
		ids := make([]*qdrant.PointId, 0, len(filter.ExcludeIDs))
		for _, id := range filter.ExcludeIDs {
			ids = append(ids, qdrant.NewID(id))
		}
		mustNot = append(mustNot, qdrant.NewHasID(ids...))
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must:    must,
		MustNot: mustNot,
	}
}

// Delete removes points by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) == 0 {
		return nil
	}

	qdrantIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		qdrantIDs = append(qdrantIDs, qdrant.NewID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrantIDs...),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", collection, "count", len(ids), "error", err)
		return fmt.Errorf("failed to delete points: %w", err)
	}

	logger.DebugContext(ctx, "deleted points", "collection", collection, "count", len(ids))
	return nil
}

// CollectionInfo describes a Qdrant collection.
type CollectionInfo struct {
	VectorSize  int
	PointsCount int
	Status      string
}

// EnsureCollection creates the collection with cosine distance when it is missing.
// A collection whose vector size differs from vectorSize is dropped and recreated,
// since its points were computed for another fingerprint dimension.
// It reports whether the collection was (re)created and needs to be refilled.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) (bool, error) {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists {
		info, err := s.GetCollectionInfo(ctx, collection)
		if err != nil {
			return false, err
		}
		if info.VectorSize == vectorSize {
			logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", vectorSize)
			return false, nil
		}

		logger.WarnContext(ctx, "collection vector size mismatch, recreating",
			"collection", collection,
			"expected", vectorSize,
			"actual", info.VectorSize,
		)
		if err := s.client.DeleteCollection(ctx, collection); err != nil {
			return false, fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create collection: %w", err)
	}

	// owner_id is filtered on every search
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      "owner_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to index owner_id: %w", err)
	}

	logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize)
	return true, nil
}

// GetCollectionInfo returns the vector size, point count and status of a collection.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	result := &CollectionInfo{Status: "unknown"}
	if config := info.GetConfig(); config != nil && config.GetParams() != nil {
		if params := config.GetParams().GetVectorsConfig().GetParams(); params != nil {
			result.VectorSize = int(params.GetSize())
		}
	}
	if info.PointsCount != nil {
		result.PointsCount = int(*info.PointsCount)
	}
	if info.Status != 0 {
		result.Status = info.Status.String()
	}
	return result, nil
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
