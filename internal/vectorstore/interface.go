package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks thinkbox/internal/vectorstore VectorStore

import "context"

// Point is a note fingerprint with its payload.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult is one nearest-neighbour hit.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// Filter restricts a search. Zero values impose no restriction.
type Filter struct {
	// OwnerID keeps only points whose owner_id payload matches.
	OwnerID string
	// Type keeps only points whose type payload matches.
	Type string
	// ExcludeIDs drops these point IDs from the result.
	ExcludeIDs []string
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search restricted by filter.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error
}
