package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds the API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository handles chunk vector operations with Qdrant. One shared
// collection holds every tenant's vectors; isolation comes from a mandatory
// owner_id payload filter on every read and delete.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	qdrantClient    pb.QdrantClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.VectorDimension)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		qdrantClient:    pb.NewQdrantClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// HealthCheck verifies the Qdrant server is reachable.
func (r *QdrantRepository) HealthCheck(ctx context.Context) error {
	if _, err := r.qdrantClient.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection if it doesn't exist and verifies
// the vector size of an existing one. A size mismatch is a configuration
// error, not something to recover from at runtime.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func optionalBool(v bool) *bool {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// ChunkPayload is the payload stored with each vector.
type ChunkPayload struct {
	ChunkID        string `json:"chunk_id"`
	OwnerID        string `json:"owner_id"`
	SourceID       string `json:"source_id"`
	SequenceIndex  int    `json:"sequence_index"`
	EmbeddingModel string `json:"embedding_model"`
}

// ChunkPoint pairs a vector with its payload for batch upserts.
type ChunkPoint struct {
	Vector  []float32
	Payload ChunkPayload
}

// UpsertBatch writes a source's full point set in a single upsert. The write
// waits for completion so a committed batch is immediately searchable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - points: vectors with payloads; point IDs are the chunk IDs.
// Returns:
//   - error: non-nil if any vector has the wrong dimension or the upsert fails.
func (r *QdrantRepository) UpsertBatch(ctx context.Context, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != r.vectorDimension {
			return fmt.Errorf("chunk %s has vector dimension %d, collection expects %d", p.Payload.ChunkID, len(p.Vector), r.vectorDimension)
		}
		uid, err := uuid.Parse(p.Payload.ChunkID)
		if err != nil {
			return fmt.Errorf("invalid point ID %q: %w", p.Payload.ChunkID, err)
		}
		pbPoints = append(pbPoints, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				"chunk_id":        {Kind: &pb.Value_StringValue{StringValue: p.Payload.ChunkID}},
				"owner_id":        {Kind: &pb.Value_StringValue{StringValue: p.Payload.OwnerID}},
				"source_id":       {Kind: &pb.Value_StringValue{StringValue: p.Payload.SourceID}},
				"sequence_index":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Payload.SequenceIndex)}},
				"embedding_model": {Kind: &pb.Value_StringValue{StringValue: p.Payload.EmbeddingModel}},
			},
		})
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         pbPoints,
		Wait:           optionalBool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// VectorHit is one scored result from a similarity search.
type VectorHit struct {
	ID      string
	Score   float32
	Payload *ChunkPayload
}

// Search performs a similarity search scoped to one owner and one embedding
// model. Results arrive ordered by descending cosine similarity.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner; never empty.
//   - vector: query embedding.
//   - embeddingModel: model version to match; vectors from other models are excluded.
//   - topK: maximum number of hits.
// Returns:
//   - []VectorHit: scored hits, most similar first.
//   - error: non-nil if the search fails.
func (r *QdrantRepository) Search(ctx context.Context, ownerID string, vector []float32, embeddingModel string, topK int) ([]VectorHit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("refusing unscoped vector search")
	}
	if len(vector) != r.vectorDimension {
		return nil, fmt.Errorf("query vector dimension %d, collection expects %d", len(vector), r.vectorDimension)
	}

	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		Filter: ownerFilter(ownerID, embeddingModel, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]VectorHit, len(resp.Result))
	for i, scored := range resp.Result {
		hits[i] = VectorHit{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		}
	}

	return hits, nil
}

// DeleteBySource deletes every point belonging to one source of one owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - sourceID: source whose points to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *QdrantRepository) DeleteBySource(ctx context.Context, ownerID, sourceID string) error {
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: ownerFilter(ownerID, "", sourceID),
			},
		},
		Wait: optionalBool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for source %s: %w", sourceID, err)
	}
	return nil
}

// ownerFilter builds the payload filter; owner is mandatory, model and source
// are added when non-empty.
func ownerFilter(ownerID, embeddingModel, sourceID string) *pb.Filter {
	conditions := []*pb.Condition{
		keywordCondition("owner_id", ownerID),
	}
	if embeddingModel != "" {
		conditions = append(conditions, keywordCondition("embedding_model", embeddingModel))
	}
	if sourceID != "" {
		conditions = append(conditions, keywordCondition("source_id", sourceID))
	}
	return &pb.Filter{Must: conditions}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func parsePayload(payload map[string]*pb.Value) *ChunkPayload {
	if payload == nil {
		return nil
	}
	p := &ChunkPayload{}
	if v, ok := payload["chunk_id"]; ok {
		p.ChunkID = v.GetStringValue()
	}
	if v, ok := payload["owner_id"]; ok {
		p.OwnerID = v.GetStringValue()
	}
	if v, ok := payload["source_id"]; ok {
		p.SourceID = v.GetStringValue()
	}
	if v, ok := payload["sequence_index"]; ok {
		p.SequenceIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["embedding_model"]; ok {
		p.EmbeddingModel = v.GetStringValue()
	}
	return p
}
