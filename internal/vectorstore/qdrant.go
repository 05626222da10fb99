// Package vectorstore implements the k-NN adapter (spec.md: "the vector
// index; only k-NN and filter hooks are consumed") against Qdrant.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinical-nlq/internal/logging"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/types"

	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultCollection = "clinical_nlq_chunks"
	defaultVectorSize = 1536
)

// Config holds Qdrant connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize int
}

// Adapter implements ports.VectorIndex against a Qdrant collection, one
// point per Chunk keyed by chunk_id, filtered by patient_id on search.
type Adapter struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     int
}

var _ ports.VectorIndex = (*Adapter)(nil)

// NewAdapter connects to Qdrant and ensures the chunk collection exists.
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}
	vectorSize := cfg.VectorSize
	if vectorSize == 0 {
		vectorSize = defaultVectorSize
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	adapter := &Adapter{client: client, collectionName: collection, vectorSize: vectorSize}
	if err := adapter.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return adapter, nil
}

func (a *Adapter) ensureCollection(ctx context.Context) error {
	collections, err := a.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range collections {
		if c == a.collectionName {
			return nil
		}
	}

	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: a.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(a.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", a.collectionName, err)
	}
	logging.VectorStoreLogger.Info("created qdrant collection", "collection", a.collectionName)
	return nil
}

// Upsert stores or replaces one chunk's embedding point.
func (a *Adapter) Upsert(ctx context.Context, chunk types.Chunk, embedding []float64) error {
	if len(embedding) == 0 {
		return errors.New("embedding cannot be empty")
	}

	point := &qdrant.PointStruct{
		Id: pointID(chunk.ChunkID),
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: toFloat32(embedding)}},
		},
		Payload: map[string]*qdrant.Value{
			"patient_id":    stringValue(string(chunk.PatientID)),
			"artifact_id":   stringValue(string(chunk.ArtifactID)),
			"artifact_type": stringValue(string(chunk.ArtifactType)),
			"occurred_at":   int64Value(chunk.OccurredAt.Unix()),
		},
	}

	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// Search runs k-NN over one patient's points, filtered server-side by
// patient_id.
func (a *Adapter) Search(ctx context.Context, patientID types.PatientID, query []float64, k int) ([]ports.ScoredChunkID, error) {
	if len(query) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if k <= 0 {
		k = 10
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "patient_id",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: string(patientID)}},
				},
			},
		}},
	}

	start := time.Now()
	results, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: a.collectionName,
		Query:          qdrant.NewQuery(toFloat32(query)...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]ports.ScoredChunkID, 0, len(results))
	for _, p := range results {
		hits = append(hits, ports.ScoredChunkID{ChunkID: idToChunkID(p.GetId()), Similarity: float64(p.GetScore())})
	}
	logging.VectorStoreLogger.Debug("qdrant search completed",
		"patient_id", string(patientID), "hits", len(hits), "duration_ms", time.Since(start).Milliseconds())
	return hits, nil
}

// Delete removes one chunk's point.
func (a *Adapter) Delete(ctx context.Context, chunkID types.ChunkID) error {
	_, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: a.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointID(chunkID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete chunk %s: %w", chunkID, err)
	}
	return nil
}

func pointID(chunkID types.ChunkID) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: string(chunkID)}}
}

func idToChunkID(id *qdrant.PointId) types.ChunkID {
	if uuid := id.GetUuid(); uuid != "" {
		return types.ChunkID(uuid)
	}
	return types.ChunkID(fmt.Sprintf("%d", id.GetNum()))
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func int64Value(i int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
