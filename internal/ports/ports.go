// Package ports declares the interfaces the retrieval and generation
// pipelines use to reach external collaborators: the embedding model, the
// vector index, the chunk/metadata store, and the LLM. Concrete adapters
// live in internal/vectorstore, internal/metadatastore, and
// internal/generation.
package ports

import (
	"context"

	"clinical-nlq/internal/types"
)

// EmbeddingProvider turns text into a dense vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ScoredChunkID is one k-NN search hit: a chunk id and its similarity score.
type ScoredChunkID struct {
	ChunkID    types.ChunkID
	Similarity float64
}

// VectorIndex performs semantic k-NN search over a patient's chunks.
type VectorIndex interface {
	Upsert(ctx context.Context, chunk types.Chunk, embedding []float64) error
	Search(ctx context.Context, patientID types.PatientID, query []float64, k int) ([]ScoredChunkID, error)
	Delete(ctx context.Context, chunkID types.ChunkID) error
}

// MetadataStore persists chunks and evaluation records.
type MetadataStore interface {
	SaveChunk(ctx context.Context, chunk types.Chunk) error
	GetChunks(ctx context.Context, chunkIDs []types.ChunkID) ([]types.Chunk, error)
	ListChunks(ctx context.Context, patientID types.PatientID) ([]types.Chunk, error)
	SaveEvaluation(ctx context.Context, eval types.Evaluation) error
	ListEvaluations(ctx context.Context, patientID types.PatientID) ([]types.Evaluation, error)
}

// LLMClient is the generation backend's two-pass call surface.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, int, error)
}
