package generation

import (
	"context"
	"fmt"
	"strings"

	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/types"
)

// AnswerResult is the Answer Generation Agent's validated output.
type AnswerResult struct {
	Result
}

// Agent orchestrates the Extraction Prompt Builder and Two-Pass Generator,
// then structurally validates every extraction's provenance against the
// candidate set it was drawn from (spec.md 4.16).
type Agent struct {
	generator *Generator
}

// NewAgent wraps an LLM backend in the Answer Generation Agent.
func NewAgent(client ports.LLMClient) *Agent {
	return &Agent{generator: NewGenerator(client)}
}

// Answer runs the two-pass generation, validates its provenance, and
// returns GENERATION_PROVENANCE_INVALID if any extraction structurally
// fails to ground to the supplied candidates.
func (a *Agent) Answer(ctx context.Context, sq types.StructuredQuery, candidates []types.RetrievalCandidate) (AnswerResult, error) {
	result, err := a.generator.Generate(ctx, sq, candidates)
	if err != nil {
		return AnswerResult{}, err
	}

	chunksByID := indexChunks(candidates)
	for i := range result.Extractions {
		if err := validateProvenance(&result.Extractions[i], chunksByID); err != nil {
			return AnswerResult{}, err
		}
	}

	return AnswerResult{Result: result}, nil
}

func indexChunks(candidates []types.RetrievalCandidate) map[types.ChunkID]types.Chunk {
	m := make(map[types.ChunkID]types.Chunk, len(candidates))
	for _, c := range candidates {
		m[c.Chunk.ChunkID] = c.Chunk
	}
	return m
}

// validateProvenance enforces spec.md 4.16's structural checks. A
// supporting_text mismatch is recorded as a warning, never an error.
func validateProvenance(extraction *types.Extraction, chunksByID map[types.ChunkID]types.Chunk) error {
	prov := extraction.Provenance

	chunk, ok := chunksByID[prov.ChunkID]
	if !ok {
		return pipelineerrors.New(pipelineerrors.CodeGenerationProvenanceInvalid,
			fmt.Sprintf("chunk_id %q is not present in the candidate set", prov.ChunkID))
	}
	if chunk.ArtifactID != prov.ArtifactID {
		return pipelineerrors.New(pipelineerrors.CodeGenerationProvenanceInvalid,
			fmt.Sprintf("chunk_id %q belongs to artifact %q, not cited artifact_id %q", prov.ChunkID, chunk.ArtifactID, prov.ArtifactID))
	}

	s, e := prov.CharOffsets.Start, prov.CharOffsets.End
	if s < 0 || s > e || e > len(chunk.ChunkText) {
		return pipelineerrors.New(pipelineerrors.CodeGenerationProvenanceInvalid,
			fmt.Sprintf("char_offsets [%d, %d) out of bounds for chunk %q (length %d)", s, e, prov.ChunkID, len(chunk.ChunkText)))
	}

	if !supportingTextMatches(prov.SupportingText, chunk.ChunkText[s:e]) {
		extraction.ProvenanceWarnings = append(extraction.ProvenanceWarnings,
			fmt.Sprintf("supporting_text does not match chunk_text[%d:%d] under whitespace normalization", s, e))
	}

	return nil
}

func supportingTextMatches(supportingText, cited string) bool {
	return normalizeWhitespace(supportingText) == normalizeWhitespace(cited)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
