// Package metadatastore implements the ports.MetadataStore adapter over
// PostgreSQL: chunk metadata, confidence metrics, and evaluation records
// (spec.md section 6's persisted state).
package metadatastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/types"
)

// Store implements ports.MetadataStore using database/sql over lib/pq.
type Store struct {
	db *sql.DB
}

var _ ports.MetadataStore = (*Store)(nil)

// New wraps an already-opened *sql.DB. Connection pooling is sql.DB's
// built-in concern (SetMaxOpenConns/SetMaxIdleConns), configured by the
// caller at open time.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveChunk upserts one chunk's metadata row.
func (s *Store) SaveChunk(ctx context.Context, chunk types.Chunk) error {
	query := `
		INSERT INTO chunks (
			chunk_id, artifact_id, patient_id, artifact_type, chunk_text,
			char_start, char_end, occurred_at, author, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chunk_id) DO UPDATE SET
			chunk_text = EXCLUDED.chunk_text,
			char_start = EXCLUDED.char_start,
			char_end = EXCLUDED.char_end`

	_, err := s.db.ExecContext(ctx, query,
		chunk.ChunkID, chunk.ArtifactID, chunk.PatientID, chunk.ArtifactType, chunk.ChunkText,
		chunk.CharOffsets.Start, chunk.CharOffsets.End, chunk.OccurredAt, chunk.Author, chunk.Source, chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// GetChunks fetches a specific set of chunks by id, in no particular order.
func (s *Store) GetChunks(ctx context.Context, chunkIDs []types.ChunkID) ([]types.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = string(id)
	}

	query := `
		SELECT chunk_id, artifact_id, patient_id, artifact_type, chunk_text,
		       char_start, char_end, occurred_at, author, source, created_at
		FROM chunks
		WHERE chunk_id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ListChunks returns every chunk belonging to one patient.
func (s *Store) ListChunks(ctx context.Context, patientID types.PatientID) ([]types.Chunk, error) {
	query := `
		SELECT chunk_id, artifact_id, patient_id, artifact_type, chunk_text,
		       char_start, char_end, occurred_at, author, source, created_at
		FROM chunks
		WHERE patient_id = $1
		ORDER BY occurred_at DESC`

	rows, err := s.db.QueryContext(ctx, query, string(patientID))
	if err != nil {
		return nil, fmt.Errorf("list chunks for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(
			&c.ChunkID, &c.ArtifactID, &c.PatientID, &c.ArtifactType, &c.ChunkText,
			&c.CharOffsets.Start, &c.CharOffsets.End, &c.OccurredAt, &c.Author, &c.Source, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return chunks, nil
}

// SaveEvaluation inserts one human rating against an answered query.
func (s *Store) SaveEvaluation(ctx context.Context, eval types.Evaluation) error {
	query := `
		INSERT INTO evaluations (evaluation_id, query_id, evaluator, rating, comment, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		eval.EvaluationID, eval.QueryID, eval.Evaluator, eval.Rating, eval.Comment, eval.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save evaluation %s: %w", eval.EvaluationID, err)
	}
	return nil
}

// ListEvaluations returns every evaluation recorded against queries for one
// patient (joined through the query's patient scope recorded at query time).
func (s *Store) ListEvaluations(ctx context.Context, patientID types.PatientID) ([]types.Evaluation, error) {
	query := `
		SELECT e.evaluation_id, e.query_id, e.evaluator, e.rating, e.comment, e.timestamp
		FROM evaluations e
		JOIN queries q ON q.query_id = e.query_id
		WHERE q.patient_id = $1
		ORDER BY e.timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, string(patientID))
	if err != nil {
		return nil, fmt.Errorf("list evaluations for patient %s: %w", patientID, err)
	}
	defer rows.Close()

	var evals []types.Evaluation
	for rows.Next() {
		var e types.Evaluation
		if err := rows.Scan(&e.EvaluationID, &e.QueryID, &e.Evaluator, &e.Rating, &e.Comment, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		evals = append(evals, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}
	return evals, nil
}

// SaveConfidenceMetric records one query's calibrated confidence score for
// later offline calibration review.
func (s *Store) SaveConfidenceMetric(ctx context.Context, queryID types.QueryID, score float64, tier string) error {
	query := `
		INSERT INTO confidence_metrics (query_id, score, tier, recorded_at)
		VALUES ($1, $2, $3, now())`

	if _, err := s.db.ExecContext(ctx, query, string(queryID), score, tier); err != nil {
		return fmt.Errorf("save confidence metric for query %s: %w", queryID, err)
	}
	return nil
}
