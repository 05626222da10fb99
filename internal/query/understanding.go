// Package query composes the Temporal Parser, Intent Classifier, Entity
// Extractor, and Detail-Level Analyzer into one StructuredQuery (spec.md
// section 4.6). It adds no new classification logic of its own.
package query

import (
	"time"

	"clinical-nlq/internal/detaillevel"
	"clinical-nlq/internal/entity"
	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/expansion"
	"clinical-nlq/internal/intent"
	"clinical-nlq/internal/temporal"
	"clinical-nlq/internal/types"

	"github.com/google/uuid"
)

const maxQueryLength = 1000

// intentArtifactTypes maps an intent to the artifact types a retrieval
// should default to filtering for; an absent entry means "no filter".
var intentArtifactTypes = map[types.Intent][]types.ArtifactType{
	types.IntentRetrieveMedications: {
		types.ArtifactMedicationOrder, types.ArtifactPrescription, types.ArtifactMedicationList,
	},
	types.IntentRetrieveCarePlans: {types.ArtifactCarePlan},
	types.IntentRetrieveNotes: {
		types.ArtifactClinicalNote, types.ArtifactProgressNote, types.ArtifactDischargeNote,
	},
}

// Understand validates the input and runs every query-understanding
// component, returning the resulting StructuredQuery.
func Understand(queryText string, patientID types.PatientID, now time.Time) (*types.StructuredQuery, error) {
	if queryText == "" {
		return nil, pipelineerrors.New(pipelineerrors.CodeInvalidQuery, "query must not be empty").
			WithStage("query_understanding")
	}
	if len(queryText) > maxQueryLength {
		return nil, pipelineerrors.New(pipelineerrors.CodeInvalidQuery, "query exceeds maximum length").
			WithStage("query_understanding")
	}
	if err := patientID.Validate(); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.CodeInvalidQuery, "invalid patient id").
			WithDetails(err.Error()).
			WithStage("query_understanding")
	}

	temporalFilter := temporal.Parse(queryText, now)
	intentResult := intent.Classify(queryText)
	entities := entity.Extract(queryText)
	multiTime := len(temporal.ParseAll(queryText, now)) > 1
	level := detaillevel.Analyze(queryText, intentResult.Intent, len(entities), multiTime)

	sq := &types.StructuredQuery{
		QueryID:          types.QueryID(uuid.New().String()),
		OriginalQuery:    queryText,
		PatientID:        patientID,
		Intent:           intentResult.Intent,
		Entities:         entities,
		TemporalFilter:   temporalFilter,
		DetailLevel:      level,
		AmbiguousIntents: intentResult.AmbiguousIntents,
		Filters: types.Filters{
			ArtifactTypes: intentArtifactTypes[intentResult.Intent],
			DateRange:     temporalFilter,
		},
	}

	return sq, nil
}

// SearchVariants returns the Query Expander's ranked variants for sq, a
// convenience wrapper so callers don't need to import internal/expansion
// directly.
func SearchVariants(sq *types.StructuredQuery) []expansion.Variant {
	return expansion.Expand(sq.OriginalQuery, sq.Entities)
}
