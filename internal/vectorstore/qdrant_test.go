package vectorstore

import (
	"testing"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPointID_RoundTripsThroughChunkID(t *testing.T) {
	id := pointID(types.ChunkID("chunk-123"))
	assert.Equal(t, types.ChunkID("chunk-123"), idToChunkID(id))
}

func TestToFloat32_ConvertsElementwise(t *testing.T) {
	out := toFloat32([]float64{0.1, 0.2, 0.3})
	assert.Len(t, out, 3)
	assert.InDelta(t, 0.1, out[0], 0.0001)
}
