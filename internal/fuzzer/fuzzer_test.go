package fuzzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeworks/grader-worker/internal/fixtures"
	"github.com/gradeworks/grader-worker/internal/fuzzer"
)

// Invariant 7: two campaigns with the same seed and seed fixtures produce an
// identical input sequence.
func TestGenerateInputs_Deterministic(t *testing.T) {
	seedFixtures := []fixtures.Fixture{
		{ID: "f1", Input: map[string]interface{}{"value": float64(42)}},
		{ID: "f2", Input: "hello"},
	}

	a := fuzzer.New(60, 0, 12345).GenerateInputs(seedFixtures)
	b := fuzzer.New(60, 0, 12345).GenerateInputs(seedFixtures)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
}

func TestGenerateInputs_DifferentSeedsDiverge(t *testing.T) {
	seedFixtures := []fixtures.Fixture{
		{ID: "f1", Input: map[string]interface{}{"value": float64(42)}},
	}

	a := fuzzer.New(20, 0, 1).GenerateInputs(seedFixtures)
	b := fuzzer.New(20, 0, 2).GenerateInputs(seedFixtures)

	assert.NotEqual(t, a, b)
}

func TestGenerateInputs_TruncatesToMaxIterations(t *testing.T) {
	seedFixtures := []fixtures.Fixture{
		{ID: "f1", Input: float64(1)},
		{ID: "f2", Input: float64(2)},
		{ID: "f3", Input: float64(3)},
	}
	f := fuzzer.New(10, 0, 7)
	inputs := f.GenerateInputs(seedFixtures)
	assert.Len(t, inputs, 10)
}
