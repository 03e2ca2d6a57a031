package fingerprint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeworks/grader-worker/internal/fingerprint"
)

// S4: fingerprinting two near-identical sources yields similarity strictly
// between 0 and 1.
func TestSimilarity_NearIdenticalSources(t *testing.T) {
	a, err := fingerprint.Fingerprint("fn test(){ let x = 1; }", "rust")
	require.NoError(t, err)
	b, err := fingerprint.Fingerprint("fn test(){ let y = 1; }", "rust")
	require.NoError(t, err)

	sim := fingerprint.Similarity(a, b)
	assert.Greater(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
}

// Invariant 4: similarity is reflexive and symmetric.
func TestSimilarity_ReflexiveAndSymmetric(t *testing.T) {
	src := "fn add(a, b) { return a + b; }"
	a, err := fingerprint.Fingerprint(src, "rust")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, fingerprint.Similarity(a, a), 1e-9)

	b, err := fingerprint.Fingerprint("fn add(x, y) { return x + y; }", "rust")
	require.NoError(t, err)
	assert.InDelta(t, fingerprint.Similarity(a, b), fingerprint.Similarity(b, a), 1e-9)
}

func TestFingerprint_UnsupportedLanguage(t *testing.T) {
	_, err := fingerprint.Fingerprint("print('hi')", "python")
	assert.ErrorIs(t, err, fingerprint.ErrUnsupportedLanguage)
}

// Invariant 5: matches below the 0.3 reporting threshold are never surfaced.
func TestCheckPlagiarism_BelowThresholdNotReported(t *testing.T) {
	store := fingerprint.NewInMemoryStore()
	engine := fingerprint.NewAntiCheatEngine(store)
	ctx := context.Background()

	_, err := engine.CheckPlagiarism(ctx, "chal-1", "rust", "fn totally_unrelated() { let z = 99; }", "sub-1", "user-a")
	require.NoError(t, err)

	result, err := engine.CheckPlagiarism(ctx, "chal-1", "rust", "struct Foo { bar: i32 }", "sub-2", "user-b")
	require.NoError(t, err)
	assert.Empty(t, result.MatchedSubmissions)
}

func TestCheckPlagiarism_ExcludesSameUser(t *testing.T) {
	store := fingerprint.NewInMemoryStore()
	engine := fingerprint.NewAntiCheatEngine(store)
	ctx := context.Background()
	src := "fn test(){ let x = 1; }"

	_, err := engine.CheckPlagiarism(ctx, "chal-1", "rust", src, "sub-1", "user-a")
	require.NoError(t, err)

	result, err := engine.CheckPlagiarism(ctx, "chal-1", "rust", src, "sub-2", "user-a")
	require.NoError(t, err)
	assert.Empty(t, result.MatchedSubmissions, "same-user submissions must be excluded from comparison")
}

func TestCheckPlagiarism_IdenticalResubmissionIsCritical(t *testing.T) {
	store := fingerprint.NewInMemoryStore()
	engine := fingerprint.NewAntiCheatEngine(store)
	ctx := context.Background()
	src := "fn test(){ let x = 1; }"

	_, err := engine.CheckPlagiarism(ctx, "chal-1", "rust", src, "sub-1", "user-a")
	require.NoError(t, err)

	result, err := engine.CheckPlagiarism(ctx, "chal-1", "rust", src, "sub-2", "user-b")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.RiskCritical, result.RiskLevel)
	assert.InDelta(t, 1.0, result.SimilarityScore, 1e-9)
}
