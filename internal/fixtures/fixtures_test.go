package fixtures_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeworks/grader-worker/internal/fixtures"
)

// S3: parsing one fixture preserves the fields it supplies (description is
// omitted and so takes its default).
func TestParseFixtures_SingleFixture(t *testing.T) {
	data := []byte(`[{"id":"test-1","name":"Simple Test","input":{"value":42},"expected_output":{"result":84},"hidden":false,"timeout":30,"gas_limit":1000000}]`)

	parsed, err := fixtures.ParseFixtures(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	f := parsed[0]
	assert.Equal(t, "test-1", f.ID)
	assert.Equal(t, "Simple Test", f.Name)
	assert.False(t, f.Hidden)
	assert.Equal(t, 30, f.TimeoutSeconds)
	assert.Equal(t, int64(1_000_000), f.GasLimit)
}

func TestParseFixtures_AppliesDefaults(t *testing.T) {
	data := []byte(`[{"id":"bare"}]`)

	parsed, err := fixtures.ParseFixtures(data)
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	f := parsed[0]
	assert.Equal(t, "Unnamed test", f.Name)
	assert.Equal(t, "", f.Description)
	assert.Nil(t, f.Input)
	assert.False(t, f.Hidden)
	assert.Equal(t, 30, f.TimeoutSeconds)
	assert.Equal(t, int64(1_000_000), f.GasLimit)
}

func TestParseFixtures_RejectsMissingID(t *testing.T) {
	_, err := fixtures.ParseFixtures([]byte(`[{"name":"no id"}]`))
	assert.Error(t, err)
}

// Invariant 3: round-tripping fixtures through the cache preserves every field.
func TestStore_FetchPublic_CacheRoundTrip(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"rt-1","name":"Round Trip","description":"d","input":{"a":1},"expected_output":{"b":2},"hidden":false,"timeout":45,"gas_limit":500}]`))
	}))
	defer srv.Close()

	store := fixtures.NewStore(srv.URL, t.TempDir())

	first := store.FetchPublic("chal-1")
	require.Len(t, first, 1)
	assert.Equal(t, 1, hits, "first call should hit upstream")

	second := store.FetchPublic("chal-1")
	require.Len(t, second, 1)
	assert.Equal(t, 1, hits, "second call should be served from cache, not upstream")

	assert.Equal(t, first[0], second[0])
	assert.Equal(t, "Round Trip", second[0].Name)
	assert.Equal(t, 45, second[0].TimeoutSeconds)
	assert.Equal(t, int64(500), second[0].GasLimit)
}

func TestStore_FetchHidden_NeverCached(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`[{"id":"hidden-1"}]`))
	}))
	defer srv.Close()

	store := fixtures.NewStore(srv.URL, t.TempDir())
	store.FetchHidden("chal-1")
	store.FetchHidden("chal-1")
	assert.Equal(t, 2, hits, "hidden fixtures must always be re-fetched")
}

func TestStore_FetchPublic_DegradesToEmptyOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := fixtures.NewStore(srv.URL, t.TempDir())
	result := store.FetchPublic("broken")
	assert.Empty(t, result)
}
