package sparse

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTfidfEncoder_FitAndEncode(t *testing.T) {
	vocabPath := filepath.Join(t.TempDir(), "vocab.json")
	enc := NewTfidfEncoder(vocabPath)
	assert.False(t, enc.IsFitted())

	_, err := enc.Encode("anything")
	require.Error(t, err, "encoding before fit must fail")

	corpus := []string{
		"alpha deployment runbook",
		"beta deployment checklist",
		"alpha incident report",
	}
	require.NoError(t, enc.Fit(corpus))
	assert.True(t, enc.IsFitted())

	vec, err := enc.Encode("alpha deployment")
	require.NoError(t, err)
	require.NotEmpty(t, vec.Indices)
	require.Equal(t, len(vec.Indices), len(vec.Values))

	// Unit length.
	var norm float64
	for _, v := range vec.Values {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	// Indices are sorted ascending, as sparse backends require.
	for i := 1; i < len(vec.Indices); i++ {
		assert.Less(t, vec.Indices[i-1], vec.Indices[i])
	}
}

func TestTfidfEncoder_FitTwiceFails(t *testing.T) {
	enc := NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
	require.NoError(t, enc.Fit([]string{"some corpus text"}))
	assert.Error(t, enc.Fit([]string{"another corpus"}))
}

func TestTfidfEncoder_EmptyCorpusFails(t *testing.T) {
	enc := NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
	assert.Error(t, enc.Fit(nil))
}

func TestTfidfEncoder_VocabularySurvivesReload(t *testing.T) {
	vocabPath := filepath.Join(t.TempDir(), "vocab.json")

	first := NewTfidfEncoder(vocabPath)
	require.NoError(t, first.Fit([]string{"alpha beta", "beta gamma"}))
	want, err := first.Encode("alpha beta")
	require.NoError(t, err)

	reloaded := NewTfidfEncoder(vocabPath)
	require.True(t, reloaded.IsFitted())
	got, err := reloaded.Encode("alpha beta")
	require.NoError(t, err)

	assert.Equal(t, want.Indices, got.Indices)
	assert.InDeltaSlice(t, float32sTo64(want.Values), float32sTo64(got.Values), 1e-6)
}

func TestTfidfEncoder_StopwordsAndBigrams(t *testing.T) {
	enc := NewTfidfEncoder(filepath.Join(t.TempDir(), "vocab.json"))
	require.NoError(t, enc.Fit([]string{
		"the alpha system in production",
		"alpha system maintenance window",
	}))

	// A stopword-only query encodes to an empty vector, not an error.
	vec, err := enc.Encode("the in of")
	require.NoError(t, err)
	assert.Empty(t, vec.Indices)

	// The bigram survives; querying it yields weight.
	vec, err = enc.Encode("alpha system")
	require.NoError(t, err)
	assert.NotEmpty(t, vec.Indices)
}

func float32sTo64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
