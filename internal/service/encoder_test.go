package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderSemanticText(t *testing.T) {
	enc, err := NewEncoder(nil, EncoderConfig{MinResidualTokens: 1})
	require.NoError(t, err)

	tests := []struct {
		name     string
		residual string
		want     string
	}{
		{name: "descriptive residual", residual: "modern ocean views", want: "modern ocean views"},
		{name: "empty residual", residual: "", want: "2 bedroom condo in Miami"},
		{name: "stopwords only", residual: " with a ", want: "2 bedroom condo in Miami"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, enc.SemanticText(tt.residual, " 2 bedroom condo in Miami "))
		})
	}
}

func TestEncoderEncode(t *testing.T) {
	embedder := &keywordEmbedder{}
	enc, err := NewEncoder(embedder, EncoderConfig{Dimensions: testDimensions, CacheSize: 8})
	require.NoError(t, err)

	v, err := enc.Encode(context.Background(), "modern condo")
	require.NoError(t, err)
	require.Len(t, v, testDimensions)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	again, err := enc.Encode(context.Background(), "  modern condo ")
	require.NoError(t, err)
	assert.Equal(t, v, again)
	assert.Equal(t, 1, embedder.calls, "second call is served from the cache")
}

func TestEncoderErrors(t *testing.T) {
	tests := []struct {
		name   string
		client EmbeddingClient
		text   string
	}{
		{name: "blank text", client: &keywordEmbedder{}, text: "  "},
		{name: "no client", client: nil, text: "condo"},
		{name: "client failure", client: &keywordEmbedder{err: errors.New("rate limited")}, text: "condo"},
		{name: "dimension mismatch", client: &fixedEmbedder{vector: []float32{1, 0}}, text: "condo"},
		{name: "zero vector", client: &fixedEmbedder{vector: make([]float32, testDimensions)}, text: "condo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncoder(tt.client, EncoderConfig{Dimensions: testDimensions})
			require.NoError(t, err)

			v, err := enc.Encode(context.Background(), tt.text)
			assert.Nil(t, v)
			assert.ErrorIs(t, err, ErrRetrievalFailed)
		})
	}
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, err = Normalize([]float32{0, 0})
	assert.Error(t, err)

	_, err = Normalize([]float32{float32(math.NaN()), 1})
	assert.Error(t, err)
}
