package estimator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictProbability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		var req struct {
			Features []float64 `json:"features"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Features, 9)
		w.Write([]byte(`{"probability": 0.73}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	p, err := c.PredictProbability(context.Background(), make([]float64, 9))
	require.NoError(t, err)
	assert.Equal(t, 0.73, p)
}

func TestPredictProbabilityNestedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": {"probability": 0.41, "model": "v3"}}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).PredictProbability(context.Background(), []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0.41, p)
}

func TestPredictProbabilityRetriesOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"probability": 0.55}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL, WithMaxRetries(2)).PredictProbability(context.Background(), []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0.55, p)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPredictProbabilityNoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad feature vector"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PredictProbability(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad feature vector")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPredictProbabilityRejectsOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probability": 1.7}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PredictProbability(context.Background(), []float64{1})
	require.Error(t, err)
}

func TestPredictProbabilityEmptyFeatures(t *testing.T) {
	_, err := NewClient("http://localhost:1").PredictProbability(context.Background(), nil)
	require.Error(t, err)
}
