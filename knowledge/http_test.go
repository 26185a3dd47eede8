package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStore_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cs101", req.CourseID)
		assert.Equal(t, 3, req.TopK)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"text": "Pointers hold addresses.", "source_ref": "cs101/w3", "score": 0.91},
				{"text": "Arrays are contiguous.", "source_ref": "cs101/w2", "score": 0.42},
			},
		})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, 2*time.Second)
	passages, err := store.Query(context.Background(), "pointers", "cs101", 3)
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "cs101/w3", passages[0].SourceRef)
	assert.InDelta(t, 0.91, passages[0].Score, 1e-9)
}

func TestHTTPStore_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, time.Second)
	_, err := store.Query(context.Background(), "pointers", "cs101", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPStore_RequiresCourseID(t *testing.T) {
	store := NewHTTPStore("http://localhost:0", time.Second)
	_, err := store.Query(context.Background(), "pointers", "", 3)
	assert.Error(t, err)
}
