package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tutorflow/tutorflow/core"
)

// HTTPStore queries a remote vector-search service over JSON/HTTP. The
// service owns embeddings and index internals; this client only speaks the
// query contract.
type HTTPStore struct {
	url    string
	client *http.Client
}

// NewHTTPStore creates a client for the given search endpoint URL.
func NewHTTPStore(url string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	Text     string `json:"text"`
	CourseID string `json:"course_id"`
	TopK     int    `json:"top_k"`
}

type queryResponse struct {
	Results []struct {
		Text      string  `json:"text"`
		SourceRef string  `json:"source_ref"`
		Score     float64 `json:"score"`
	} `json:"results"`
}

// Query implements core.KnowledgeStore.
func (s *HTTPStore) Query(ctx context.Context, text, courseID string, topK int) ([]core.Passage, error) {
	if courseID == "" {
		return nil, fmt.Errorf("course id is required")
	}
	if topK <= 0 {
		topK = 5
	}

	payload, err := json.Marshal(queryRequest{Text: text, CourseID: courseID, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("knowledge store query: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("knowledge store status %d: %s", res.StatusCode, string(body))
	}

	var decoded queryResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	passages := make([]core.Passage, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		passages = append(passages, core.Passage{Text: r.Text, SourceRef: r.SourceRef, Score: r.Score})
	}
	return passages, nil
}
