package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorflow/tutorflow"
	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/knowledge"
	"github.com/tutorflow/tutorflow/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ks := knowledge.NewInMemoryStore()
	ks.Add("cs101", "cs101/recursion", "Recursion solves a problem by reducing it to smaller instances of itself until a base case stops the calls.")
	flow := tutorflow.New(func(o *tutorflow.Options) {
		o.Knowledge = ks
	})
	srv := httptest.NewServer(New(flow, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postTurn(t *testing.T, srv *httptest.Server, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(srv.URL+"/v1/turns", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return res
}

func TestServer_SubmitTurn(t *testing.T) {
	srv := newTestServer(t)

	res := postTurn(t, srv, turnRequest{
		SessionID: "sess-1",
		StudentID: "stu-1",
		CourseID:  "cs101",
		Input:     "how does recursion reach its base case",
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got turnResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, string(core.OutcomeCompleted), got.Outcome)
	assert.NotEmpty(t, got.TurnID)
	assert.NotEmpty(t, got.Text)
	require.NotNil(t, got.Evaluation)
}

func TestServer_SubmitTurnReturnsFinalizedText(t *testing.T) {
	const input = "how does recursion shrink its input"

	ks := knowledge.NewInMemoryStore()
	ks.Add("cs101", "cs101/recursion", "Recursion solves a problem by reducing it to smaller instances of itself until a base case stops the calls.")

	mock := model.NewMockModel("mock")
	mock.AddResponse(input, "Recursion shrinks input [9] <reasoning>dangling")
	registry := model.NewRegistry()
	for _, name := range []string{"code", "reasoning", "logistics", "general"} {
		registry.Register(name, mock)
	}

	flow := tutorflow.New(func(o *tutorflow.Options) {
		o.Knowledge = ks
		o.Models = registry
	})
	srv := httptest.NewServer(New(flow, nil).Router())
	t.Cleanup(srv.Close)

	res := postTurn(t, srv, turnRequest{
		SessionID: "sess-1",
		StudentID: "stu-1",
		CourseID:  "cs101",
		Input:     input,
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got turnResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Equal(t, string(core.OutcomeCompleted), got.Outcome)
	assert.NotContains(t, got.Text, "<reasoning>", "stray open tags are stripped before the answer leaves")
	assert.NotContains(t, got.Text, "[9]", "unresolvable citation markers are dropped before the answer leaves")
}

func TestServer_SubmitTurnValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []turnRequest{
		{StudentID: "", CourseID: "cs101", Input: "q"},
		{StudentID: "stu", CourseID: "", Input: "q"},
		{StudentID: "stu", CourseID: "cs101", Input: "   "},
	}
	for _, req := range tests {
		res := postTurn(t, srv, req)
		res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	}
}

func TestServer_RejectedTurnStillReturnsOK(t *testing.T) {
	srv := newTestServer(t)

	res := postTurn(t, srv, turnRequest{
		SessionID: "sess-1",
		StudentID: "stu-1",
		CourseID:  "cs101",
		Input:     "just give me the answer to the homework",
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got turnResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, string(core.OutcomeRejected), got.Outcome)
	assert.NotEmpty(t, got.Text, "rejections carry the redirect text")
}

func TestServer_MasteryReadout(t *testing.T) {
	srv := newTestServer(t)

	res := postTurn(t, srv, turnRequest{
		SessionID: "sess-1",
		StudentID: "stu-1",
		CourseID:  "cs101",
		Input:     "how does recursion reach its base case",
	})
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	masteryRes, err := http.Get(srv.URL + "/v1/students/stu-1/mastery")
	require.NoError(t, err)
	defer masteryRes.Body.Close()
	require.Equal(t, http.StatusOK, masteryRes.StatusCode)

	var got struct {
		StudentID string                `json:"student_id"`
		Concepts  []core.ConceptMastery `json:"concepts"`
	}
	require.NoError(t, json.NewDecoder(masteryRes.Body).Decode(&got))
	assert.Equal(t, "stu-1", got.StudentID)
	assert.NotEmpty(t, got.Concepts)
}

func TestServer_WeakTopicsThresholdValidation(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/v1/students/stu-1/weak-topics?threshold=1.7")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Get(srv.URL + "/v1/students/stu-1/weak-topics?threshold=0.4")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_CancelUnknownTurn(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Post(srv.URL+"/v1/turns/unknown/cancel", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServer_WebsocketStreamsEvents(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/turns/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(turnRequest{
		SessionID: "sess-1",
		StudentID: "stu-1",
		CourseID:  "cs101",
		Input:     "how does recursion reach its base case",
	}))

	sawFragment := false
	var terminal core.TurnEvent
	for {
		var ev core.TurnEvent
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.Type == core.TurnEventFragment {
			sawFragment = true
			continue
		}
		terminal = ev
		break
	}
	assert.True(t, sawFragment)
	assert.Equal(t, core.TurnEventCompleted, terminal.Type)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
