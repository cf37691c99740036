package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/ingest"
	"github.com/BaSui01/healthgraph/rag"
	"github.com/BaSui01/healthgraph/testutil"
	"github.com/BaSui01/healthgraph/testutil/graphmem"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 🧪 路由级测试
// =============================================================================

type testAPI struct {
	mux      *http.ServeMux
	evidence *fakeEvidence
	answers  *fakeAnswers
	writer   *fakeWriter
	indexer  *fakeIndexer
	chats    *memChats
}

func newTestAPI(t *testing.T, withChats bool) *testAPI {
	t.Helper()
	api := &testAPI{
		evidence: &fakeEvidence{evidence: &rag.Evidence{
			Question:     "Did I eat rice on 2025-03-01?",
			Structured:   "alice - HAS_ATE -> Rice",
			Unstructured: []string{"Rice"},
		}},
		answers: &fakeAnswers{answer: &rag.Answer{Answer: "Yes, you ate rice."}},
		writer:  &fakeWriter{summary: ingest.Summary{Rows: map[string]int{"Food": 1}, Total: 1}},
		indexer: &fakeIndexer{report: ingest.IndexReport{Index: "health_vector", Embedded: 1, Batches: 1}},
	}
	var chats ChatStore
	if withChats {
		api.chats = newMemChats()
		chats = api.chats
	}

	logger := zap.NewNop()
	api.mux = http.NewServeMux()
	Routes{
		Health:    NewHealthHandler("test", logger),
		Retrieval: NewRetrievalHandler(api.evidence, api.answers, chats, 4, logger),
		Users:     NewUserHandler(api.writer, api.indexer, chats, logger),
		Sessions:  NewSessionHandler(chats, logger),
	}.Register(api.mux)
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, httptest.NewRequest(method, path, &buf))

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataAs[T any](t *testing.T, resp Response) T {
	t.Helper()
	return testutil.MustParseJSON[T](testutil.MustJSON(resp.Data))
}

func TestRoutes_Evidence(t *testing.T) {
	api := newTestAPI(t, false)

	w, resp := api.do(t, http.MethodPost, "/api/v1/evidence", QuestionRequest{Question: "  Did I eat rice?  ", UserID: 1})
	require.Equal(t, http.StatusOK, w.Code)
	ev := dataAs[rag.Evidence](t, resp)
	assert.Equal(t, "alice - HAS_ATE -> Rice", ev.Structured)
	testutil.AssertJSONEqual(t, api.evidence.evidence, ev)
	assert.Equal(t, "Did I eat rice?", api.evidence.question)
	assert.Equal(t, int64(1), api.evidence.userID)
	assert.Nil(t, api.evidence.history)
}

func TestRoutes_EvidenceValidation(t *testing.T) {
	api := newTestAPI(t, false)

	w, resp := api.do(t, http.MethodPost, "/api/v1/evidence", QuestionRequest{Question: "", UserID: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/evidence", QuestionRequest{Question: "q", UserID: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/evidence", QuestionRequest{Question: "q", UserID: 1, SessionID: 3})
	assert.Equal(t, http.StatusNotImplemented, w.Code, "sessions disabled")

	w, _ = api.do(t, http.MethodGet, "/api/v1/evidence", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRoutes_EvidenceErrorPropagates(t *testing.T) {
	api := newTestAPI(t, false)
	api.evidence.err = errors.Join(
		types.NewExtractionFailure("bad reply", nil),
		types.NewStoreUnavailable("vector down", nil),
	)

	w, resp := api.do(t, http.MethodPost, "/api/v1/evidence", QuestionRequest{Question: "q", UserID: 1})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestRoutes_AnswerWithSession(t *testing.T) {
	api := newTestAPI(t, true)
	_, err := api.chats.EnsureUser(t.Context(), 1, "alice")
	require.NoError(t, err)

	w, resp := api.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{UserID: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	session := dataAs[map[string]any](t, resp)
	sessionID := int64(session["session_id"].(float64))

	w, resp = api.do(t, http.MethodPost, "/api/v1/answer", QuestionRequest{Question: "Did I eat rice?", UserID: 1, SessionID: sessionID})
	require.Equal(t, http.StatusOK, w.Code)
	answer := dataAs[map[string]any](t, resp)
	assert.Equal(t, "Yes, you ate rice.", answer["answer"])
	assert.Empty(t, api.answers.history, "first turn has no history")

	w, _ = api.do(t, http.MethodPost, "/api/v1/answer", QuestionRequest{Question: "And apples?", UserID: 1, SessionID: sessionID})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, api.answers.history, 2)
	assert.Equal(t, types.RoleUser, api.answers.history[0].Role)
	assert.Equal(t, "Did I eat rice?", api.answers.history[0].Content)

	w, resp = api.do(t, http.MethodGet, "/api/v1/sessions/"+itoa(sessionID)+"/messages?limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, dataAs[[]map[string]any](t, resp), 3)
}

func TestRoutes_SessionOwnership(t *testing.T) {
	api := newTestAPI(t, true)
	_, _ = api.chats.EnsureUser(t.Context(), 1, "alice")
	session, err := api.chats.CreateSession(t.Context(), 1, "")
	require.NoError(t, err)

	w, _ := api.do(t, http.MethodPost, "/api/v1/evidence", QuestionRequest{Question: "q", UserID: 2, SessionID: session.SessionID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_AnswerError(t *testing.T) {
	api := newTestAPI(t, false)
	api.answers.err = types.NewError(types.ErrLLMFailure, "model down").WithRetryable(true)

	w, resp := api.do(t, http.MethodPost, "/api/v1/answer", QuestionRequest{Question: "q", UserID: 1})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(types.ErrLLMFailure), resp.Error.Code)
}

func TestRoutes_Ingest(t *testing.T) {
	api := newTestAPI(t, true)
	body := IngestRequest{
		Username: "alice",
		Datasets: ingest.Datasets{"Food": {
			Columns: []string{"date", "food_name"},
			Rows:    []map[string]string{{"date": "2025-03-01", "food_name": "Rice"}},
		}},
	}

	w, resp := api.do(t, http.MethodPost, "/api/v1/users/1/ingest", body)
	require.Equal(t, http.StatusOK, w.Code)
	out := dataAs[IngestResponse](t, resp)
	assert.Equal(t, int64(1), out.UserID)
	assert.Equal(t, 1, out.Total)
	require.NotNil(t, out.Index)
	assert.Equal(t, 1, out.Index.Embedded)

	assert.Equal(t, "Rice", api.writer.data["Food"].Rows[0]["food_name"])
	assert.Equal(t, "alice", api.chats.users[1], "chat user synced")
}

func TestRoutes_IngestNumericJSONRows(t *testing.T) {
	g := graphmem.New()
	users := NewUserHandler(ingest.NewWriter(g, nil), &fakeIndexer{}, nil, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+APIPrefix+"/users/{id}/ingest", users.HandleIngest)

	body := `{"username":"alice","datasets":{
		"food_intake":{"rows":[{"date":"2025-03-01","food_name":"Rice","amount":1,"calories":200}]},
		"step_count":[{"date":"2025-03-01","total_steps":8500}]
	}}`
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, APIPrefix+"/users/1/ingest", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	food := g.Nodes("Food")
	require.Len(t, food, 1)
	assert.Equal(t, "Rice", food[0].Props["name"])
	assert.Equal(t, int64(1), food[0].Props["amount"])
	assert.Equal(t, 200.0, food[0].Props["calories"])
	require.Len(t, g.Nodes("Step"), 1)
	assert.Equal(t, int64(8500), g.Nodes("Step")[0].Props["count"])
}

func TestRoutes_IngestIndexFailureStillSucceeds(t *testing.T) {
	api := newTestAPI(t, false)
	api.indexer.err = errors.New("embedding quota exceeded")

	w, resp := api.do(t, http.MethodPost, "/api/v1/users/1/ingest", IngestRequest{Username: "alice", Datasets: ingest.Datasets{}})
	require.Equal(t, http.StatusOK, w.Code)
	out := dataAs[IngestResponse](t, resp)
	assert.Nil(t, out.Index)
	assert.Contains(t, out.IndexError, "quota")
}

func TestRoutes_IngestValidationError(t *testing.T) {
	api := newTestAPI(t, false)
	api.writer.err = types.NewIngestValidation("Food row 1: invalid date")

	w, resp := api.do(t, http.MethodPost, "/api/v1/users/1/ingest", IngestRequest{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrIngestValidation), resp.Error.Code)
	assert.Zero(t, api.indexer.calls)

	w, _ = api.do(t, http.MethodPost, "/api/v1/users/abc/ingest", IngestRequest{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_DeleteUser(t *testing.T) {
	api := newTestAPI(t, true)
	_, _ = api.chats.EnsureUser(t.Context(), 5, "eve")
	_, err := api.chats.CreateSession(t.Context(), 5, "")
	require.NoError(t, err)

	w, _ := api.do(t, http.MethodDelete, "/api/v1/users/5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{5}, api.writer.deleted)
	assert.Empty(t, api.chats.sessions)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/users/5", nil)
	assert.Equal(t, http.StatusOK, w.Code, "idempotent")
}

func TestRoutes_Sessions(t *testing.T) {
	api := newTestAPI(t, true)

	w, _ := api.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{UserID: 9})
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown user")

	_, _ = api.chats.EnsureUser(t.Context(), 9, "zoe")
	w, _ = api.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{UserID: 9, Name: "sleep"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := api.do(t, http.MethodGet, "/api/v1/users/9/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := dataAs[[]map[string]any](t, resp)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sleep", sessions[0]["name"])
	id := int64(sessions[0]["session_id"].(float64))

	w, _ = api.do(t, http.MethodGet, "/api/v1/sessions/"+itoa(id)+"/messages?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/sessions/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/v1/sessions/"+itoa(id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_SessionsDisabled(t *testing.T) {
	api := newTestAPI(t, false)
	w, _ := api.do(t, http.MethodGet, "/api/v1/users/1/sessions", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
